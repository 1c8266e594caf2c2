// Package clock provides the monotone message-id generator and adjustable
// server time offset used throughout the engine (spec §4.A).
package clock

import (
	"sync"
	"time"
)

// Clock generates strictly increasing, mod-4-aligned MTProto message ids and
// tracks the client's estimate of the server/client wall-clock offset.
//
// A Clock is owned by a single Datacenter set (one per engine instance); it
// is safe for concurrent use only because callers may adjust the offset
// from a response-dispatch path while the event loop thread generates ids,
// but in steady state both happen on the loop goroutine.
type Clock struct {
	mu         sync.Mutex
	lastID     int64
	timeOffset float64 // seconds, added to wall time before id derivation
}

// New returns a Clock with zero time offset.
func New() *Clock {
	return &Clock{}
}

// GenerateMessageID returns the next message id per spec §4.A:
//
//	id = floor(((wallMillis + timeOffset*1000) * 2^32) / 1000)
//	if id <= lastId: id = lastId + 1
//	while id % 4 != 0: id++
//	lastId = id
func (c *Clock) GenerateMessageID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	wallMillis := time.Now().UnixMilli()
	adjusted := float64(wallMillis) + c.timeOffset*1000
	id := int64((adjusted * 4294967296.0) / 1000.0)

	if id <= c.lastID {
		id = c.lastID + 1
	}
	for id%4 != 0 {
		id++
	}
	c.lastID = id
	return id
}

// SetTimeOffset overwrites the client's estimate of (serverTime - wallTime)
// in seconds. Called from ping/pong handling (§4.G) and from bad-msg time-skew
// recovery (§4.G bad-msg-notification, codes 16/17/19/32/33/64).
func (c *Clock) SetTimeOffset(offset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeOffset = offset
}

// AdjustTimeOffset adds delta seconds to the current offset.
func (c *Clock) AdjustTimeOffset(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeOffset += delta
}

// TimeOffset returns the current offset in seconds.
func (c *Clock) TimeOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeOffset
}

// CurrentTime returns the engine's estimate of server wall time.
func (c *Clock) CurrentTime() time.Time {
	c.mu.Lock()
	offset := c.timeOffset
	c.mu.Unlock()
	return time.Now().Add(time.Duration(offset * float64(time.Second)))
}

// MessageIDTime extracts the approximate wall-clock time a message id was
// generated at (ids embed a 32-bit fractional-second timestamp per §4.A).
func MessageIDTime(id int64) time.Time {
	seconds := float64(id) / 4294967296.0
	return time.UnixMilli(int64(seconds * 1000))
}
