package connection

import (
	"math/rand"
	"sync"
	"time"

	"github.com/teranos/mtcore/logger"
	"github.com/teranos/mtcore/transport"
)

// Connection is one active transport belonging to a datacenter, tagged
// with a Class (§3 Connection). Its state is owned entirely by the event
// loop goroutine; the mutex here only guards fields that diagnostics
// (cmd/mtcore inspect) may read from another goroutine.
type Connection struct {
	mu sync.Mutex

	DatacenterID int32
	Class        Class

	SessionID int64 // random 64-bit, per §3
	seqNo     int32 // current sequence counter

	pendingAcks []int64 // message ids to confirm on next outgoing frame

	idempotency *IdempotencyTracker

	lastActivity time.Time
	connToken    int32 // increments on each successful handshake of the underlying socket

	pipe  transport.Pipe
	batch *Batcher

	lastNewSessionUniqueID int64 // dedup key for new_session_created (§4.G, §8 scenario 6)
	sawNewSession          bool
}

// New constructs a Connection with a fresh random session id, as required
// whenever a session is (re)created (§3, §4.D recreateSessions).
func New(dcID int32, class Class) *Connection {
	return &Connection{
		DatacenterID: dcID,
		Class:        class,
		SessionID:    rand.Int63(),
		idempotency:  NewIdempotencyTracker(),
		batch:        NewBatcher(MaxBatchBytes),
		lastActivity: time.Now(),
	}
}

// NextSeqNo returns the sequence number for the next content message.
// Content messages increment by 2; odd seqnos are reserved for acks and
// pings (§4.E).
func (c *Connection) NextSeqNo() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.seqNo
	c.seqNo += 2
	return n
}

// RecreateSession replaces the session id and resets the sequence counter
// and idempotency tracker, per the Done->None transitions of §4.D and the
// "recreateSession + reconnect" rule of §4.E.
func (c *Connection) RecreateSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionID = rand.Int63()
	c.seqNo = 0
	c.idempotency = NewIdempotencyTracker()
	c.pendingAcks = nil
}

// QueueAck records a message id to be confirmed on the connection's next
// outgoing frame (§4.E "optional msgs_ack container").
func (c *Connection) QueueAck(msgID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingAcks = append(c.pendingAcks, msgID)
}

// DrainAcks returns and clears the pending-ack list.
func (c *Connection) DrainAcks() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	acks := c.pendingAcks
	c.pendingAcks = nil
	return acks
}

// Idempotency exposes the tracker so the coordinator can check incoming
// message ids before processing (§4.E).
func (c *Connection) Idempotency() *IdempotencyTracker {
	return c.idempotency
}

// Touch records activity for checkTimeout purposes (§4.B step 7).
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns the last time the connection saw traffic.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// AttachPipe binds the underlying transport pipe and bumps the connection
// token, matching "increments on each successful handshake of the
// underlying socket" (§3 Connection).
func (c *Connection) AttachPipe(p transport.Pipe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipe = p
	c.connToken++
	logger.ConnInfow("connection attached",
		"dc", c.DatacenterID, "class", c.Class.String(), "token", c.connToken)
}

// Pipe returns the currently attached transport pipe, or nil if the
// connection has not been (re)established.
func (c *Connection) Pipe() transport.Pipe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe
}

// Token returns the current connection token (§3 Connection).
func (c *Connection) Token() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connToken
}

// ObserveNewSession records uniqueID as the connection's current
// new_session_created id and reports whether this is the first
// occurrence — the second and later notification for the same id is a
// no-op the caller must skip (§4.G Response Dispatch, §8 scenario 6).
func (c *Connection) ObserveNewSession(uniqueID int64) (firstOccurrence bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sawNewSession && c.lastNewSessionUniqueID == uniqueID {
		return false
	}
	c.lastNewSessionUniqueID = uniqueID
	c.sawNewSession = true
	return true
}

// Batcher returns the outgoing frame batcher for this connection.
func (c *Connection) Batcher() *Batcher {
	return c.batch
}

// Close tears down the underlying pipe, if any.
func (c *Connection) Close() error {
	c.mu.Lock()
	p := c.pipe
	c.pipe = nil
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}
