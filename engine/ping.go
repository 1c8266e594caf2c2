package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/mtcore/clock"
	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/wire"
)

const (
	genericPingInterval       = 19 * time.Second
	genericDisconnectDelay    = 35 * time.Second
	pushPingInterval          = 3 * time.Minute
	pushDisconnectDelay       = 420 * time.Second
	pushMissingSuspendWindow  = 3*time.Minute + 10*time.Second
	rttMovingAverageMaxDelta  = 10 * time.Second

	// proxyProbeFloor is the base of the proxy health-check ping ids
	// (floor to floor+1,000,000). Generic and push pings use message ids,
	// which lie far above that range; a pong at or above the floor is
	// taken as a probe reply only when its PingID matches an outstanding
	// probe, and otherwise goes on to the generic/push handling (§4.G
	// Ping & Sleep).
	proxyProbeFloor = 2_000_000
)

// proxyProbeIDs tracks the correlation id of each outstanding proxy probe
// so its pong can be matched back to the proxy connection it was sent on,
// distinct from the PingID-as-clock-sample use of generic/push pings.
var (
	proxyProbeMu  sync.Mutex
	proxyProbeIDs = make(map[int64]uuid.UUID)
)

// SendProxyProbe emits a standalone Ping on the proxy connection,
// tagging it with a fresh correlation id so a delayed or duplicate pong
// can be told apart from a stale probe (§4.G "proxy probe").
func (c *Coordinator) SendProxyProbe(dc *datacenter.Datacenter) (uuid.UUID, bool) {
	conn := dc.GetConnectionByType(connection.Proxy, false)
	if conn == nil {
		return uuid.UUID{}, false
	}

	probeID := uuid.New()
	pingID := proxyProbeFloor + int64(c.Clock.GenerateMessageID()%1_000_000)

	proxyProbeMu.Lock()
	proxyProbeIDs[pingID] = probeID
	proxyProbeMu.Unlock()

	conn.Batcher().Append(connection.NetworkMessage{
		MsgID: c.Clock.GenerateMessageID(),
		SeqNo: conn.NextSeqNo(),
		Body:  wire.Ping{PingID: pingID},
	})
	return probeID, true
}

// resolveProxyProbe pops and returns the correlation id for a proxy
// probe's pong, if pingID was one of SendProxyProbe's outstanding ids.
func resolveProxyProbe(pingID int64) (uuid.UUID, bool) {
	proxyProbeMu.Lock()
	defer proxyProbeMu.Unlock()
	id, ok := proxyProbeIDs[pingID]
	if ok {
		delete(proxyProbeIDs, pingID)
	}
	return id, ok
}

// pingState tracks the generic connection's outstanding ping and the
// push connection's suspend timer (§4.G Ping & Sleep).
type pingState struct {
	mu sync.Mutex

	lastGenericPingAt time.Time
	lastGenericPingID int64
	currentPingTime   time.Duration

	lastPushPingAt     time.Time
	lastPushPongAt     time.Time
	pushSuspended      bool

	lastResumeAt      time.Time
	networkPaused     bool
	nextSleepTimeout  time.Duration
}

func newPingState() *pingState {
	return &pingState{
		lastResumeAt:     time.Now(),
		nextSleepTimeout: 5 * time.Minute,
	}
}

// MaybeSendGenericPing emits a ping_delay_disconnect on dc's generic
// connection if genericPingInterval has elapsed (§4.G Ping & Sleep).
func (c *Coordinator) MaybeSendGenericPing(dc *datacenter.Datacenter) {
	c.pingOnce.Do(func() { c.ping = newPingState() })

	c.ping.mu.Lock()
	due := time.Since(c.ping.lastGenericPingAt) >= genericPingInterval
	c.ping.mu.Unlock()
	if !due {
		return
	}

	conn := dc.GetConnectionByType(connection.Generic, false)
	if conn == nil {
		return
	}

	pingID := c.Clock.GenerateMessageID()
	msgID := c.Clock.GenerateMessageID()
	conn.Batcher().Append(connection.NetworkMessage{
		MsgID: msgID,
		SeqNo: conn.NextSeqNo(),
		Body:  wire.PingDelayDisconnect{PingID: pingID, DisconnectDelay: int32(genericDisconnectDelay.Seconds())},
	})

	c.ping.mu.Lock()
	c.ping.lastGenericPingAt = time.Now()
	c.ping.lastGenericPingID = pingID
	c.ping.mu.Unlock()
}

// MaybeSendPushPing emits the longer-lived push ping and, if the server
// has gone silent past pushMissingSuspendWindow, suspends the push
// connection (§4.G Ping & Sleep "Push ping"). It does nothing while no
// user id is set.
func (c *Coordinator) MaybeSendPushPing(dc *datacenter.Datacenter) {
	c.pingOnce.Do(func() { c.ping = newPingState() })

	c.mu.Lock()
	noUser := c.currentUserID == 0
	c.mu.Unlock()
	if noUser {
		return
	}

	conn := dc.GetConnectionByType(connection.Push, false)
	if conn == nil {
		return
	}

	c.ping.mu.Lock()
	sinceLastPong := time.Since(c.ping.lastPushPongAt)
	if !c.ping.lastPushPongAt.IsZero() && sinceLastPong >= pushMissingSuspendWindow {
		c.ping.pushSuspended = true
		c.ping.mu.Unlock()
		conn.Close()
		return
	}
	due := time.Since(c.ping.lastPushPingAt) >= pushPingInterval
	c.ping.mu.Unlock()
	if !due {
		return
	}

	pingID := c.Clock.GenerateMessageID()
	msgID := c.Clock.GenerateMessageID()
	conn.Batcher().Append(connection.NetworkMessage{
		MsgID: msgID,
		SeqNo: conn.NextSeqNo(),
		Body:  wire.PingDelayDisconnect{PingID: pingID, DisconnectDelay: int32(pushDisconnectDelay.Seconds())},
	})

	c.ping.mu.Lock()
	c.ping.lastPushPingAt = time.Now()
	c.ping.mu.Unlock()
}

// RecordPushPong marks the push connection as alive, per-received-pong,
// clearing any pending suspend.
func (c *Coordinator) RecordPushPong() {
	c.pingOnce.Do(func() { c.ping = newPingState() })
	c.ping.mu.Lock()
	c.ping.lastPushPongAt = time.Now()
	c.ping.pushSuspended = false
	c.ping.mu.Unlock()
}

// RecordGenericPong folds a generic pong's round trip into a moving
// average and adjusts the clock's time offset from the server's own
// message id on the pong frame, per §4.G's pong dispatch entry and
// §8 scenario 5 ("ping-based time sync").
func (c *Coordinator) RecordGenericPong(v wire.Pong) {
	c.pingOnce.Do(func() { c.ping = newPingState() })

	c.ping.mu.Lock()
	if v.PingID != c.ping.lastGenericPingID {
		c.ping.mu.Unlock()
		return
	}
	sent := datacenterPingSentTime(v.PingID)
	rtt := time.Since(sent)
	if rtt < rttMovingAverageMaxDelta {
		if c.ping.currentPingTime == 0 {
			c.ping.currentPingTime = rtt
		} else {
			c.ping.currentPingTime = (c.ping.currentPingTime + rtt) / 2
		}
	}
	c.ping.mu.Unlock()

	if v.MsgID != 0 {
		serverTime := clock.MessageIDTime(v.MsgID)
		c.Clock.SetTimeOffset(serverTime.Sub(time.Now()).Seconds())
	}
}

func datacenterPingSentTime(pingID int64) time.Time {
	seconds := float64(pingID) / 4294967296.0
	return time.UnixMilli(int64(seconds * 1000))
}

// MaybeSleep implements §4.G Ping & Sleep's "Sleep" rule: if the last
// external resume was longer ago than nextSleepTimeout and no in-flight
// downloads/uploads or pending salt requests remain, suspend every
// datacenter connection and enter the paused state.
func (c *Coordinator) MaybeSleep() {
	c.pingOnce.Do(func() { c.ping = newPingState() })

	c.ping.mu.Lock()
	idle := time.Since(c.ping.lastResumeAt) >= c.ping.nextSleepTimeout
	alreadyPaused := c.ping.networkPaused
	c.ping.mu.Unlock()

	if !idle || alreadyPaused {
		return
	}

	for _, r := range c.Registry.Running() {
		if r.Class == connection.Download || r.Class == connection.Upload {
			return
		}
	}

	for _, dc := range c.snapshotDatacenters() {
		if dc.Salts().Len() == 0 {
			return // a pending salt request is still outstanding
		}
	}

	c.ping.mu.Lock()
	c.ping.networkPaused = true
	c.ping.mu.Unlock()

	for _, dc := range c.snapshotDatacenters() {
		for _, class := range []connection.Class{
			connection.Generic, connection.GenericMedia, connection.Download,
			connection.Upload, connection.Push, connection.Temp, connection.Proxy,
		} {
			if conn := dc.GetConnectionByType(class, false); conn != nil {
				conn.Close()
			}
		}
	}
}

// Resume exits the paused state, per "any resume call exits paused
// state" (§4.G Ping & Sleep).
func (c *Coordinator) Resume() {
	c.pingOnce.Do(func() { c.ping = newPingState() })
	c.ping.mu.Lock()
	c.ping.lastResumeAt = time.Now()
	c.ping.networkPaused = false
	c.ping.mu.Unlock()
}

// NetworkPaused reports whether the coordinator is currently sleeping.
func (c *Coordinator) NetworkPaused() bool {
	c.pingOnce.Do(func() { c.ping = newPingState() })
	c.ping.mu.Lock()
	defer c.ping.mu.Unlock()
	return c.ping.networkPaused
}
