package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/logger"
	"github.com/teranos/mtcore/request"
	"github.com/teranos/mtcore/wire"
)

const resendThrottleWindow = 60 * time.Second

// Dispatch routes one decoded object through the response-dispatch
// switch of §4.G, the way server/client.go's routeMessage switches on
// msg.Type — generalized here from a string tag to a Go type switch over
// wire.Object's dynamic type, since the wire layer already resolved the
// tag into a concrete struct.
func (c *Coordinator) Dispatch(obj wire.Object, dc *datacenter.Datacenter, conn *connection.Connection) {
	switch v := obj.(type) {
	case wire.NewSessionCreated:
		c.onNewSessionCreated(v, dc, conn)
	case wire.MsgContainer:
		for _, inner := range v.Messages {
			if conn.Idempotency().Check(inner.MsgID) == connection.IdempotencyDeliveredComplete {
				continue
			}

			if _, unparsed := inner.Body.(wire.Unparsed); unparsed {
				// §4.E: a repeated message id whose body still can't be
				// decoded means the session is desynchronized, not just a
				// duplicate delivery — recreate the session and reconnect
				// instead of dispatching garbage a second time.
				if conn.Idempotency().MarkNeedsResession(inner.MsgID) {
					conn.RecreateSession()
					conn.Close()
					return
				}
				if c.Delegate != nil {
					c.Delegate.OnUnparsedMessageReceived(inner.Body)
				}
				continue
			}

			c.Dispatch(inner.Body, dc, conn)
			conn.Idempotency().MarkCompleted(inner.MsgID)
		}
	case wire.Pong:
		c.onPong(v, conn)
	case wire.FutureSalts:
		salts := make([]datacenter.Salt, 0, len(v.Salts))
		for _, s := range v.Salts {
			salts = append(salts, datacenter.Salt{ValidSince: s.ValidSince, ValidUntil: s.ValidUntil, Value: s.Salt})
		}
		dc.Salts().Merge(salts)
	case wire.DestroySessionRes:
		logger.Infow("destroy_session_res", "session_id", v.SessionID, "ok", v.Ok)
	case wire.RpcResult:
		c.onRpcResult(v, dc, conn)
	case wire.MsgsAck:
		// Ignored: acknowledgement is implicit in idempotency tracking (§4.G).
	case wire.BadMsgNotification:
		c.onBadMsgNotification(v, dc)
	case wire.BadServerSalt:
		c.onBadServerSalt(v, dc)
	case wire.MsgsStateInfo:
		c.onMsgsStateInfo(v)
	case wire.MsgDetailedInfo:
		c.onMsgResendNeeded(v.MsgID, v.AnswerID)
	case wire.MsgNewDetailedInfo:
		c.onMsgResendNeeded(0, v.AnswerID)
	case wire.GzipPacked:
		inflated, err := wire.Inflate(v.PackedData)
		if err != nil {
			logger.Infow("gzip_packed inflate failed", "err", err)
			return
		}
		c.Dispatch(wire.Unparsed{Payload: inflated}, dc, conn)
	case wire.UpdatesTooLong:
		if conn.Class == connection.Push && c.Delegate != nil {
			c.Delegate.OnInternalPushReceived(v)
		} else if c.Delegate != nil {
			c.Delegate.OnUnparsedMessageReceived(v)
		}
	default:
		if c.Delegate != nil {
			c.Delegate.OnUnparsedMessageReceived(obj)
		}
	}
}

func (c *Coordinator) onNewSessionCreated(v wire.NewSessionCreated, dc *datacenter.Datacenter, conn *connection.Connection) {
	if !conn.ObserveNewSession(v.UniqueID) {
		return // same unique_id already processed; repeat notification is a no-op (§8 scenario 6)
	}

	dc.Salts().Add(datacenter.Salt{ValidSince: 0, ValidUntil: 0x7fffffff, Value: v.ServerSalt})

	for _, r := range c.Registry.Running() {
		if r.DatacenterID == dc.ID && r.Class == conn.Class && r.MessageID < v.FirstMsgID {
			c.Registry.Remove(r.Token)
		}
	}

	if conn.Class == connection.Push {
		// registration for push is a delegate-visible side effect; the
		// transport layer is told separately when it attaches the pipe.
	}
	if conn.Class == connection.Generic && c.Delegate != nil {
		c.Delegate.OnSessionCreated(dc.ID)
	}
}

func (c *Coordinator) onPong(v wire.Pong, conn *connection.Connection) {
	if v.PingID >= proxyProbeFloor {
		if probeID, ok := resolveProxyProbe(v.PingID); ok {
			logger.Infow("proxy probe pong", "ping_id", v.PingID, "probe_id", probeID)
			return
		}
	}

	switch conn.Class {
	case connection.Push:
		c.RecordPushPong()
	default:
		c.RecordGenericPong(v)
	}
	c.notePongRTT(conn, v)
}

func (c *Coordinator) onBadMsgNotification(v wire.BadMsgNotification, dc *datacenter.Datacenter) {
	switch v.ErrorCode {
	case 16, 17, 19, 32, 33, 64:
		c.Clock.AdjustTimeOffset(0) // offset correction requires the server's own time estimate, supplied by the transport layer
		dc.ResetOnBadMsgTimeSkew()
		dc.RecreateSessions()
		c.clearPendingRequestsOn(dc.ID)
	case 20:
		c.resendByMsgID(v.BadMsgID)
	}
}

func (c *Coordinator) onBadServerSalt(v wire.BadServerSalt, dc *datacenter.Datacenter) {
	dc.Salts().Add(datacenter.Salt{ValidSince: 0, ValidUntil: 0x7fffffff, Value: v.NewSalt})

	for _, r := range c.Registry.Running() {
		if r.DatacenterID == dc.ID && r.Class == connection.Download {
			r.FailedByFloodWait = 0 // "failed by salt" forces a no-penalty retry
			r.MinStartTime = time.Time{}
		}
	}

	c.resendByMsgID(v.BadMsgID)
}

func (c *Coordinator) onMsgsStateInfo(v wire.MsgsStateInfo) {
	c.resendByMsgID(v.ReqMsgID)
}

func (c *Coordinator) onMsgResendNeeded(msgID, answerID int64) {
	key := answerID
	if key == 0 {
		key = msgID
	}

	c.mu.Lock()
	last, seen := c.resendThrottle[key]
	if seen && time.Since(last) < resendThrottleWindow {
		c.mu.Unlock()
		return
	}
	c.resendThrottle[key] = time.Now()
	c.mu.Unlock()

	c.resendByMsgID(answerID)
}

func (c *Coordinator) resendByMsgID(msgID int64) {
	for _, r := range c.Registry.Running() {
		if r.MessageID == msgID {
			r.MinStartTime = time.Time{}
			r.LastResendAt = time.Time{}
		}
	}
}

func (c *Coordinator) notePongRTT(conn *connection.Connection, v wire.Pong) {
	conn.Touch()
}

// onRpcResult implements §4.G's rpc_result handling table.
func (c *Coordinator) onRpcResult(v wire.RpcResult, dc *datacenter.Datacenter, conn *connection.Connection) {
	r, ok := c.findRunningByMsgID(v.ReqMsgID)
	if !ok {
		return
	}

	if errObj, isErr := v.Result.(wire.RpcError); isErr {
		if c.handleRpcError(r, errObj, dc) {
			return // error handled; request remains pending or was discarded
		}
	}

	if r.IsInitRequest || r.IsInitMediaRequest {
		dc.MarkInitConnectionSent(r.IsInitMediaRequest, datacenter.InitConnectionParams{})
	}

	r.Complete(v.Result, nil)
	c.Registry.Remove(r.Token)
}

func (c *Coordinator) findRunningByMsgID(msgID int64) (*request.Request, bool) {
	for _, r := range c.Registry.Running() {
		if r.MessageID == msgID {
			return r, true
		}
	}
	return nil, false
}

// handleRpcError applies the §4.G rpc_result error table. It returns
// true if the error was fully handled (request rescheduled or
// discarded) and the caller must not also complete the request.
func (c *Coordinator) handleRpcError(req *request.Request, e wire.RpcError, dc *datacenter.Datacenter) bool {
	switch {
	case e.ErrorCode == 303:
		// NETWORK_MIGRATE_/PHONE_MIGRATE_/USER_MIGRATE_: parse the
		// trailing dc number and trigger migration automatically;
		// suppressed locally either way.
		if target, ok := parseMigrateTarget(e.ErrorText); ok {
			c.triggerMigration(target)
		}
		return true

	case e.ErrorCode == 401 && e.ErrorText == "AUTH_KEY_PERM_EMPTY":
		req.FailedByFloodWait = 0
		req.MinStartTime = nowPlus(1 * time.Second)
		return true

	case e.ErrorCode == 401:
		if dc.ID == req.DatacenterID {
			if c.Delegate != nil {
				c.Delegate.OnLogout()
			}
		} else {
			dc.SetAuthorizedForUser(false)
		}
		return true

	case e.ErrorCode == 406 && e.ErrorText == "AUTH_KEY_DUPLICATED" && !c.userSet:
		for _, other := range c.snapshotDatacenters() {
			other.ClearEphemeralKey(datacenter.PermanentKeySlot)
		}
		return true

	case e.ErrorCode == 420:
		req.FailedByFloodWait = parseFloodWaitSeconds(e.ErrorText)
		req.LastResendAt = time.Now()
		return true

	case e.ErrorCode == 500 && e.ErrorText == "AUTH_RESTART":
		req.MinStartTime = time.Time{}
		return true

	case e.ErrorCode == 500 || e.ErrorCode < 0:
		if req.Flags.Has(request.FailOnServerErrors) {
			return false
		}
		req.ServerFailureCount++
		return true

	case e.ErrorCode == 400 && e.ErrorText == "MSG_WAIT_FAILED":
		req.MinStartTime = nowPlus(1 * time.Second)
		return true
	}

	return false
}

// parseMigrateTarget extracts N from a NETWORK_MIGRATE_N / PHONE_MIGRATE_N
// / USER_MIGRATE_N error text.
func parseMigrateTarget(text string) (int32, bool) {
	idx := strings.LastIndex(text, "_")
	if idx < 0 || idx+1 >= len(text) {
		return 0, false
	}
	n, err := strconv.Atoi(text[idx+1:])
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

// parseFloodWaitSeconds extracts N from a FLOOD_WAIT_N error text.
func parseFloodWaitSeconds(text string) int32 {
	idx := strings.LastIndex(text, "_")
	if idx < 0 || idx+1 >= len(text) {
		return 0
	}
	n, err := strconv.Atoi(text[idx+1:])
	if err != nil {
		return 0
	}
	return int32(n)
}

func nowPlus(d time.Duration) time.Time {
	return time.Now().Add(d)
}
