package wire

// Control constructors the coordinator reacts to by dynamic type (§4.G
// Response Dispatch table, §9 "encode the typed-object universe as a
// tagged variant"). Field sets are the minimum the core's dispatch logic
// consults; a full wire codec would carry richer payloads, but those
// fields are opaque to this engine.

// Pong answers a Ping/PingDelayDisconnect.
type Pong struct {
	MsgID  int64
	PingID int64
}

func (Pong) isObject() {}

// NewSessionCreated signals the server dropped/recreated a session.
type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (NewSessionCreated) isObject() {}

// BadMsgNotification reports a message-id/seqno/time-skew problem.
type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (BadMsgNotification) isObject() {}

// BadServerSalt tells the client to adopt a fresh salt.
type BadServerSalt struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
	NewSalt     int64
}

func (BadServerSalt) isObject() {}

// MsgsAck is an explicit acknowledgement container; dispatch ignores it
// since idempotency tracking already implies acknowledgement (§4.G).
type MsgsAck struct {
	MsgIDs []int64
}

func (MsgsAck) isObject() {}

// MsgsStateInfo maps resend requests back to the logical request state.
type MsgsStateInfo struct {
	ReqMsgID int64
	Info     []byte
}

func (MsgsStateInfo) isObject() {}

// MsgDetailedInfo / MsgNewDetailedInfo both ask the client to consider
// resending msg_resend_req for the referenced message.
type MsgDetailedInfo struct {
	MsgID     int64
	AnswerID  int64
	BytesSize int32
}

func (MsgDetailedInfo) isObject() {}

type MsgNewDetailedInfo struct {
	AnswerID  int64
	BytesSize int32
}

func (MsgNewDetailedInfo) isObject() {}

// FutureSalts carries a batch of upcoming valid salts.
type FutureSalts struct {
	ReqMsgID int64
	Now      int32
	Salts    []Salt
}

func (FutureSalts) isObject() {}

// Salt is one entry of a FutureSalts response or the config-persisted pool.
type Salt struct {
	ValidSince int32
	ValidUntil int32
	Salt       int64
}

// DestroySession is the outgoing request asking the server to drop a
// session, piggybacked onto a generic batch (§4.G Phase 2).
type DestroySession struct {
	SessionID int64
}

func (DestroySession) isObject() {}

// DestroySessionRes acknowledges a destroy_session request.
type DestroySessionRes struct {
	SessionID int64
	Ok        bool
}

func (DestroySessionRes) isObject() {}

// GzipPacked wraps a gzip-deflated inner object; the dispatcher inflates
// and recurses (§4.G).
type GzipPacked struct {
	PackedData []byte
}

func (GzipPacked) isObject() {}

// UpdatesTooLong tells the client its update gap is too large to replay
// incrementally; on the push connection this wakes the host app (§4.G).
type UpdatesTooLong struct{}

func (UpdatesTooLong) isObject() {}

// InvokeAfterMsg wraps an outgoing message establishing happens-before
// ordering relative to a prior message id on the same session (§9
// "Invoke-after-msg").
type InvokeAfterMsg struct {
	MsgID   int64
	Wrapped Object
}

func (InvokeAfterMsg) isObject() {}

// MsgContainer bundles several top-level messages in one outgoing or
// incoming frame.
type MsgContainer struct {
	Messages []ContainedMessage
}

func (MsgContainer) isObject() {}

// ContainedMessage is one entry of a MsgContainer.
type ContainedMessage struct {
	MsgID  int64
	SeqNo  int32
	Body   Object
}

// RpcResult is the primary completion path: a response keyed to the
// message id of the originating request.
type RpcResult struct {
	ReqMsgID int64
	Result   Object
}

func (RpcResult) isObject() {}

// RpcError is a logical RPC failure the server reports (wrapped inside an
// RpcResult.Result, or standalone depending on the codec).
type RpcError struct {
	ErrorCode int32
	ErrorText string
}

func (RpcError) isObject() {}

// RpcDropAnswer is emitted by the client as a fire-and-forget
// cancellation notice (§4.F cancellation, §8 scenario 4).
type RpcDropAnswer struct {
	ReqMsgID int64
}

func (RpcDropAnswer) isObject() {}

// PingDelayDisconnect is an outgoing ping variant that asks the server to
// disconnect the client if no further traffic arrives within
// DisconnectDelay seconds (§4.G Ping & Sleep).
type PingDelayDisconnect struct {
	PingID         int64
	DisconnectDelay int32
}

func (PingDelayDisconnect) isObject() {}

// Ping is the plain outgoing ping (used for proxy-probe pings, §4.G).
type Ping struct {
	PingID int64
}

func (Ping) isObject() {}

// HelpGetConfig is the outgoing config-fetch sentinel request (§4.G Phase
// 1/3, §9 original_source "config-fetch sentinel"): an engine-issued
// probe to (re)discover the datacenter table, distinct from a
// caller-submitted RPC and so carrying no method-specific payload here.
type HelpGetConfig struct{}

func (HelpGetConfig) isObject() {}
