// Package request models one outstanding RPC and the registry that
// tracks it from submission through completion (spec §3 Request, §4.F
// Request Registry). The status lifecycle and callback-ownership
// discipline are grounded on pulse/async/job.go's Job type, generalized
// from a durable database-backed job to an in-memory wire request.
package request

import (
	"sync/atomic"
	"time"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/wire"
)

// Status mirrors pulse/async's JobStatus shape, narrowed to the states a
// Request actually passes through (§3 Request "Lifecycle").
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Kind distinguishes the handful of well-known request shapes the
// coordinator gives special scheduling treatment beyond the generic
// request lifecycle (§9 original_source "config-fetch sentinel").
type Kind int

const (
	// KindDefault is an ordinary caller-submitted RPC.
	KindDefault Kind = iota
	// KindHelpGetConfig marks the dedicated outstanding config-fetch
	// sentinel: its own 60s TryDifferentDc timeout (distinct from the
	// generic 30s one), and on that timeout it rotates its own target
	// dc rather than the coordinator's current dc.
	KindHelpGetConfig
)

// Token is the unique monotone 32-bit id assigned to a request at
// submission (§3 Request).
type Token uint32

var tokenCounter uint32

// NextToken returns a fresh, process-wide unique token.
func NextToken() Token {
	return Token(atomic.AddUint32(&tokenCounter, 1))
}

// CompletionFunc is invoked exactly once with either a decoded result or
// an error (§3 Request invariant, §9 Design Notes "Callbacks and
// lifetimes").
type CompletionFunc func(result wire.Object, err error)

// QuickAckFunc is invoked when the server's abbreviated quick-ack
// arrives, before the full response (§3 NeedQuickAck).
type QuickAckFunc func()

// Request is one outstanding RPC, from submission to terminal state.
type Request struct {
	Token Token

	RawPayload     wire.Object // as supplied by the caller
	WrappedPayload wire.Object // after layering/gzip/invoke-after wrapping

	DatacenterID int32 // 0 means "current"
	Class        connection.Class
	Flags        Flags

	MessageID     int64 // 0 until first dispatch
	MessageSeqNo  int32
	LastConnToken int32

	RetryCount         int
	LastResendAt       time.Time
	MinStartTime       time.Time
	FailedByFloodWait  int32 // seconds, 0 if not flood-waited
	ServerFailureCount int

	StartedMonotonic time.Time
	StartedAt        time.Time

	OnComplete CompletionFunc
	OnQuickAck QuickAckFunc
	OnWrite    func()

	Status Status

	IsInitRequest      bool
	IsInitMediaRequest bool

	Kind Kind // KindDefault unless this is a named well-known sentinel

	GUID uint32 // 0 if unbound
}

// New constructs a queued Request. Dispatch assigns MessageID/SeqNo on
// first successful send.
func New(payload wire.Object, dc int32, class connection.Class, flags Flags) *Request {
	now := time.Now()
	return &Request{
		Token:            NextToken(),
		RawPayload:       payload,
		WrappedPayload:   payload,
		DatacenterID:     dc,
		Class:            class,
		Flags:            flags,
		Status:           StatusQueued,
		StartedMonotonic: now,
		StartedAt:        now,
	}
}

// Dispatch moves the request into the running state with a fresh
// message id and seqno (§3 Request "Lifecycle").
func (r *Request) Dispatch(msgID int64, seqNo int32, connToken int32) {
	r.MessageID = msgID
	r.MessageSeqNo = seqNo
	r.LastConnToken = connToken
	r.Status = StatusRunning
	r.LastResendAt = time.Now()
}

// Complete invokes OnComplete exactly once and marks the request
// terminal. Per §9 "move the callback out of the Request at the moment
// of dispatch-to-callback", the callback is cleared before it runs so a
// re-entrant sendRequest from inside it cannot observe a half-torn-down
// request.
func (r *Request) Complete(result wire.Object, err error) {
	if r.Status == StatusCompleted || r.Status == StatusCancelled {
		return
	}
	r.Status = StatusCompleted

	cb := r.OnComplete
	r.OnComplete = nil
	if cb != nil {
		cb(result, err)
	}
}

// Cancel marks the request cancelled without invoking OnComplete, per §5
// "a cancel that races with a completion is a no-op": on a request that
// is already completed or cancelled it does nothing.
func (r *Request) Cancel() {
	if r.Status == StatusCompleted || r.Status == StatusCancelled {
		return
	}
	r.Status = StatusCancelled
	r.OnComplete = nil
}

// Fail is Complete's error-only counterpart, kept distinct so callers
// reading a trace can tell a transport/retry failure from a decoded
// server result.
func (r *Request) Fail(err error) {
	r.Complete(nil, err)
}

// NotifyQuickAck invokes OnQuickAck if set, at most meaningfully once
// per request (the server may repeat it; callers are idempotent).
func (r *Request) NotifyQuickAck() {
	if r.OnQuickAck != nil {
		r.OnQuickAck()
	}
}

// Terminal reports whether the request has reached a terminal status.
func (r *Request) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}
