// Package engine implements the Coordinator: the glue component that
// ties Clock, Datacenter, Connection, and Request Registry together into
// the five-phase scheduler pass and response dispatch described in spec
// §4.G. Its dispatch-by-dynamic-type shape is grounded on
// server/client.go's routeMessage switch, generalized from a JSON
// QueryMessage.Type string to a Go type switch over wire.Object.
package engine

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/mtcore/clock"
	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/loop"
	"github.com/teranos/mtcore/logger"
	"github.com/teranos/mtcore/request"
	"github.com/teranos/mtcore/wire"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	configFetchTimeout       = 60 * time.Second
	maxServerFailureBackoff  = 10 * time.Second
	sessionDestroyMinGap     = 2 * time.Second
	retryLimitErrorCode      = -123

	// defaultAdmissionRPS caps how many queued requests Phase 3 may
	// newly promote to running per second, independent of the per-class
	// admission caps in request.AdmissionCap — a server-friendly pacing
	// limit rather than a concurrency ceiling (§4.F/§4.G Phase 3).
	defaultAdmissionRPS = 50
)

// Delegate receives the host-facing notifications listed in §6 External
// Interfaces ("Delegate callbacks"). Every method is invoked on the loop
// goroutine and must not block.
type Delegate interface {
	OnUpdate(obj wire.Object)
	OnSessionCreated(dc int32)
	OnConnectionStateChanged(dc int32, class connection.Class, state int32)
	OnUnparsedMessageReceived(obj wire.Object)
	OnLogout()
	OnProxyError(err error)
	OnInternalPushReceived(obj wire.Object)
}

// Coordinator is one instance's engine: one Clock, one map of
// datacenters, one Request Registry, driven by one Loop (wired by the
// caller via SetLoop).
type Coordinator struct {
	mu sync.Mutex

	Clock     *clock.Clock
	Registry  *request.Registry
	Delegate  Delegate

	datacenters map[int32]*datacenter.Datacenter
	currentDC   int32
	movingToDC  int32 // 0 (DEFAULT) when no migration is in progress

	userSet bool

	lastSessionDestroyAt time.Time
	pendingDestroySess    []int64

	// lastInvokeAfterMsgID tracks, per connection token, the highest
	// invokeAfter message id sent so later requests can chain onto it
	// (§4.G Phase 4).
	lastInvokeAfterMsgID map[int32]int64

	resendThrottle map[int64]time.Time // per original request, §4.G msg-detailed-info throttle

	pingOnce sync.Once
	ping     *pingState // lazily built; see ping.go

	handshaker   datacenter.Handshaker // external collaborator; see handshake.go
	authExporter AuthExporter          // external collaborator; see migration.go
	currentUserID int64

	// admissionLimiter paces new promotions out of Phase 3 so a
	// reconnect storm or a large queue backlog doesn't burst the server
	// with requests faster than it can answer them.
	admissionLimiter *rate.Limiter

	// loop is the event loop that owns all coordinator state, wired via
	// SetLoop. Goroutines started off the caller's own stack (handshake
	// completion, cross-datacenter authorization) submit their mutations
	// through it instead of touching Datacenter/Registry state from a
	// bare goroutine (§4.B "external entry points enqueue a task ...
	// they do not touch shared state directly", §5).
	loop *loop.Loop

	// unknownDCs records datacenter ids a running request targeted that
	// are not yet registered, for Phase 5 to act on (§4.G Phase 1/5,
	// §9 original_source "config-fetch sentinel").
	unknownDCs map[int32]struct{}
}

// New returns a Coordinator with no datacenters registered yet.
func New(delegate Delegate) *Coordinator {
	return &Coordinator{
		Clock:                clock.New(),
		Registry:             request.NewRegistry(),
		Delegate:             delegate,
		datacenters:          make(map[int32]*datacenter.Datacenter),
		lastInvokeAfterMsgID: make(map[int32]int64),
		resendThrottle:       make(map[int64]time.Time),
		admissionLimiter:     rate.NewLimiter(rate.Limit(defaultAdmissionRPS), defaultAdmissionRPS),
		unknownDCs:           make(map[int32]struct{}),
	}
}

// SetLoop wires the event loop that owns all coordinator state. See the
// Coordinator.loop field comment.
func (c *Coordinator) SetLoop(l *loop.Loop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = l
}

// submit runs fn on the event loop goroutine if one has been wired via
// SetLoop, falling back to a bare goroutine otherwise (e.g. a Coordinator
// exercised directly in tests, without an event loop).
func (c *Coordinator) submit(fn func()) {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	if l != nil {
		l.Submit(fn)
		return
	}
	go fn()
}

// SetCurrentUserID records the logged-in user id used to auto-trigger
// migration (§4.G Response Dispatch rpc_result 303) once an AuthExporter
// has been wired via SetAuthExporter.
func (c *Coordinator) SetCurrentUserID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentUserID = id
}

func (c *Coordinator) noteUnknownDC(id int32) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	c.unknownDCs[id] = struct{}{}
	c.mu.Unlock()
}

// drainUnknownDCs returns and clears the set of datacenter ids recorded
// by noteUnknownDC since the last drain.
func (c *Coordinator) drainUnknownDCs() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unknownDCs) == 0 {
		return nil
	}
	ids := make([]int32, 0, len(c.unknownDCs))
	for id := range c.unknownDCs {
		ids = append(ids, id)
	}
	c.unknownDCs = make(map[int32]struct{})
	return ids
}

// SetAdmissionRate overrides the default Phase 3 promotion pacing,
// letting a host app loosen or tighten it for its own server-friendliness
// policy.
func (c *Coordinator) SetAdmissionRate(perSecond float64, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admissionLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// AddDatacenter registers dc under its id.
func (c *Coordinator) AddDatacenter(dc *datacenter.Datacenter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datacenters[dc.ID] = dc
	if c.currentDC == 0 {
		c.currentDC = dc.ID
	}
}

// Datacenter returns the registered datacenter for id, or nil.
func (c *Coordinator) Datacenter(id int32) *datacenter.Datacenter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.datacenters[id]
}

// CurrentDatacenter returns the datacenter the coordinator currently
// treats as "current" (id 0 resolves to this in request targeting).
func (c *Coordinator) CurrentDatacenter() *datacenter.Datacenter {
	c.mu.Lock()
	id := c.currentDC
	c.mu.Unlock()
	return c.datacenters[id]
}

// SetUserSet records that a user id has been established, enabling
// WithoutLogin-gated requests and §4.G Phase 5's unauthorized-dc export
// step.
func (c *Coordinator) SetUserSet(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userSet = v
}

// SendRequest enqueues r, honoring the Immediate flag by triggering a
// scheduler pass synchronously (§6 sendRequest, §4.G "Invoked ... on
// specific events").
func (c *Coordinator) SendRequest(r *request.Request) request.Token {
	c.Registry.Enqueue(r)
	if r.Flags.Has(request.Immediate) {
		c.ProcessRequestQueue()
	}
	return r.Token
}

// CancelRequest implements §5's asynchronous cancellation: remove from
// queue or running; optionally fire rpc_drop_answer as a side effect.
// The caller is expected to have already hopped onto the loop goroutine
// via Loop.Submit.
func (c *Coordinator) CancelRequest(token request.Token, notifyServer bool) {
	r, ok := c.Registry.Get(token)
	if !ok {
		return
	}
	if r.Terminal() {
		return
	}

	wasRunning := r.Status == request.StatusRunning
	msgID := r.MessageID

	r.Cancel()
	c.Registry.Remove(token)

	if notifyServer && wasRunning && msgID != 0 {
		c.emitDropAnswer(r, msgID)
	}
}

func (c *Coordinator) emitDropAnswer(r *request.Request, msgID int64) {
	dc := c.resolveDC(r.DatacenterID)
	if dc == nil {
		return
	}
	conn := dc.GetConnectionByType(r.Class, false)
	if conn == nil {
		return
	}
	conn.Batcher().Append(connection.NetworkMessage{
		MsgID: c.Clock.GenerateMessageID(),
		SeqNo: conn.NextSeqNo(),
		Body:  wire.RpcDropAnswer{ReqMsgID: msgID},
	})
}

func (c *Coordinator) resolveDC(id int32) *datacenter.Datacenter {
	if id == 0 {
		return c.CurrentDatacenter()
	}
	return c.Datacenter(id)
}

// ProcessRequestQueue runs one scheduler pass: the five phases of §4.G.
// It is meant to be called from the loop's housekeeping hook every tick,
// and synchronously whenever an Immediate request is submitted.
func (c *Coordinator) ProcessRequestQueue() {
	now := time.Now()

	batches := newDispatchBatches()

	c.phase1RunningReview(now, batches)
	c.phase2SessionDestroyPiggyback(now, batches)
	c.phase3QueuedAdmission(now, batches)
	c.phase4DispatchBatches(batches)
	c.phase5Consequences()
}

// dispatchBatches holds the three per-datacenter batch classes named in
// §4.G Phase 4: generic, genericMedia, and temp.
type dispatchBatches struct {
	generic      map[int32][]connection.NetworkMessage
	genericMedia map[int32][]connection.NetworkMessage
	temp         map[int32][]connection.NetworkMessage
}

func newDispatchBatches() *dispatchBatches {
	return &dispatchBatches{
		generic:      make(map[int32][]connection.NetworkMessage),
		genericMedia: make(map[int32][]connection.NetworkMessage),
		temp:         make(map[int32][]connection.NetworkMessage),
	}
}

func (b *dispatchBatches) append(class connection.Class, dc int32, msg connection.NetworkMessage) {
	var bucket map[int32][]connection.NetworkMessage
	switch class {
	case connection.GenericMedia:
		bucket = b.genericMedia
	case connection.Temp:
		bucket = b.temp
	default:
		bucket = b.generic
	}
	bucket[dc] = append(bucket[dc], msg)
}

// phase1RunningReview implements §4.G Phase 1.
func (c *Coordinator) phase1RunningReview(now time.Time, batches *dispatchBatches) {
	for _, r := range c.Registry.Running() {
		dc := c.resolveDC(r.DatacenterID)
		if dc == nil {
			c.noteUnknownDC(r.DatacenterID) // phase 5 ensures a config-fetch sentinel for this
			continue
		}

		timeout := defaultRequestTimeout
		if r.Kind == request.KindHelpGetConfig {
			timeout = configFetchTimeout
		}

		if r.Flags.Has(request.TryDifferentDc) && now.Sub(r.StartedAt) >= timeout {
			c.Registry.DemoteToQueue(r.Token)
			continue
		}

		if !dc.HasAuthKey(r.Class, r.Flags.Has(request.UseUnboundKey)) {
			c.ensureHandshake(dc)
			continue
		}

		mayRetryNow := c.mayRetryNow(r, now, timeout)
		if !mayRetryNow {
			continue
		}

		if r.Class == connection.Download || r.Class == connection.Upload {
			retryCeiling := 6
			if r.Flags.Has(request.ForceDownload) {
				retryCeiling = 10
			}
			if r.FailedByFloodWait > 0 {
				retryCeiling = 1
			}
			if r.RetryCount >= retryCeiling {
				r.Complete(nil, retryLimitError())
				c.Registry.Remove(r.Token)
				continue
			}
		}

		r.RetryCount++
		conn := dc.GetConnectionByType(r.Class, true)
		msgID := c.Clock.GenerateMessageID()
		seqNo := conn.NextSeqNo()
		r.Dispatch(msgID, seqNo, conn.Token())

		msg := connection.NetworkMessage{MsgID: msgID, SeqNo: seqNo, Body: r.WrappedPayload, InvokeAfter: r.Flags.Has(request.InvokeAfter)}
		switch r.Class {
		case connection.Proxy, connection.Download, connection.Upload:
			c.dispatchImmediate(dc, r.Class, msg)
		default:
			batches.append(r.Class, dc.ID, msg)
		}
	}
}

func (c *Coordinator) mayRetryNow(r *request.Request, now time.Time, timeout time.Duration) bool {
	if r.FailedByFloodWait > 0 {
		return now.Sub(r.LastResendAt) >= time.Duration(r.FailedByFloodWait)*time.Second
	}

	age := now.Sub(r.StartedAt)
	if age > timeout && now.After(r.MinStartTime) {
		if r.ServerFailureCount > 0 {
			backoff := time.Duration(r.ServerFailureCount) * time.Second
			if backoff > maxServerFailureBackoff {
				backoff = maxServerFailureBackoff
			}
			return now.Sub(r.LastResendAt) >= backoff
		}
		return true
	}
	return false
}

func retryLimitError() error {
	return &rpcStyleError{code: retryLimitErrorCode, text: "RETRY_LIMIT"}
}

type rpcStyleError struct {
	code int32
	text string
}

func (e *rpcStyleError) Error() string { return e.text }

// phase2SessionDestroyPiggyback implements §4.G Phase 2.
func (c *Coordinator) phase2SessionDestroyPiggyback(now time.Time, batches *dispatchBatches) {
	c.mu.Lock()
	dcID := c.currentDC
	if len(c.pendingDestroySess) == 0 || now.Sub(c.lastSessionDestroyAt) < sessionDestroyMinGap {
		c.mu.Unlock()
		return
	}
	sessID := c.pendingDestroySess[0]
	c.pendingDestroySess = c.pendingDestroySess[1:]
	c.lastSessionDestroyAt = now
	c.mu.Unlock()

	dc := c.Datacenter(dcID)
	if dc == nil {
		return
	}
	conn := dc.GetConnectionByType(connection.Generic, false)
	if conn == nil {
		return
	}

	msgID := c.Clock.GenerateMessageID()
	batches.append(connection.Generic, dcID, connection.NetworkMessage{
		MsgID: msgID,
		SeqNo: conn.NextSeqNo(),
		Body:  wire.DestroySession{SessionID: sessID},
	})
}

// QueueSessionDestroy records a session id to be piggybacked for
// destruction on a future generic batch (§4.G Phase 2).
func (c *Coordinator) QueueSessionDestroy(sessionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDestroySess = append(c.pendingDestroySess, sessionID)
}

// phase3QueuedAdmission implements §4.G Phase 3.
func (c *Coordinator) phase3QueuedAdmission(now time.Time, batches *dispatchBatches) {
	for _, r := range c.Registry.Queued() {
		if r.Status == request.StatusCancelled {
			c.Registry.Remove(r.Token)
			continue
		}

		if r.Flags.Has(request.TryDifferentDc) && now.After(r.MinStartTime) &&
			(r.DatacenterID != 0 || r.Kind == request.KindHelpGetConfig) {
			r.DatacenterID = c.randomNonCDNDatacenter()
		}

		dc := c.resolveDC(r.DatacenterID)
		if dc == nil {
			continue
		}

		admissionCap := request.AdmissionCap(r.Class, r.Flags)
		capDC := int32(0) // generic and upload caps count across every datacenter
		if r.Class == connection.Download {
			capDC = dc.ID
		}
		if c.Registry.RunningCount(capDC, r.Class) >= admissionCap {
			continue // admission cap reached; stays queued
		}

		if !c.admissionLimiter.Allow() {
			continue // pacing limit reached this tick; stays queued
		}

		if r.Flags.Has(request.CanCompress) {
			c.applyCompression(r, nil)
			r.Flags &^= request.CanCompress
		}

		conn := dc.GetConnectionByType(r.Class, true)
		msgID := c.Clock.GenerateMessageID()
		seqNo := conn.NextSeqNo()
		r.Dispatch(msgID, seqNo, conn.Token())
		c.Registry.PromoteToRunning(r.Token)

		msg := connection.NetworkMessage{MsgID: msgID, SeqNo: seqNo, Body: r.WrappedPayload, InvokeAfter: r.Flags.Has(request.InvokeAfter)}
		switch r.Class {
		case connection.Proxy, connection.Download, connection.Upload:
			c.dispatchImmediate(dc, r.Class, msg)
		default:
			batches.append(r.Class, dc.ID, msg)
		}
	}
}

func (c *Coordinator) randomNonCDNDatacenter() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var candidates []int32
	for id, dc := range c.datacenters {
		if !dc.IsCDN {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return c.currentDC
	}
	return candidates[rand.Intn(len(candidates))]
}

// applyCompression is the Phase 3 CanCompress hook (§3 Request flags,
// §4.G Phase 3 "serialize once, attempt gzip, adopt if shorter"). Actual
// serialization of an Object to bytes belongs to the wire codec layer;
// this hook only decides whether to substitute a GzipPacked wrapper once
// that codec hands back a byte payload.
func (c *Coordinator) applyCompression(r *request.Request, serialized []byte) {
	compressed, ok := wire.CanCompress(serialized)
	if !ok {
		return
	}
	r.WrappedPayload = wire.GzipPacked{PackedData: compressed}
}

// dispatchImmediate sends a single message outside the batched classes,
// for Proxy/Download/Upload connections (§4.G Phase 1/3).
func (c *Coordinator) dispatchImmediate(dc *datacenter.Datacenter, class connection.Class, msg connection.NetworkMessage) {
	conn := dc.GetConnectionByType(class, true)
	conn.Batcher().Append(msg)
}

// phase4DispatchBatches implements §4.G Phase 4.
func (c *Coordinator) phase4DispatchBatches(batches *dispatchBatches) {
	c.flushBatchSet(connection.Generic, batches.generic)
	c.flushBatchSet(connection.GenericMedia, batches.genericMedia)
	c.flushBatchSet(connection.Temp, batches.temp)
}

func (c *Coordinator) flushBatchSet(class connection.Class, byDC map[int32][]connection.NetworkMessage) {
	for dcID, msgs := range byDC {
		dc := c.Datacenter(dcID)
		if dc == nil || len(msgs) == 0 {
			continue
		}
		conn := dc.GetConnectionByType(class, true)

		c.wrapInvokeAfterChain(conn, msgs)

		for _, ack := range conn.DrainAcks() {
			msgs = append(msgs, connection.NetworkMessage{
				MsgID: c.Clock.GenerateMessageID(),
				SeqNo: conn.NextSeqNo(),
				Body:  wire.MsgsAck{MsgIDs: []int64{ack}},
			})
		}

		for _, m := range msgs {
			conn.Batcher().Append(m)
		}

		logger.ConnInfow("frame batch ready", "dc", dcID, "class", class.String(), "count", len(msgs))
	}
}

// wrapInvokeAfterChain implements §4.G Phase 4's invoke-after wrapping:
// each message tagged InvokeAfter in the batch is wrapped to point at the
// highest previously sent invoke-after message id on that connection,
// not present in the current batch.
func (c *Coordinator) wrapInvokeAfterChain(conn *connection.Connection, msgs []connection.NetworkMessage) {
	token := conn.Token()

	c.mu.Lock()
	prior, hasPrior := c.lastInvokeAfterMsgID[token]
	c.mu.Unlock()

	inBatch := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if m.InvokeAfter {
			inBatch[m.MsgID] = struct{}{}
		}
	}

	var highest int64
	for i, m := range msgs {
		if !m.InvokeAfter {
			continue
		}
		if _, inCurrent := inBatch[prior]; hasPrior && prior != 0 && !inCurrent {
			msgs[i].Body = wire.InvokeAfterMsg{MsgID: prior, Wrapped: m.Body}
		}
		if m.MsgID > highest {
			highest = m.MsgID
		}
	}

	if highest != 0 {
		c.mu.Lock()
		c.lastInvokeAfterMsgID[token] = highest
		c.mu.Unlock()
	}
}

// phase5Consequences implements §4.G Phase 5: every keyless datacenter
// gets a handshake attempt, every unauthorized non-current datacenter
// gets its authorization exported/imported, and any datacenter id a
// running request couldn't resolve gets a config-fetch sentinel queued
// to (re)discover the table — independent of whether a request happens
// to be waiting on any of the three.
func (c *Coordinator) phase5Consequences() {
	for _, dc := range c.snapshotDatacenters() {
		if !dc.HasAuthKey(connection.Generic, false) {
			c.ensureHandshake(dc)
		}
	}

	if unknown := c.drainUnknownDCs(); len(unknown) > 0 {
		logger.Infow("unknown datacenter id referenced by a request", "ids", unknown)
		c.ensureConfigFetchSentinel()
	}

	if !c.userSet {
		return
	}

	c.mu.Lock()
	currentID, movingID := c.currentDC, c.movingToDC
	c.mu.Unlock()

	for id, dc := range c.snapshotDatacenters() {
		if id == currentID || id == movingID {
			continue
		}
		if !dc.AuthorizedForUser() {
			c.submit(func() { c.authorizeOnOtherDatacenter(id) })
		}
	}
}

// ensureConfigFetchSentinel queues a single outstanding KindHelpGetConfig
// request against the current datacenter, unless one is already
// queued or running (§4.G Phase 5, §9 original_source "config-fetch
// sentinel").
func (c *Coordinator) ensureConfigFetchSentinel() {
	for _, r := range c.Registry.Queued() {
		if r.Kind == request.KindHelpGetConfig {
			return
		}
	}
	for _, r := range c.Registry.Running() {
		if r.Kind == request.KindHelpGetConfig {
			return
		}
	}

	r := request.New(wire.HelpGetConfig{}, 0, connection.Generic, request.TryDifferentDc)
	r.Kind = request.KindHelpGetConfig
	c.Registry.Enqueue(r)
}

func (c *Coordinator) snapshotDatacenters() map[int32]*datacenter.Datacenter {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int32]*datacenter.Datacenter, len(c.datacenters))
	for k, v := range c.datacenters {
		out[k] = v
	}
	return out
}
