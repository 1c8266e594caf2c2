package request

import (
	"sync"

	"github.com/teranos/mtcore/connection"
)

// Admission caps per §4.F/§5: at most this many requests of each class
// may be running at once across the instance (downloads: per datacenter).
const (
	MaxGenericRunning       = 60
	MaxDownloadRunningPerDc = 6
	MaxDownloadForced       = 10 // ForceDownload flag raises the ceiling
	MaxUploadRunning        = 10
)

// Registry holds the queue/running split described in §4.F: two ordered
// collections, a GUID index for grouped cancellation, and a quick-ack
// index keyed by the server's 31-bit ack key. The split mirrors
// pulse/async/queue.go's Queue, which also separates "not yet picked up"
// from "running" and notifies subscribers on every transition —
// generalized here from a database-backed job queue to an in-memory
// slice-ordered request registry (no persistence; a disconnect replays
// from queue, it doesn't need durable storage).
type Registry struct {
	mu sync.Mutex

	queue   []*Request
	running []*Request

	byToken map[Token]*Request

	// guidIndex maps a caller GUID to the tokens bound to it, supporting
	// cancelRequestsForGuid (§4.F).
	guidIndex map[uint32]map[Token]struct{}

	// quickAckIndex maps a server quick-ack key to every token whose
	// outgoing frame requested that ack (§4.F).
	quickAckIndex map[uint32][]Token
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byToken:       make(map[Token]*Request),
		guidIndex:     make(map[uint32]map[Token]struct{}),
		quickAckIndex: make(map[uint32][]Token),
	}
}

// Enqueue adds r to the queue collection. r must not already be known to
// the registry (§3 Request invariant: unique token, not simultaneously in
// queue and running).
func (reg *Registry) Enqueue(r *Request) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.queue = append(reg.queue, r)
	reg.byToken[r.Token] = r
	if r.GUID != 0 {
		reg.bindGuidLocked(r.Token, r.GUID)
	}
}

func (reg *Registry) bindGuidLocked(token Token, guid uint32) {
	set, ok := reg.guidIndex[guid]
	if !ok {
		set = make(map[Token]struct{})
		reg.guidIndex[guid] = set
	}
	set[token] = struct{}{}
}

// BindToGuid groups an already-registered token under guid, supporting
// bindRequestToGuid (§6 External Interfaces).
func (reg *Registry) BindToGuid(token Token, guid uint32) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.byToken[token]
	if !ok {
		return
	}
	r.GUID = guid
	reg.bindGuidLocked(token, guid)
}

// PromoteToRunning moves r from queue to running, removing it from the
// queue slice. It is the Coordinator's Phase 4 hook after a successful
// dispatch.
func (reg *Registry) PromoteToRunning(token Token) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for i, r := range reg.queue {
		if r.Token == token {
			reg.queue = append(reg.queue[:i], reg.queue[i+1:]...)
			reg.running = append(reg.running, r)
			return
		}
	}
}

// DemoteToQueue moves r from running back to queue, used when
// TryDifferentDc's timeout trips or a request needs re-wrapping before
// its next dispatch (§4.G Phase 1).
func (reg *Registry) DemoteToQueue(token Token) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for i, r := range reg.running {
		if r.Token == token {
			reg.running = append(reg.running[:i], reg.running[i+1:]...)
			r.Status = StatusQueued
			reg.queue = append(reg.queue, r)
			return
		}
	}
}

// Remove drops token from whichever collection holds it and from every
// index. Call after a request reaches a terminal state.
func (reg *Registry) Remove(token Token) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.byToken[token]
	if !ok {
		return
	}
	delete(reg.byToken, token)

	reg.queue = removeToken(reg.queue, token)
	reg.running = removeToken(reg.running, token)

	if r.GUID != 0 {
		if set, ok := reg.guidIndex[r.GUID]; ok {
			delete(set, token)
			if len(set) == 0 {
				delete(reg.guidIndex, r.GUID)
			}
		}
	}

	for key, tokens := range reg.quickAckIndex {
		filtered := tokens[:0]
		for _, t := range tokens {
			if t != token {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) == 0 {
			delete(reg.quickAckIndex, key)
		} else {
			reg.quickAckIndex[key] = filtered
		}
	}
}

func removeToken(list []*Request, token Token) []*Request {
	for i, r := range list {
		if r.Token == token {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Get returns the request for token, if known.
func (reg *Registry) Get(token Token) (*Request, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byToken[token]
	return r, ok
}

// Queued returns a snapshot of the queue collection.
func (reg *Registry) Queued() []*Request {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Request, len(reg.queue))
	copy(out, reg.queue)
	return out
}

// Running returns a snapshot of the running collection.
func (reg *Registry) Running() []*Request {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Request, len(reg.running))
	copy(out, reg.running)
	return out
}

// RunningCount returns the number of running requests matching class on
// datacenter dc. dc == 0 counts across every datacenter.
func (reg *Registry) RunningCount(dc int32, class connection.Class) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	n := 0
	for _, r := range reg.running {
		if r.Class == class && (dc == 0 || r.DatacenterID == dc) {
			n++
		}
	}
	return n
}

// TokensForGuid returns every token currently bound to guid, supporting
// cancelRequestsForGuid (§4.F, §9 Design Notes on the guid-removal
// off-by-one: the fix here is simply to remove the token from the
// guid's own set and drop the set when it empties, never indexing back
// through a second map).
func (reg *Registry) TokensForGuid(guid uint32) []Token {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	set, ok := reg.guidIndex[guid]
	if !ok {
		return nil
	}
	out := make([]Token, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// RegisterQuickAck records that the frame carrying token requested a
// quick-ack under ackKey, so NotifyQuickAck(ackKey) can find it later.
func (reg *Registry) RegisterQuickAck(ackKey uint32, token Token) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.quickAckIndex[ackKey] = append(reg.quickAckIndex[ackKey], token)
}

// NotifyQuickAck invokes OnQuickAck for every request registered under
// ackKey and clears the index entry (a quick-ack is delivered once).
func (reg *Registry) NotifyQuickAck(ackKey uint32) {
	reg.mu.Lock()
	tokens := reg.quickAckIndex[ackKey]
	delete(reg.quickAckIndex, ackKey)
	requests := make([]*Request, 0, len(tokens))
	for _, t := range tokens {
		if r, ok := reg.byToken[t]; ok {
			requests = append(requests, r)
		}
	}
	reg.mu.Unlock()

	for _, r := range requests {
		r.NotifyQuickAck()
	}
}

// AdmissionCap returns the running-count ceiling for class, honoring
// ForceDownload's raised download ceiling (§3 Request flags).
func AdmissionCap(class connection.Class, flags Flags) int {
	switch class {
	case connection.Download:
		if flags.Has(ForceDownload) {
			return MaxDownloadForced
		}
		return MaxDownloadRunningPerDc
	case connection.Upload:
		return MaxUploadRunning
	default:
		return MaxGenericRunning
	}
}
