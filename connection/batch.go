package connection

import (
	"sync"

	"github.com/teranos/mtcore/wire"
)

// MaxBatchBytes is the approximate outgoing-frame batching ceiling: a
// batch is flushed once it would exceed this size, to amortize crypto
// overhead (§4.E "batches up to ~3 KiB of messages into one encrypted
// payload").
const MaxBatchBytes = 3 * 1024

// NetworkMessage is one outgoing message produced by the coordinator,
// ready to be wrapped into a datacenter frame (§4.G Phase 4).
type NetworkMessage struct {
	MsgID       int64
	SeqNo       int32
	Body        wire.Object
	SizeHint    int // approximate serialized size, used for batch accounting
	InvokeAfter bool
}

// Batcher accumulates outgoing NetworkMessages per connection up to
// MaxBatchBytes, reusing slice capacity across flushes the way
// server/wslogs/batch.go's log-message Batcher does, generalized from log
// lines to wire-level messages.
type Batcher struct {
	mu       sync.Mutex
	messages []NetworkMessage
	size     int
	limit    int
}

// NewBatcher returns an empty Batcher with the given byte limit.
func NewBatcher(limit int) *Batcher {
	return &Batcher{
		messages: make([]NetworkMessage, 0, 16),
		limit:    limit,
	}
}

// Append adds msg to the batch. It returns true if the batch is now at or
// over its byte limit and should be flushed.
func (b *Batcher) Append(msg NetworkMessage) (shouldFlush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	b.size += msg.SizeHint
	return b.size >= b.limit
}

// Drain returns all batched messages and resets the batch, reusing the
// underlying slice's capacity.
func (b *Batcher) Drain() []NetworkMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.messages) == 0 {
		return nil
	}
	out := make([]NetworkMessage, len(b.messages))
	copy(out, b.messages)

	b.messages = b.messages[:0]
	b.size = 0
	return out
}

// Count returns the number of messages currently batched.
func (b *Batcher) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}
