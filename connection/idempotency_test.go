package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyTrackerStates(t *testing.T) {
	tr := NewIdempotencyTracker()

	assert.Equal(t, IdempotencyUnseen, tr.Check(100))

	tr.MarkCompleted(100)
	assert.Equal(t, IdempotencyDeliveredComplete, tr.Check(100))
}

func TestMarkNeedsResessionTriggersOnSecondOccurrence(t *testing.T) {
	tr := NewIdempotencyTracker()

	first := tr.MarkNeedsResession(200)
	assert.False(t, first, "first occurrence should not trigger re-session")

	second := tr.MarkNeedsResession(200)
	assert.True(t, second, "second occurrence should trigger re-session")
}

func TestBatcherFlushesAtLimit(t *testing.T) {
	b := NewBatcher(100)

	shouldFlush := b.Append(NetworkMessage{MsgID: 1, SizeHint: 40})
	assert.False(t, shouldFlush)

	shouldFlush = b.Append(NetworkMessage{MsgID: 2, SizeHint: 70})
	assert.True(t, shouldFlush)

	msgs := b.Drain()
	assert.Len(t, msgs, 2)
	assert.Equal(t, 0, b.Count())
}
