package request

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/wire"
)

func TestCompleteFiresCallbackExactlyOnce(t *testing.T) {
	r := New(nil, 2, connection.Generic, 0)
	calls := 0
	r.OnComplete = func(result wire.Object, err error) { calls++ }

	r.Complete(nil, nil)
	r.Complete(nil, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusCompleted, r.Status)
}

func TestCancelRacingCompletionIsNoOp(t *testing.T) {
	r := New(nil, 2, connection.Generic, 0)
	calls := 0
	r.OnComplete = func(result wire.Object, err error) { calls++ }

	r.Complete(nil, nil)
	r.Cancel()

	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusCompleted, r.Status, "a cancel racing a completion must not override the terminal state")
}

func TestDispatchMovesToRunning(t *testing.T) {
	r := New(nil, 2, connection.Generic, WithoutLogin)
	assert.Equal(t, StatusQueued, r.Status)

	r.Dispatch(1000, 2, 1)
	assert.Equal(t, StatusRunning, r.Status)
	assert.Equal(t, int64(1000), r.MessageID)
}

func TestTerminalStates(t *testing.T) {
	r := New(nil, 2, connection.Generic, 0)
	assert.False(t, r.Terminal())

	r.Cancel()
	assert.True(t, r.Terminal())
}
