package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTaskOnLoopGoroutine(t *testing.T) {
	l := New(TickHooks{})
	l.Start(context.Background())
	defer l.Stop()

	done := make(chan struct{})
	l.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted task never ran")
	}
}

func TestScheduleAtFires(t *testing.T) {
	l := New(TickHooks{})
	l.Start(context.Background())
	defer l.Stop()

	var fired int32
	l.ScheduleAt(time.Now().Add(20*time.Millisecond), func() {
		atomic.AddInt32(&fired, 1)
	})

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCancelSkipsScheduledEvent(t *testing.T) {
	l := New(TickHooks{})
	l.Start(context.Background())
	defer l.Stop()

	var fired int32
	e := l.ScheduleAt(time.Now().Add(50*time.Millisecond), func() {
		atomic.AddInt32(&fired, 1)
	})
	l.Cancel(e)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestCheckTimeoutHookRunsEachTick(t *testing.T) {
	var calls int32
	l := New(TickHooks{
		CheckTimeout: func(now time.Time) { atomic.AddInt32(&calls, 1) },
	})
	l.Start(context.Background())
	defer l.Stop()

	l.Wake()
	time.Sleep(100 * time.Millisecond)

	require.True(t, atomic.LoadInt32(&calls) > 0)
}
