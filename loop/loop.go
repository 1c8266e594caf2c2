// Package loop implements the single-threaded, readiness-driven tick
// loop that owns all connection and scheduling state (spec §4.B Event
// Loop). Its Start/Stop/context-cancel shape is grounded on
// pulse/schedule/ticker.go's Ticker, generalized from a fixed 1-second
// SQL-polling ticker to a variable-deadline readiness wait with an
// explicit wakeup channel standing in for the wakeup file descriptor of
// §4.B.
package loop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/teranos/mtcore/logger"
)

// ReadinessEvent is one "this connection has data, or space to write"
// notification, delivered from a connection's own read/write goroutine
// into the loop for single-threaded handling (§4.B step 6).
type ReadinessEvent struct {
	ConnectionID int64
	Fire         func()
}

// timedEvent is one entry of the time-ordered event list (§4.B step 5).
type timedEvent struct {
	deadline time.Time
	fire     func()
	index    int
	cancelled bool
}

type eventHeap []*timedEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *eventHeap) Push(x interface{}) {
	e := x.(*timedEvent)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TickHooks are the callbacks the coordinator registers so the loop can
// remain domain-agnostic about datacenters/requests (§4.B steps 7-8).
type TickHooks struct {
	// CheckTimeout is called once per tick; the hook checks every
	// active connection itself.
	CheckTimeout func(now time.Time)
	// Housekeeping runs push-ping, sleep/resume, queue scan, stale-salt
	// refresh (§4.B step 8).
	Housekeeping func(now time.Time)
	// NextPushPingDeadline bounds the wait per §4.B step 2, or the zero
	// Time if no push ping is pending.
	NextPushPingDeadline func() time.Time
}

// Loop is the event loop described in §4.B.
type Loop struct {
	mu     sync.Mutex
	events eventHeap

	tasks chan func()
	ready chan ReadinessEvent
	wake  chan struct{}

	hooks TickHooks

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New returns an unstarted Loop. Call Start to begin ticking.
func New(hooks TickHooks) *Loop {
	return &Loop{
		tasks: make(chan func(), 256),
		ready: make(chan ReadinessEvent, 256),
		wake:  make(chan struct{}, 1),
		hooks: hooks,
	}
}

// Submit enqueues an arbitrary closure to run on the loop goroutine. Any
// goroutine may call this; it is the only supported way to touch
// loop-owned state from outside (§4.B "All external entry points ...
// enqueue a task and wakeup; they do not touch shared state directly").
func (l *Loop) Submit(task func()) {
	l.tasks <- task
	l.Wake()
}

// NotifyReady delivers a readiness event for dispatch on the next tick.
func (l *Loop) NotifyReady(ev ReadinessEvent) {
	l.ready <- ev
	l.Wake()
}

// Wake unblocks a pending readiness wait without otherwise doing
// anything, mirroring "writing a byte to the wakeup descriptor" (§4.B).
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// ScheduleAt adds a one-shot timed event and returns a handle that can be
// passed to Cancel.
func (l *Loop) ScheduleAt(deadline time.Time, fire func()) *timedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := &timedEvent{deadline: deadline, fire: fire}
	heap.Push(&l.events, e)
	l.Wake()
	return e
}

// Cancel marks a scheduled event as cancelled; it will be skipped when it
// would otherwise fire.
func (l *Loop) Cancel(e *timedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.cancelled = true
}

// Start runs the tick loop on its own goroutine until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.stop = cancel

	l.wg.Add(1)
	go l.run(runCtx)
	logger.Infow("event loop started")
}

// Stop cancels the loop and waits for its goroutine to exit.
func (l *Loop) Stop() {
	if l.stop != nil {
		l.stop()
	}
	l.wg.Wait()
	logger.Infow("event loop stopped")
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		// Step 1: drain the pending-task queue.
		l.drainTasks()

		select {
		case <-ctx.Done():
			return
		default:
		}

		// Step 2: compute the next wake deadline.
		deadline := l.nextDeadline()

		timer := time.NewTimer(time.Until(deadline))

		// Step 3: block on readiness until the deadline or an event.
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-l.wake:
			timer.Stop()
		case ev := <-l.ready:
			timer.Stop()
			l.dispatchReady(ev)
		}

		// Step 4: drain pending-task queue again.
		l.drainTasks()

		now := time.Now()

		// Step 5: fire all expired timed events in order.
		l.fireExpired(now)

		// Step 6: dispatch any further readiness events queued meanwhile.
		l.drainReady()

		// Step 7: per-connection timeout check.
		if l.hooks.CheckTimeout != nil {
			l.hooks.CheckTimeout(now)
		}

		// Step 8: housekeeping.
		if l.hooks.Housekeeping != nil {
			l.hooks.Housekeeping(now)
		}
	}
}

func (l *Loop) drainTasks() {
	for {
		select {
		case t := <-l.tasks:
			t()
		default:
			return
		}
	}
}

func (l *Loop) drainReady() {
	for {
		select {
		case ev := <-l.ready:
			l.dispatchReady(ev)
		default:
			return
		}
	}
}

func (l *Loop) dispatchReady(ev ReadinessEvent) {
	if ev.Fire != nil {
		ev.Fire()
	}
}

func (l *Loop) nextDeadline() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Now().Add(time.Second)

	if l.events.Len() > 0 {
		if earliest := l.events[0].deadline; earliest.Before(deadline) {
			deadline = earliest
		}
	}

	if l.hooks.NextPushPingDeadline != nil {
		if pd := l.hooks.NextPushPingDeadline(); !pd.IsZero() && pd.Before(deadline) {
			deadline = pd
		}
	}

	return deadline
}

func (l *Loop) fireExpired(now time.Time) {
	l.mu.Lock()
	var due []*timedEvent
	for l.events.Len() > 0 && !l.events[0].deadline.After(now) {
		e := heap.Pop(&l.events).(*timedEvent)
		if !e.cancelled {
			due = append(due, e)
		}
	}
	l.mu.Unlock()

	for _, e := range due {
		e.fire()
	}
}
