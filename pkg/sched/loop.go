// Package sched provides the single logical game-thread the rest of the
// service runs on. All mutable gameplay state (checks, freezes, presence)
// is owned by one Loop; external callers marshal work onto it with Submit
// or Do instead of taking locks.
package sched

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Loop is a cooperative scheduler executing submitted and timed tasks one
// at a time. In real mode a background goroutine drives it off a Clock; a
// manual loop is driven explicitly with Advance, which makes timer
// behaviour deterministic under test.
type Loop struct {
	clock  Clock
	logger *logrus.Logger

	mu       sync.Mutex
	tasks    taskHeap
	seq      uint64
	manual   bool
	now      time.Time
	draining bool

	wakeCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewLoop returns a loop driven by the given clock. Call Start to begin
// executing tasks and Stop to shut it down.
func NewLoop(clock Clock, logger *logrus.Logger) *Loop {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loop{
		clock:  clock,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// NewManual returns a loop with no background goroutine. Time only moves
// when Advance is called; Submit executes due tasks inline.
func NewManual(start time.Time) *Loop {
	l := &Loop{
		logger: logrus.StandardLogger(),
		manual: true,
		now:    start,
	}
	l.clock = l
	return l
}

// Now returns the loop's current time. For a manual loop this is the
// simulated instant; otherwise it delegates to the clock.
func (l *Loop) Now() time.Time {
	if !l.manual {
		return l.clock.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Submit queues fn to run on the loop as soon as possible.
func (l *Loop) Submit(fn func()) *Task {
	return l.schedule(fn, 0, 0)
}

// RunOnce queues fn to run once after delay.
func (l *Loop) RunOnce(delay time.Duration, fn func()) *Task {
	return l.schedule(fn, delay, 0)
}

// RunRepeating queues fn to run after delay and then every period until the
// returned task is cancelled.
func (l *Loop) RunRepeating(delay, period time.Duration, fn func()) *Task {
	if period <= 0 {
		return l.schedule(fn, delay, 0)
	}
	return l.schedule(fn, delay, period)
}

// Do runs fn on the loop and blocks until it has completed. It must not be
// called from a task already running on the loop.
func (l *Loop) Do(fn func()) {
	done := make(chan struct{})
	l.Submit(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (l *Loop) schedule(fn func(), delay, period time.Duration) *Task {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	l.seq++
	t := &Task{
		loop:   l,
		fn:     fn,
		fireAt: l.currentLocked().Add(delay),
		period: period,
		seq:    l.seq,
		index:  -1,
	}
	heap.Push(&l.tasks, t)
	l.mu.Unlock()

	if l.manual {
		l.drain(l.Now())
	} else {
		l.wake()
	}
	return t
}

func (l *Loop) currentLocked() time.Time {
	if l.manual {
		return l.now
	}
	return l.clock.Now()
}

func (l *Loop) cancel(t *Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	if t.index >= 0 {
		heap.Remove(&l.tasks, t.index)
	}
}

func (l *Loop) isCancelled(t *Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return t.cancelled
}

// Advance moves a manual loop's clock forward by d, firing every task due
// in that window in order. Each task observes Now() as its own fire time.
func (l *Loop) Advance(d time.Duration) {
	if !l.manual {
		panic("sched: Advance called on a real-time loop")
	}
	l.mu.Lock()
	target := l.now.Add(d)
	l.mu.Unlock()
	l.drain(target)
	l.mu.Lock()
	if target.After(l.now) {
		l.now = target
	}
	l.mu.Unlock()
}

// drain runs every task due at or before target. Re-entrant calls from task
// callbacks fall through; the outer drain picks up anything they queued.
func (l *Loop) drain(target time.Time) {
	l.mu.Lock()
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true
	for {
		if len(l.tasks) == 0 || l.tasks[0].fireAt.After(target) {
			break
		}
		t := heap.Pop(&l.tasks).(*Task)
		if t.cancelled {
			continue
		}
		if l.manual && t.fireAt.After(l.now) {
			l.now = t.fireAt
		}
		l.mu.Unlock()
		l.safeRun(t)
		l.mu.Lock()
		if t.period > 0 && !t.cancelled {
			t.fireAt = t.fireAt.Add(t.period)
			heap.Push(&l.tasks, t)
		}
	}
	l.draining = false
	l.mu.Unlock()
}

// Start launches the loop goroutine. It is a no-op for manual loops.
func (l *Loop) Start() {
	if l.manual {
		return
	}
	go l.run()
}

// Stop terminates the loop goroutine and waits for it to exit. Pending
// tasks are discarded.
func (l *Loop) Stop() {
	if l.manual {
		return
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

func (l *Loop) run() {
	defer close(l.doneCh)
	for {
		l.mu.Lock()
		var timerC <-chan time.Time
		var timer *time.Timer
		if len(l.tasks) > 0 {
			d := time.Until(l.tasks[0].fireAt)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}
		l.mu.Unlock()

		select {
		case <-l.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-l.wakeCh:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
		l.drain(l.clock.Now())
	}
}

func (l *Loop) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *Loop) safeRun(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("recovered panic in scheduled task")
		}
	}()
	t.fn()
}
