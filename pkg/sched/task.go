package sched

import "time"

// Task is a handle to a scheduled function. Cancel is idempotent and safe to
// call from the loop goroutine or from task callbacks.
type Task struct {
	loop      *Loop
	fn        func()
	fireAt    time.Time
	period    time.Duration // 0 for one-shot
	seq       uint64
	cancelled bool
	index     int // heap index, -1 when not queued
}

// Cancel marks the task so it never fires again. Cancelling an already
// cancelled or already fired one-shot task is a no-op.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.loop.cancel(t)
}

// Cancelled reports whether Cancel has been called on the task.
func (t *Task) Cancelled() bool {
	return t.loop.isCancelled(t)
}

// taskHeap orders tasks by fire time, breaking ties by submission order so
// tasks scheduled for the same instant run in the order they were created.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
