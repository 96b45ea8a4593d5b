package room

import (
	"container/heap"
	"time"
)

// Timer is a callback scheduled on the room's own tick loop.
type Timer struct {
	at      time.Time
	fn      func()
	seq     uint64
	index   int
	stopped bool
	queue   *timerQueue
}

// Stop cancels the timer and drops it from the queue. It reports whether
// the timer was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	if t.queue != nil && t.index >= 0 {
		heap.Remove(t.queue, t.index)
	}
	return true
}

// timerQueue orders timers by due time, then by scheduling order.
type timerQueue struct {
	items []*Timer
	seq   uint64
}

func (q *timerQueue) Len() int { return len(q.items) }
func (q *timerQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.at.Equal(b.at) {
		return a.seq < b.seq
	}
	return a.at.Before(b.at)
}
func (q *timerQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}
func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(q.items)
	q.items = append(q.items, t)
}
func (q *timerQueue) Pop() any {
	n := len(q.items)
	t := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	t.index = -1
	return t
}

func (q *timerQueue) clear() {
	for _, t := range q.items {
		t.stopped = true
		t.index = -1
	}
	q.items = nil
}

// After runs fn on the room goroutine once d has elapsed on the room clock.
// Timers fire at the start of the first tick at or after their due time.
func (r *Room) After(d time.Duration, fn func()) *Timer {
	t := &Timer{at: r.clock.Now().Add(d), fn: fn, seq: r.timers.seq, index: -1, queue: &r.timers}
	if r.destroyed {
		t.stopped = true
		return t
	}
	r.timers.seq++
	heap.Push(&r.timers, t)
	return t
}

// runTimers fires every timer due at now, including timers scheduled by
// the callbacks themselves.
func (r *Room) runTimers(now time.Time) {
	for r.timers.Len() > 0 && !r.destroyed {
		next := r.timers.items[0]
		if next.at.After(now) {
			return
		}
		heap.Pop(&r.timers)
		if next.stopped {
			continue
		}
		next.stopped = true
		next.fn()
	}
}
