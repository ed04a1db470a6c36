package reactor

import (
	"container/heap"
	"time"
)

// TimerID identifies a scheduled timer so it can be cancelled.
type TimerID uint64

type timerEntry struct {
	id    TimerID
	when  time.Time
	fn    func()
	index int
}

// timerHeap is a min-heap of scheduled timers, ordered by firing time.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timers wraps a timerHeap with id-based lookup for cancellation. Not
// goroutine-safe; callers must only touch it from the reactor thread.
type timers struct {
	heap   timerHeap
	byID   map[TimerID]*timerEntry
	nextID TimerID
}

func newTimers() *timers {
	return &timers{byID: make(map[TimerID]*timerEntry)}
}

// add schedules fn to run at when, returning an id usable with cancel.
func (t *timers) add(when time.Time, fn func()) TimerID {
	t.nextID++
	id := t.nextID
	e := &timerEntry{id: id, when: when, fn: fn}
	t.byID[id] = e
	heap.Push(&t.heap, e)
	return id
}

// cancel removes a pending timer. Returns false if it already fired or
// never existed.
func (t *timers) cancel(id TimerID) bool {
	e, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	heap.Remove(&t.heap, e.index)
	return true
}

// nextDeadline reports the time of the earliest pending timer, and
// whether one exists.
func (t *timers) nextDeadline() (time.Time, bool) {
	if len(t.heap) == 0 {
		return time.Time{}, false
	}
	return t.heap[0].when, true
}

// runExpired fires (and removes) every timer due at or before now. The
// callback is invoked after the entry is popped, so a timer function that
// reschedules itself by calling add is safe.
func (t *timers) runExpired(now time.Time, exec func(func())) {
	for len(t.heap) > 0 && !t.heap[0].when.After(now) {
		e := heap.Pop(&t.heap).(*timerEntry)
		delete(t.byID, e.id)
		exec(e.fn)
	}
}
