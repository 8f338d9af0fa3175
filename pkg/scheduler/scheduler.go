// Package scheduler implements the discrete-event engine: a min-heap of
// pending events ordered by (time, sequence), popped and invoked one at a
// time on a single goroutine. No event handler runs concurrently with
// another — spec §5's single-threaded cooperative model — so handlers may
// freely mutate shared device/gateway state without locks.
//
// The heap itself follows the lazy-priority-queue idiom of a Dijkstra
// min-heap: a container/heap.Interface over a slice of *event, ordered by
// a Less that compares (time, sequence) lexicographically. Unlike a
// shortest-path heap there is no "stale entry" concept here — every pushed
// event is meant to fire exactly once — so Engine carries no visited set,
// only the heap and a monotonic sequence counter for FIFO tiebreaking.
package scheduler

import (
	"container/heap"
)

// Handler is the work an event performs when it fires. It receives the
// engine so it may schedule further events (e.g. a transmission's next
// phase) as part of its own execution.
type Handler func(e *Engine)

// event is one pending entry in the engine's heap.
type event struct {
	timeMs float64
	seq    uint64
	fn     Handler
}

// eventPQ is a min-heap of *event ordered by (timeMs, seq) ascending, so
// events at equal simulated time fire in the order they were scheduled.
type eventPQ []*event

func (pq eventPQ) Len() int { return len(pq) }

func (pq eventPQ) Less(i, j int) bool {
	if pq[i].timeMs != pq[j].timeMs {
		return pq[i].timeMs < pq[j].timeMs
	}
	return pq[i].seq < pq[j].seq
}

func (pq eventPQ) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *eventPQ) Push(x interface{}) { *pq = append(*pq, x.(*event)) }

func (pq *eventPQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// Engine owns the event heap and the current simulated clock. It is not
// safe for concurrent use; spec §5 requires exactly one goroutine driving
// it.
type Engine struct {
	pq      eventPQ
	nowMs   float64
	nextSeq uint64
}

// New returns an Engine with an empty heap and the clock at zero.
func New() *Engine {
	e := &Engine{pq: make(eventPQ, 0, 64)}
	heap.Init(&e.pq)
	return e
}

// Now returns the current simulated time in milliseconds: the time of the
// event most recently popped and invoked, or zero before the first Run.
func (e *Engine) Now() float64 { return e.nowMs }

// At schedules fn to run at absolute simulated time timeMs. Scheduling an
// event in the past (timeMs < e.Now()) is a caller error the reference
// transmission loop never produces, since every delay is non-negative; the
// engine does not defend against it; it simply fires at the front of the
// next pop.
func (e *Engine) At(timeMs float64, fn Handler) {
	heap.Push(&e.pq, &event{timeMs: timeMs, seq: e.nextSeq, fn: fn})
	e.nextSeq++
}

// After schedules fn to run delayMs after the current simulated time.
func (e *Engine) After(delayMs float64, fn Handler) {
	e.At(e.nowMs+delayMs, fn)
}

// Len returns the number of pending events.
func (e *Engine) Len() int { return e.pq.Len() }

// Run pops and invokes events in (time, sequence) order until the heap is
// empty or untilMs is passed, whichever comes first. Events at exactly
// untilMs still fire. A handler that schedules new events at or before
// untilMs extends the run; events scheduled after untilMs are left
// pending and the heap is not drained.
func (e *Engine) Run(untilMs float64) {
	for e.pq.Len() > 0 {
		if e.pq[0].timeMs > untilMs {
			return
		}
		item := heap.Pop(&e.pq).(*event)
		e.nowMs = item.timeMs
		item.fn(e)
	}
}

// RunAll drains every pending event, including ones scheduled by handlers
// while draining. Used by components (tests, short scenarios) with a
// naturally terminating event sequence rather than a fixed horizon.
func (e *Engine) RunAll() {
	for e.pq.Len() > 0 {
		item := heap.Pop(&e.pq).(*event)
		e.nowMs = item.timeMs
		item.fn(e)
	}
}
