package scheduler

import "testing"

func TestRunAllFiresInTimeOrder(t *testing.T) {
	e := New()
	var order []int

	e.At(30, func(e *Engine) { order = append(order, 3) })
	e.At(10, func(e *Engine) { order = append(order, 1) })
	e.At(20, func(e *Engine) { order = append(order, 2) })

	e.RunAll()

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

// FIFO tiebreak: equal-time events fire in scheduling order.
func TestEqualTimeFIFOOrder(t *testing.T) {
	e := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		e.At(100, func(e *Engine) { order = append(order, i) })
	}
	e.RunAll()
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestAfterUsesCurrentClock(t *testing.T) {
	e := New()
	var fired float64
	e.At(50, func(e *Engine) {
		e.After(25, func(e *Engine) { fired = e.Now() })
	})
	e.RunAll()
	if fired != 75 {
		t.Errorf("fired at %v, want 75", fired)
	}
}

func TestRunStopsAtHorizon(t *testing.T) {
	e := New()
	var ran []float64
	e.At(10, func(e *Engine) { ran = append(ran, 10) })
	e.At(200, func(e *Engine) { ran = append(ran, 200) })

	e.Run(100)

	if len(ran) != 1 || ran[0] != 10 {
		t.Fatalf("expected only the time=10 event to fire by horizon 100, got %v", ran)
	}
	if e.Len() != 1 {
		t.Errorf("expected 1 pending event left in heap, got %d", e.Len())
	}
}

func TestHandlerCanScheduleMoreEvents(t *testing.T) {
	e := New()
	count := 0
	var chain Handler
	chain = func(e *Engine) {
		count++
		if count < 5 {
			e.After(1, chain)
		}
	}
	e.At(0, chain)
	e.RunAll()
	if count != 5 {
		t.Errorf("expected chain to run 5 times, got %d", count)
	}
}
