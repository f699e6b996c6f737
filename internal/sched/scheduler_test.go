package sched

import "testing"

func TestRunDueOrdersByTimeThenInsertion(t *testing.T) {
	s := New()
	var order []string
	s.At(Race, 200, "b", func(float64) { order = append(order, "b") })
	s.At(Race, 100, "a", func(float64) { order = append(order, "a") })
	s.At(Race, 200, "c", func(float64) { order = append(order, "c") })

	if n := s.RunDue(Race, 150); n != 1 {
		t.Fatalf("expected 1 event at 150, got %d", n)
	}
	if n := s.RunDue(Race, 200); n != 2 {
		t.Fatalf("expected 2 events at 200, got %d", n)
	}

	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestClocksAreIndependent(t *testing.T) {
	s := New()
	fired := 0
	s.At(Race, 10, "race", func(float64) { fired++ })

	if n := s.RunDue(Frame, 1000); n != 0 {
		t.Fatalf("frame clock fired race event")
	}
	if s.Pending(Race) != 1 {
		t.Fatalf("race event should still be pending")
	}
	s.RunDue(Race, 10)
	if fired != 1 {
		t.Fatalf("race event did not fire")
	}
}

func TestCancel(t *testing.T) {
	s := New()
	fired := false
	id := s.At(Frame, 5, "x", func(float64) { fired = true })

	if !s.Scheduled(id) {
		t.Fatalf("event should be scheduled")
	}
	if !s.Cancel(id) {
		t.Fatalf("cancel should report a pending event")
	}
	if s.Cancel(id) {
		t.Fatalf("second cancel should report false")
	}
	s.RunDue(Frame, 100)
	if fired {
		t.Fatalf("cancelled event fired")
	}
	if s.Cancel(0) {
		t.Fatalf("zero id must never be pending")
	}
}

func TestEveryRepeatsAndStops(t *testing.T) {
	s := New()
	var at []float64
	s.Every(Frame, 1000, 1000, 4, "countdown", func(t float64) { at = append(at, t) })

	s.RunDue(Frame, 2500)
	if len(at) != 2 {
		t.Fatalf("expected 2 ticks by 2500, got %v", at)
	}
	s.RunDue(Frame, 10000)
	if len(at) != 4 {
		t.Fatalf("expected 4 ticks total, got %v", at)
	}
	if at[3] != 4000 {
		t.Errorf("last tick at %v, want 4000", at[3])
	}
	if s.Pending(Frame) != 0 {
		t.Errorf("repeating event should be gone after its last tick")
	}
}

func TestEveryCancelledFromCallback(t *testing.T) {
	s := New()
	count := 0
	var id ID
	id = s.Every(Frame, 0, 10, Forever, "tick", func(float64) {
		count++
		if count == 3 {
			s.Cancel(id)
		}
	})
	s.RunDue(Frame, 1000)
	if count != 3 {
		t.Fatalf("expected 3 ticks before self-cancel, got %d", count)
	}
}

func TestInvalidateDropsEverything(t *testing.T) {
	s := New()
	fired := 0
	id := s.At(Race, 1, "a", func(float64) { fired++ })
	s.At(Frame, 1, "b", func(float64) { fired++ })
	gen := s.Generation()

	s.Invalidate()

	if s.Generation() == gen {
		t.Fatalf("generation should change")
	}
	if s.Scheduled(id) {
		t.Fatalf("invalidated event still scheduled")
	}
	s.RunDue(Race, 10)
	s.RunDue(Frame, 10)
	if fired != 0 {
		t.Fatalf("invalidated events fired %d times", fired)
	}
}

func TestInvalidateInsideCallbackStopsSiblings(t *testing.T) {
	s := New()
	fired := 0
	s.At(Race, 1, "reset", func(float64) { fired++; s.Invalidate() })
	s.At(Race, 2, "stale", func(float64) { fired++ })

	s.RunDue(Race, 5)
	if fired != 1 {
		t.Fatalf("expected only the resetting event to fire, got %d", fired)
	}
}

func TestCallbackSchedulesDueEvent(t *testing.T) {
	s := New()
	var order []string
	s.At(Race, 5, "first", func(at float64) {
		order = append(order, "first")
		s.At(Race, at, "chained", func(float64) { order = append(order, "chained") })
	})
	s.RunDue(Race, 5)
	if len(order) != 2 || order[1] != "chained" {
		t.Fatalf("chained event should fire in the same pass, got %v", order)
	}
}

func TestNextAt(t *testing.T) {
	s := New()
	if _, ok := s.NextAt(Race); ok {
		t.Fatalf("empty queue has no next event")
	}
	s.At(Race, 30, "x", func(float64) {})
	s.At(Race, 20, "y", func(float64) {})
	if at, _ := s.NextAt(Race); at != 20 {
		t.Errorf("NextAt = %v, want 20", at)
	}
}
