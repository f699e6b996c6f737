// Package sched keeps every deferred action of a race in one registry.
//
// Events are ordered by fire time on one of two clocks. The race clock stops
// while a race is paused; the frame clock always advances. Each event has an
// ID that can be cancelled, and the registry carries a generation that is
// bumped on Invalidate so nothing scheduled before a reset can fire after it.
package sched

import (
	"container/heap"
	"math"
)

// Clock selects the time base an event fires against.
type Clock int

const (
	Race Clock = iota
	Frame
)

func (c Clock) String() string {
	switch c {
	case Race:
		return "race"
	case Frame:
		return "frame"
	default:
		return "unknown"
	}
}

// ID identifies a scheduled event. The zero ID is never issued.
type ID uint64

// Action runs when an event fires. at is the time the event was due.
type Action func(at float64)

// Forever repeats an event until it is cancelled.
const Forever = -1

type entry struct {
	id        ID
	clock     Clock
	at        float64
	seq       uint64
	gen       uint64
	name      string
	fn        Action
	interval  float64
	remaining int
	index     int
}

type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Scheduler is not safe for concurrent use; a race owns exactly one.
type Scheduler struct {
	queues [2]queue
	live   map[ID]*entry
	nextID ID
	seq    uint64
	gen    uint64
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{live: make(map[ID]*entry)}
}

// At schedules fn once at the given time on clock.
func (s *Scheduler) At(clock Clock, at float64, name string, fn Action) ID {
	return s.add(clock, at, 0, 1, name, fn)
}

// Every schedules fn at first and then every interval, times in total.
// Pass Forever to repeat until cancelled.
func (s *Scheduler) Every(clock Clock, first, interval float64, times int, name string, fn Action) ID {
	if interval <= 0 || math.IsNaN(interval) {
		times = 1
	}
	if times == 0 {
		return 0
	}
	return s.add(clock, first, interval, times, name, fn)
}

func (s *Scheduler) add(clock Clock, at, interval float64, times int, name string, fn Action) ID {
	if fn == nil || clock < Race || clock > Frame {
		return 0
	}
	if math.IsNaN(at) {
		at = 0
	}
	s.nextID++
	s.seq++
	e := &entry{
		id:        s.nextID,
		clock:     clock,
		at:        at,
		seq:       s.seq,
		gen:       s.gen,
		name:      name,
		fn:        fn,
		interval:  interval,
		remaining: times,
	}
	heap.Push(&s.queues[clock], e)
	s.live[e.id] = e
	return e.id
}

// Cancel removes a pending event. It reports whether the event was pending.
func (s *Scheduler) Cancel(id ID) bool {
	e, ok := s.live[id]
	if !ok {
		return false
	}
	delete(s.live, id)
	if e.index >= 0 {
		heap.Remove(&s.queues[e.clock], e.index)
	}
	return true
}

// Scheduled reports whether id is still pending.
func (s *Scheduler) Scheduled(id ID) bool {
	_, ok := s.live[id]
	return ok
}

// Invalidate drops every pending event and starts a new generation.
func (s *Scheduler) Invalidate() {
	s.gen++
	for id := range s.live {
		delete(s.live, id)
	}
	for c := range s.queues {
		for _, e := range s.queues[c] {
			e.index = -1
		}
		s.queues[c] = s.queues[c][:0]
	}
}

// Generation returns the current generation.
func (s *Scheduler) Generation() uint64 { return s.gen }

// Pending returns the number of events waiting on clock.
func (s *Scheduler) Pending(clock Clock) int {
	if clock < Race || clock > Frame {
		return 0
	}
	return s.queues[clock].Len()
}

// NextAt returns the fire time of the earliest event on clock.
func (s *Scheduler) NextAt(clock Clock) (float64, bool) {
	if s.Pending(clock) == 0 {
		return 0, false
	}
	return s.queues[clock][0].at, true
}

// RunDue fires every event on clock due at or before now, in time order.
// Events scheduled by a callback for a time at or before now fire in the
// same call. It returns the number of actions run.
func (s *Scheduler) RunDue(clock Clock, now float64) int {
	if clock < Race || clock > Frame {
		return 0
	}
	fired := 0
	q := &s.queues[clock]
	for q.Len() > 0 && (*q)[0].at <= now {
		e := heap.Pop(q).(*entry)
		if e.gen != s.gen {
			delete(s.live, e.id)
			continue
		}
		if e.remaining > 0 {
			e.remaining--
		}
		repeat := e.remaining != 0 && e.interval > 0
		if !repeat {
			delete(s.live, e.id)
		}
		e.fn(e.at)
		fired++
		if !repeat {
			continue
		}
		// The callback may have cancelled its own event or invalidated the registry.
		if _, ok := s.live[e.id]; !ok || e.gen != s.gen {
			continue
		}
		s.seq++
		e.at += e.interval
		e.seq = s.seq
		heap.Push(q, e)
	}
	return fired
}
