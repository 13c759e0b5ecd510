package beacon

import (
	"sort"
	"sync"
	"time"
)

// EventKind distinguishes presence-trigger transitions.
type EventKind int

const (
	NearTrigger EventKind = iota // Absent -> Near
	LostTrigger                  // Near -> Absent
)

func (k EventKind) String() string {
	switch k {
	case NearTrigger:
		return "near"
	case LostTrigger:
		return "lost"
	default:
		return "unknown"
	}
}

// Event is emitted once per presence-trigger transition.
type Event struct {
	Kind      EventKind
	ID        string
	Proximity float64 // value that caused the transition; zero on eviction
	Evicted   bool    // true when the stale sweep caused a LostTrigger
	At        time.Time
}

// listeners is a set of trigger subscribers, called in subscription order.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (l *listeners) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = l.fns[id]
	}
	l.mu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
