package beacon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"beacon-tracker.klederson.com/internal/logging"
	"github.com/sirupsen/logrus"
)

// ErrInvalidRegistry is wrapped by NewRegistry construction failures.
var ErrInvalidRegistry = errors.New("invalid registry configuration")

// Reading is the state of a beacon that has been seen. A nil *Reading means
// the beacon is unseen: no raw signal, no proximity, no last-seen time.
type Reading struct {
	RawSignal int
	Proximity float64
	LastSeen  time.Time
}

// State is an immutable view of one tracked beacon.
type State struct {
	ID        string
	Reading   *Reading
	Triggered bool // presence latch: Near state
}

// Seen reports whether the beacon currently has a reading.
func (s State) Seen() bool { return s.Reading != nil }

// Snapshot is a point-in-time copy of the registry in target-list order.
type Snapshot struct {
	Beacons []State
	Nearest string // empty when no beacon is seen
}

// NearestBeacon returns the nearest beacon's state, if any.
func (s Snapshot) NearestBeacon() (State, bool) {
	if s.Nearest == "" {
		return State{}, false
	}
	for _, b := range s.Beacons {
		if b.ID == s.Nearest {
			return b, true
		}
	}
	return State{}, false
}

// SeenCount returns how many beacons have a reading.
func (s Snapshot) SeenCount() int {
	n := 0
	for _, b := range s.Beacons {
		if b.Seen() {
			n++
		}
	}
	return n
}

type entry struct {
	reading   *Reading
	triggered bool
}

// Registry is the thread-safe store for the fixed set of tracked beacons.
// Mutations are serialized by emitMu, taken before the state lock. Trigger
// listeners run after the state lock is released, in transition order; they
// may call Snapshot but must not call Update or SweepStale.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry

	transform     Transform
	nearThreshold float64
	staleAfter    time.Duration
	clock         func() time.Time

	emitMu    sync.Mutex
	listeners listeners
	log       *logrus.Entry
}

// NewRegistry creates a registry with one unseen entry per target. The target
// list is copied and never changes afterwards.
func NewRegistry(targets []string, t Transform, nearThreshold float64, staleAfter time.Duration) (*Registry, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target identifiers", ErrInvalidRegistry)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transform is required", ErrInvalidRegistry)
	}
	if nearThreshold <= 0 {
		return nil, fmt.Errorf("%w: near threshold must be positive, got %v", ErrInvalidRegistry, nearThreshold)
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("%w: stale threshold must be positive, got %s", ErrInvalidRegistry, staleAfter)
	}

	r := &Registry{
		order:         make([]string, 0, len(targets)),
		entries:       make(map[string]*entry, len(targets)),
		transform:     t,
		nearThreshold: nearThreshold,
		staleAfter:    staleAfter,
		clock:         time.Now,
		log:           logging.NewLogger("registry"),
	}
	for _, id := range targets {
		if id == "" {
			return nil, fmt.Errorf("%w: empty identifier", ErrInvalidRegistry)
		}
		if _, dup := r.entries[id]; dup {
			return nil, fmt.Errorf("%w: duplicate identifier %q", ErrInvalidRegistry, id)
		}
		r.order = append(r.order, id)
		r.entries[id] = &entry{}
	}
	return r, nil
}

// SetClock replaces the clock used by Snapshot.
func (r *Registry) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// Targets returns a copy of the configured identifiers in order.
func (r *Registry) Targets() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tracks reports whether id is one of the configured targets.
func (r *Registry) Tracks(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Subscribe registers fn for trigger events and returns its unsubscribe func.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	return r.listeners.add(fn)
}

// Update applies an admitted sample. Samples for unknown beacons are ignored.
func (r *Registry) Update(s Sample) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	e, ok := r.entries[s.ID]
	if !ok {
		r.mu.Unlock()
		return
	}

	var events []Event
	wasSeen := e.reading != nil

	if !s.Present {
		e.reading = nil
		if e.triggered {
			e.triggered = false
			events = append(events, Event{Kind: LostTrigger, ID: s.ID, Proximity: s.Proximity, At: s.At})
		}
	} else {
		e.reading = &Reading{RawSignal: s.RawSignal, Proximity: s.Proximity, LastSeen: s.At}
		near := r.transform.Near(s.Proximity, r.nearThreshold)
		switch {
		case near && !e.triggered && wasSeen:
			e.triggered = true
			events = append(events, Event{Kind: NearTrigger, ID: s.ID, Proximity: s.Proximity, At: s.At})
		case !near && e.triggered:
			e.triggered = false
			events = append(events, Event{Kind: LostTrigger, ID: s.ID, Proximity: s.Proximity, At: s.At})
		}
	}
	r.mu.Unlock()

	r.emit(events)
}

// SweepStale resets every beacon not seen for longer than the stale
// threshold. Returns the number of evicted beacons.
func (r *Registry) SweepStale(now time.Time) int {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	var events []Event
	count := 0
	for _, id := range r.order {
		e := r.entries[id]
		if e.reading == nil || now.Sub(e.reading.LastSeen) <= r.staleAfter {
			continue
		}
		e.reading = nil
		count++
		if e.triggered {
			e.triggered = false
			events = append(events, Event{Kind: LostTrigger, ID: id, Evicted: true, At: now})
		}
	}
	r.mu.Unlock()

	r.emit(events)
	return count
}

// Reset returns every beacon to unseen without emitting events.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.reading = nil
		e.triggered = false
	}
}

// Snapshot returns the registry state as of the registry clock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	now := r.clock()
	r.mu.RUnlock()
	return r.SnapshotAt(now)
}

// SnapshotAt returns the registry state as of now. Beacons that are already
// stale but not yet swept are reported unseen.
func (r *Registry) SnapshotAt(now time.Time) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{Beacons: make([]State, 0, len(r.order))}
	for _, id := range r.order {
		e := r.entries[id]
		st := State{ID: id}
		if e.reading != nil && now.Sub(e.reading.LastSeen) <= r.staleAfter {
			rd := *e.reading
			st.Reading = &rd
			st.Triggered = e.triggered
		}
		snap.Beacons = append(snap.Beacons, st)
	}
	snap.Nearest = nearestOf(snap.Beacons, r.transform)
	return snap
}

func (r *Registry) emit(events []Event) {
	for _, ev := range events {
		r.log.WithFields(logrus.Fields{
			"beacon":    ev.ID,
			"proximity": ev.Proximity,
			"evicted":   ev.Evicted,
		}).Infof("%s trigger", ev.Kind)
	}
	r.listeners.emit(events)
}

// nearestOf picks the closest seen beacon; ties go to the earlier entry.
func nearestOf(states []State, t Transform) string {
	best := -1
	for i, st := range states {
		if st.Reading == nil {
			continue
		}
		if best < 0 || t.Closer(st.Reading.Proximity, states[best].Reading.Proximity) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return states[best].ID
}
