package beacon

import (
	"fmt"
	"sync"
	"time"
)

// Sample is a debounced, transformed observation ready for the registry.
type Sample struct {
	ID        string
	RawSignal int
	Proximity float64
	Present   bool // false when the transform judged the sample "too far"
	At        time.Time
}

// Filter debounces raw samples per beacon and applies the transform.
// Beacons never influence each other.
type Filter struct {
	mu        sync.Mutex
	interval  time.Duration
	transform Transform
	admitted  map[string]time.Time
}

// NewFilter creates a filter admitting at most one sample per interval per beacon.
func NewFilter(interval time.Duration, t Transform) (*Filter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sample interval must be positive, got %s", interval)
	}
	if t == nil {
		return nil, fmt.Errorf("transform is required")
	}
	return &Filter{
		interval:  interval,
		transform: t,
		admitted:  make(map[string]time.Time),
	}, nil
}

// Accept admits the sample if at least the interval has passed since the
// last admitted sample for id. Suppressed samples do not move the window.
func (f *Filter) Accept(id string, raw int, now time.Time) (Sample, bool) {
	f.mu.Lock()
	last, ok := f.admitted[id]
	if ok && now.Sub(last) < f.interval {
		f.mu.Unlock()
		return Sample{}, false
	}
	f.admitted[id] = now
	f.mu.Unlock()

	value, present := f.transform.Apply(raw)
	return Sample{
		ID:        id,
		RawSignal: raw,
		Proximity: value,
		Present:   present,
		At:        now,
	}, true
}

// Reset forgets every debounce window.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admitted = make(map[string]time.Time)
}
