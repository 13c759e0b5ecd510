package scan

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Names advertised by neighbours that share the channel with the beacons.
var demoStrangers = []string{
	"iPhone 15 Pro", "Galaxy Buds Pro", "Tile Tracker", "JBL Flip 6", "Fitbit Charge 6",
}

type demoBeacon struct {
	name      string
	baseRSSI  float64
	phase     float64
	amplitude float64
	period    float64 // seconds per approach/retreat cycle
	active    bool
}

// DemoSource simulates beacons drifting toward and away from the receiver,
// mixed with the noise a shared radio channel produces.
type DemoSource struct {
	mu       sync.Mutex
	rng      *rand.Rand
	beacons  []demoBeacon
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	clock    func() time.Time
}

// NewDemoSource creates a demo source for the given beacon names. The same
// seed always produces the same stream.
func NewDemoSource(names []string, seed int64) *DemoSource {
	rng := rand.New(rand.NewSource(seed))

	beacons := make([]demoBeacon, 0, len(names)+len(demoStrangers))
	for _, n := range names {
		beacons = append(beacons, demoBeacon{
			name:      n,
			baseRSSI:  -55 - rng.Float64()*20, // -55 to -75 dBm
			phase:     rng.Float64() * 2 * math.Pi,
			amplitude: 10 + rng.Float64()*15, // swings far enough to cross thresholds
			period:    20 + rng.Float64()*40,
			active:    true,
		})
	}
	for _, n := range demoStrangers {
		beacons = append(beacons, demoBeacon{
			name:      n,
			baseRSSI:  -60 - rng.Float64()*30,
			phase:     rng.Float64() * 2 * math.Pi,
			amplitude: 3 + rng.Float64()*5,
			period:    30,
			active:    true,
		})
	}

	return &DemoSource{
		rng:      rng,
		beacons:  beacons,
		interval: 100 * time.Millisecond,
		clock:    time.Now,
	}
}

// Start begins emitting events in a goroutine.
func (s *DemoSource) Start(h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("demo source already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	h.HandleRadioState(RadioPoweredOn)
	go s.loop(ctx, h, s.done)
	return nil
}

func (s *DemoSource) loop(ctx context.Context, h Handler, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := s.clock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.clock()
			for _, ev := range s.Emit(now.Sub(start).Seconds(), now) {
				if ctx.Err() != nil {
					return
				}
				h.HandleScanEvent(ev)
			}
		}
	}
}

// Emit produces one round of advertisements at simulation time t seconds.
func (s *DemoSource) Emit(t float64, now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]Event, 0, len(s.beacons)+1)
	for i := range s.beacons {
		b := &s.beacons[i]

		// Beacons occasionally go silent long enough to be declared lost.
		if s.rng.Float64() < 0.003 {
			b.active = !b.active
		}
		if !b.active {
			continue
		}

		rssi := b.baseRSSI + b.amplitude*math.Sin(2*math.Pi*t/b.period+b.phase) + (s.rng.Float64()-0.5)*4
		ev := Event{Name: b.name, RSSI: int16(rssi), HasRSSI: true, Time: now}

		switch r := s.rng.Float64(); {
		case r < 0.03:
			ev.Name = ""
		case r < 0.05:
			ev.HasRSSI = false
			ev.RSSI = 0
		}
		events = append(events, ev)

		// Scan callbacks often repeat the same advert.
		if s.rng.Float64() < 0.3 {
			events = append(events, ev)
		}
	}
	return events
}

// Stop halts the demo source and waits for its goroutine.
func (s *DemoSource) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
