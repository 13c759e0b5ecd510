package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
	"beacon-tracker.klederson.com/internal/config"
	"beacon-tracker.klederson.com/internal/logging"
	"beacon-tracker.klederson.com/internal/scan"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned by Start on a running session.
var ErrAlreadyRunning = errors.New("session already running")

// Session owns one scan source, the signal filter and the beacon registry
// for the duration of a scan. It implements scan.Handler.
type Session struct {
	source        scan.Source
	filter        *beacon.Filter
	registry      *beacon.Registry
	sweepInterval time.Duration
	unit          string
	clock         func() time.Time
	log           *logrus.Entry

	running atomic.Bool
	dropped atomic.Uint64

	// delivery is read-held by HandleScanEvent from the running check to the
	// registry update; Stop write-locks it before clearing state.
	delivery sync.RWMutex

	mu      sync.Mutex // serializes Start/Stop
	stop    chan struct{}
	stopped chan struct{}
	failed  chan error
}

// Option customizes a Session.
type Option func(*Session)

// WithClock replaces time.Now for event stamping, sweeping and snapshots.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// New validates cfg and builds a session around src. Nothing runs until Start.
func New(cfg config.Config, src scan.Source, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: scan source is required", config.ErrInvalidConfig)
	}

	transform, err := beacon.NewTransform(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	filter, err := beacon.NewFilter(cfg.MinSampleInterval, transform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	registry, err := beacon.NewRegistry(cfg.Targets, transform, cfg.EffectiveNearThreshold(), cfg.StaleThreshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	s := &Session{
		source:        src,
		filter:        filter,
		registry:      registry,
		sweepInterval: cfg.SweepInterval,
		unit:          transform.Unit(),
		clock:         time.Now,
		log:           logging.NewLogger("session"),
		failed:        make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	registry.SetClock(s.clock)
	return s, nil
}

// Start acquires the scan source and starts the stale sweep.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	// A failed run leaves its sweep going; replace it.
	if s.stop != nil {
		close(s.stop)
		<-s.stopped
		s.stop, s.stopped = nil, nil
	}
	select {
	case <-s.failed:
	default:
	}
	s.delivery.Lock()
	s.filter.Reset()
	s.registry.Reset()
	s.delivery.Unlock()

	s.running.Store(true)
	if err := s.source.Start(s); err != nil {
		s.running.Store(false)
		return fmt.Errorf("starting scan: %w", err)
	}

	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.sweepLoop(s.stop, s.stopped)

	s.log.WithFields(logrus.Fields{
		"targets":        len(s.registry.Targets()),
		"sweep_interval": s.sweepInterval,
	}).Info("scan session started")
	return nil
}

// Stop halts the source, cancels the sweep and clears every beacon.
// Calling Stop on a stopped session only clears state again.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.running.Swap(false)
	s.source.Stop()
	if s.stop != nil {
		close(s.stop)
		<-s.stopped
		s.stop, s.stopped = nil, nil
	}

	s.delivery.Lock()
	s.filter.Reset()
	s.registry.Reset()
	s.delivery.Unlock()

	if wasRunning {
		s.log.WithField("dropped", s.dropped.Load()).Info("scan session stopped")
	}
}

// Running reports whether the session is delivering events.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Failed delivers the scan-source failure that ended the current run.
func (s *Session) Failed() <-chan error {
	return s.failed
}

// Snapshot returns the current beacon state.
func (s *Session) Snapshot() beacon.Snapshot {
	return s.registry.Snapshot()
}

// Subscribe registers fn for trigger events. fn runs on the scan or sweep
// goroutine and must not call Stop or Start.
func (s *Session) Subscribe(fn func(beacon.Event)) (unsubscribe func()) {
	return s.registry.Subscribe(fn)
}

// Targets returns the configured beacon identifiers in order.
func (s *Session) Targets() []string {
	return s.registry.Targets()
}

// Unit labels proximity values ("m" for distances, "" for strength).
func (s *Session) Unit() string {
	return s.unit
}

// Dropped returns the count of malformed or foreign events ignored so far.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// HandleScanEvent feeds one raw advertisement through the filter.
func (s *Session) HandleScanEvent(ev scan.Event) {
	s.delivery.RLock()
	defer s.delivery.RUnlock()

	if !s.running.Load() {
		return
	}
	if !ev.Valid() || !s.registry.Tracks(ev.Name) {
		s.dropped.Add(1)
		return
	}

	now := ev.Time
	if now.IsZero() {
		now = s.clock()
	}
	sample, ok := s.filter.Accept(ev.Name, int(ev.RSSI), now)
	if !ok {
		return
	}
	s.registry.Update(sample)
}

// HandleRadioState logs adapter power changes.
func (s *Session) HandleRadioState(state scan.RadioState) {
	entry := s.log.WithField("state", state.String())
	if state == scan.RadioPoweredOn {
		entry.Info("bluetooth is on")
		return
	}
	entry.Warn("bluetooth is not powered on")
}

// HandleScanError ends the current scan attempt. Beacon state is kept and
// ages out through the sweep; restarting is up to the caller.
func (s *Session) HandleScanError(err error) {
	if !s.running.Swap(false) {
		return
	}
	s.log.WithError(err).Error("scan source failed")
	go s.source.Stop()

	select {
	case s.failed <- err:
	default:
	}
}

func (s *Session) sweepLoop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := s.registry.SweepStale(s.clock()); n > 0 {
				s.log.WithField("evicted", n).Debug("stale beacons cleared")
			}
		}
	}
}
