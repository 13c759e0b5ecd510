package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   int
	stops    int
	snap     beacon.Snapshot
	fns      map[int]func(beacon.Event)
	nextID   int
	failed   chan error
}

func newFakeTracker(ids ...string) *fakeTracker {
	snap := beacon.Snapshot{}
	for _, id := range ids {
		snap.Beacons = append(snap.Beacons, beacon.State{ID: id})
	}
	return &fakeTracker{snap: snap, fns: map[int]func(beacon.Event){}, failed: make(chan error, 1)}
}

func (f *fakeTracker) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeTracker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeTracker) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTracker) Snapshot() beacon.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeTracker) setSnapshot(s beacon.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func (f *fakeTracker) Subscribe(fn func(beacon.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.fns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.fns, id)
	}
}

func (f *fakeTracker) publish(ev beacon.Event) {
	f.mu.Lock()
	fns := make([]func(beacon.Event), 0, len(f.fns))
	for _, fn := range f.fns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeTracker) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func (f *fakeTracker) Failed() <-chan error { return f.failed }

func (f *fakeTracker) Unit() string { return "m" }

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m AppModel, msg tea.Msg) (AppModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	am, ok := next.(AppModel)
	require.True(t, ok)
	return am, cmd
}

func seen(id string, proximity float64, at time.Time) beacon.State {
	return beacon.State{ID: id, Reading: &beacon.Reading{RawSignal: -60, Proximity: proximity, LastSeen: at}}
}

func TestProximityRing(t *testing.T) {
	r := NewProximityRing(3)
	assert.Nil(t, r.Values())

	r.Push(1)
	r.Push(2)
	assert.Equal(t, []float64{1, 2}, r.Values())

	r.Push(3)
	r.Push(4)
	assert.Equal(t, []float64{2, 3, 4}, r.Values())
	assert.Equal(t, 3, r.Len())

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Values())

	assert.Equal(t, []float64{7}, func() []float64 {
		z := NewProximityRing(0)
		z.Push(6)
		z.Push(7)
		return z.Values()
	}())
}

func TestTickRecordsHistoryOncePerSample(t *testing.T) {
	tr := newFakeTracker("A", "B")
	m := New(tr, "demo")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.setSnapshot(beacon.Snapshot{Beacons: []beacon.State{seen("A", 2.5, at), {ID: "B"}}, Nearest: "A"})
	m, cmd := update(t, m, TickMsg(at))
	assert.NotNil(t, cmd)
	m, _ = update(t, m, TickMsg(at))

	tr.setSnapshot(beacon.Snapshot{Beacons: []beacon.State{seen("A", 1.5, at.Add(time.Second)), {ID: "B"}}, Nearest: "A"})
	m, _ = update(t, m, TickMsg(at))

	if diff := cmp.Diff([]float64{2.5, 1.5}, m.shared.history["A"].Values()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	_, ok := m.shared.history["B"]
	assert.False(t, ok)
	assert.Equal(t, "A", m.snapshot.Nearest)
}

func TestKeysDriveSession(t *testing.T) {
	tr := newFakeTracker("A", "B", "C")
	m := New(tr, "demo")

	m, _ = update(t, m, key("s"))
	assert.True(t, tr.Running())
	m, _ = update(t, m, key("s"))
	assert.Equal(t, 1, tr.starts)

	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("j"))
	assert.Equal(t, 2, m.cursor)
	m, _ = update(t, m, key("k"))
	assert.Equal(t, 1, m.cursor)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyHome})
	assert.Equal(t, 0, m.cursor)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnd})
	assert.Equal(t, 2, m.cursor)

	m.shared.history["A"] = NewProximityRing(4)
	m.shared.history["A"].Push(1)
	m.lastTrigger = "near A"
	m, _ = update(t, m, key("p"))
	assert.False(t, tr.Running())
	assert.Equal(t, 0, m.shared.history["A"].Len())
	assert.Empty(t, m.lastTrigger)

	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestStartFailureShownInStatus(t *testing.T) {
	tr := newFakeTracker("A")
	tr.startErr = errors.New("adapter busy")
	m := New(tr, "ble")

	m, _ = update(t, m, key("s"))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 20})
	assert.Contains(t, m.View(), "adapter busy")
}

func TestTriggerAndScanErrorMessages(t *testing.T) {
	tr := newFakeTracker("A")
	m := New(tr, "demo")

	m, _ = update(t, m, TriggerMsg(beacon.Event{Kind: beacon.NearTrigger, ID: "A"}))
	assert.Equal(t, "near A", m.lastTrigger)

	m, cmd := update(t, m, ScanErrorMsg{Err: errors.New("radio off")})
	assert.EqualError(t, m.scanErr, "radio off")
	require.NotNil(t, cmd)

	tr.failed <- errors.New("again")
	msg := cmd()
	assert.Equal(t, ScanErrorMsg{Err: errors.New("again")}, msg)
}

func TestViewRendersSnapshot(t *testing.T) {
	tr := newFakeTracker()
	m := New(tr, "demo")
	assert.Equal(t, "Initializing beacon tracker...", m.View())

	at := time.Now()
	tr.setSnapshot(beacon.Snapshot{Beacons: []beacon.State{seen("MsgOne", 0.7, at), {ID: "MsgTwo"}}, Nearest: "MsgOne"})
	m, _ = update(t, m, TickMsg(at))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 24})

	out := m.View()
	assert.Contains(t, out, "BEACONS [1/2]")
	assert.Contains(t, out, "Nearest: MsgOne (~0.7m)")
	assert.Contains(t, out, "Source: demo")
}

func TestForwardTriggers(t *testing.T) {
	tr := newFakeTracker("A")
	m := New(tr, "demo")

	got := make(chan tea.Msg, 4)
	m.forwardTriggers(func(msg tea.Msg) { got <- msg })
	require.Equal(t, 1, tr.subscribers())

	tr.publish(beacon.Event{Kind: beacon.NearTrigger, ID: "A"})
	select {
	case msg := <-got:
		assert.Equal(t, TriggerMsg(beacon.Event{Kind: beacon.NearTrigger, ID: "A"}), msg)
	case <-time.After(time.Second):
		t.Fatal("trigger not forwarded")
	}

	m.StopSession()
	assert.Equal(t, 0, tr.subscribers())
	assert.Equal(t, 1, tr.stops)

	// Events published after the relay is gone must not block or panic.
	tr.publish(beacon.Event{Kind: beacon.LostTrigger, ID: "A"})
	m.StopSession()
}
