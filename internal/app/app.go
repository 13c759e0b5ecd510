package app

import (
	"fmt"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
	"beacon-tracker.klederson.com/internal/config"
	"beacon-tracker.klederson.com/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
)

const triggerBuffer = 64

// Tracker is the session surface the UI drives.
type Tracker interface {
	Start() error
	Stop()
	Running() bool
	Snapshot() beacon.Snapshot
	Subscribe(func(beacon.Event)) func()
	Failed() <-chan error
	Unit() string
}

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	tracker     Tracker
	unsubscribe func()
	history     map[string]*ProximityRing
	lastSample  map[string]time.Time
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	width  int
	height int

	source string
	cursor int

	shared *shared

	// Cached snapshot
	snapshot    beacon.Snapshot
	lastTrigger string
	scanErr     error
	now         func() time.Time
}

// New creates a new AppModel. source labels the scan source in the menu bar.
func New(t Tracker, source string) AppModel {
	return AppModel{
		source: source,
		shared: &shared{
			tracker:    t,
			history:    make(map[string]*ProximityRing),
			lastSample: make(map[string]time.Time),
		},
		snapshot: t.Snapshot(),
		now:      time.Now,
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForFailure(m.shared.tracker),
	)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case TriggerMsg:
		m.lastTrigger = fmt.Sprintf("%s %s", beacon.Event(msg).Kind, msg.ID)
		return m, nil

	case ScanErrorMsg:
		m.scanErr = msg.Err
		return m, waitForFailure(m.shared.tracker)
	}

	return m, nil
}

func (m *AppModel) refresh() {
	m.snapshot = m.shared.tracker.Snapshot()
	for _, st := range m.snapshot.Beacons {
		if !st.Seen() {
			continue
		}
		if last, ok := m.shared.lastSample[st.ID]; ok && last.Equal(st.Reading.LastSeen) {
			continue
		}
		m.shared.lastSample[st.ID] = st.Reading.LastSeen
		ring, ok := m.shared.history[st.ID]
		if !ok {
			ring = NewProximityRing(config.HistoryLen)
			m.shared.history[st.ID] = ring
		}
		ring.Push(st.Reading.Proximity)
	}
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.StopSession()
		return m, tea.Quit

	case "s", "S":
		if !m.shared.tracker.Running() {
			m.scanErr = m.shared.tracker.Start()
		}

	case "p", "P":
		m.shared.tracker.Stop()
		m.clearHistory()
		m.lastTrigger = ""
		m.snapshot = m.shared.tracker.Snapshot()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.snapshot.Beacons)-1 {
			m.cursor++
		}

	case "home":
		m.cursor = 0

	case "end":
		if len(m.snapshot.Beacons) > 0 {
			m.cursor = len(m.snapshot.Beacons) - 1
		}
	}

	return m, nil
}

func (m *AppModel) clearHistory() {
	for _, r := range m.shared.history {
		r.Reset()
	}
	m.shared.lastSample = make(map[string]time.Time)
}

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing beacon tracker..."
	}

	bodyH := m.height - 2 // menu + status
	if bodyH < 6 {
		bodyH = 6
	}

	scanning := m.shared.tracker.Running()
	menuBar := ui.RenderMenuBar(m.width, m.source, scanning)

	history := make(map[string][]float64, len(m.shared.history))
	for id, r := range m.shared.history {
		history[id] = r.Values()
	}
	list := ui.RenderBeaconList(ui.ListView{
		Snapshot: m.snapshot,
		History:  history,
		Unit:     m.shared.tracker.Unit(),
		Cursor:   m.cursor,
		Now:      m.now(),
	}, m.width, bodyH)

	nearest := m.snapshot.Nearest
	if nb, ok := m.snapshot.NearestBeacon(); ok {
		nearest = fmt.Sprintf("%s (%s)", nb.ID, ui.FormatProximity(nb.Reading.Proximity, m.shared.tracker.Unit()))
	}
	statusBar := ui.RenderStatusBar(m.width, ui.StatusInfo{
		Scanning:    scanning,
		Seen:        m.snapshot.SeenCount(),
		Total:       len(m.snapshot.Beacons),
		Nearest:     nearest,
		LastTrigger: m.lastTrigger,
		Err:         m.scanErr,
	})

	return ui.ComposeLayout(menuBar, list, statusBar)
}

// StartSession forwards triggers to p and starts scanning. Must be called
// before p.Run().
func (m *AppModel) StartSession(p *tea.Program) error {
	m.forwardTriggers(p.Send)
	return m.shared.tracker.Start()
}

// forwardTriggers relays trigger events to send without blocking the
// tracker: p.Send blocks while Update runs, and Update may be inside Stop.
func (m *AppModel) forwardTriggers(send func(tea.Msg)) {
	ch := make(chan beacon.Event, triggerBuffer)
	done := make(chan struct{})
	unsubscribe := m.shared.tracker.Subscribe(func(ev beacon.Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	go func() {
		for {
			select {
			case ev := <-ch:
				send(TriggerMsg(ev))
			case <-done:
				return
			}
		}
	}()
	m.shared.unsubscribe = func() {
		unsubscribe()
		close(done)
	}
}

// StopSession stops scanning and drops the trigger subscription.
func (m *AppModel) StopSession() {
	m.shared.tracker.Stop()
	if m.shared.unsubscribe != nil {
		m.shared.unsubscribe()
		m.shared.unsubscribe = nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForFailure(t Tracker) tea.Cmd {
	return func() tea.Msg {
		return ScanErrorMsg{Err: <-t.Failed()}
	}
}
