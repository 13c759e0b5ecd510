package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
	"beacon-tracker.klederson.com/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, args: args})
	return f.err
}

func (f *fakeRunner) got() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestPlayer(cfg config.AlertConfig) (*Player, *fakeRunner) {
	p := NewPlayer(cfg)
	r := &fakeRunner{}
	p.SetRunner(r.run)
	return p, r
}

func TestPlayerRunsBeaconCommand(t *testing.T) {
	p, r := newTestPlayer(config.AlertConfig{
		Default:  "paplay default.wav",
		Commands: map[string]string{"MsgOne": "paplay  asound.m4a --volume 40"},
	})

	p.Handle(beacon.Event{Kind: beacon.NearTrigger, ID: "MsgOne"})
	p.Handle(beacon.Event{Kind: beacon.NearTrigger, ID: "MsgTwo"})
	p.Wait()

	got := r.got()
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []call{
		{name: "paplay", args: []string{"asound.m4a", "--volume", "40"}},
		{name: "paplay", args: []string{"default.wav"}},
	}, got)
}

func TestPlayerIgnoresLostAndUnconfigured(t *testing.T) {
	p, r := newTestPlayer(config.AlertConfig{
		Commands: map[string]string{"MsgOne": "paplay a.wav", "MsgTwo": "   "},
	})

	p.Handle(beacon.Event{Kind: beacon.LostTrigger, ID: "MsgOne", Evicted: true})
	p.Handle(beacon.Event{Kind: beacon.NearTrigger, ID: "MsgTwo"})
	p.Handle(beacon.Event{Kind: beacon.NearTrigger, ID: "ghost"})
	p.Wait()

	assert.Empty(t, r.got())
}

func TestPlayerCommandFailureIsLogged(t *testing.T) {
	p, r := newTestPlayer(config.AlertConfig{Default: "false"})
	r.err = errors.New("exit status 1")

	p.Handle(beacon.Event{Kind: beacon.NearTrigger, ID: "MsgOne"})
	p.Wait()
	assert.Len(t, r.got(), 1)
}

func TestPlayerTimeout(t *testing.T) {
	p := NewPlayer(config.AlertConfig{Default: "sleep"})
	assert.Equal(t, config.AlertTimeout, p.timeout)

	p = NewPlayer(config.AlertConfig{Default: "sleep", Timeout: 20 * time.Millisecond})
	var deadline time.Time
	p.SetRunner(func(ctx context.Context, name string, args ...string) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})
	start := time.Now()
	p.Handle(beacon.Event{Kind: beacon.NearTrigger, ID: "MsgOne"})
	p.Wait()
	assert.WithinDuration(t, start.Add(20*time.Millisecond), deadline, 200*time.Millisecond)
}

func TestPlayerAttach(t *testing.T) {
	reg, err := beacon.NewRegistry([]string{"MsgOne"}, beacon.Linear{Floor: -50, Offset: 110}, 60, 5*time.Second)
	require.NoError(t, err)

	p, r := newTestPlayer(config.AlertConfig{Commands: map[string]string{"MsgOne": "bell"}})
	unsubscribe := p.Attach(reg.Subscribe)

	at := time.Now()
	reg.Update(beacon.Sample{ID: "MsgOne", RawSignal: -40, Proximity: 70, Present: true, At: at})
	reg.Update(beacon.Sample{ID: "MsgOne", RawSignal: -40, Proximity: 70, Present: true, At: at.Add(time.Second)})
	p.Wait()
	assert.Len(t, r.got(), 1)

	unsubscribe()
	reg.Update(beacon.Sample{ID: "MsgOne", Present: false, At: at.Add(2 * time.Second)})
	reg.Update(beacon.Sample{ID: "MsgOne", RawSignal: -40, Proximity: 70, Present: true, At: at.Add(3 * time.Second)})
	reg.Update(beacon.Sample{ID: "MsgOne", RawSignal: -40, Proximity: 70, Present: true, At: at.Add(4 * time.Second)})
	p.Wait()
	assert.Len(t, r.got(), 1)
}
