package alert

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"beacon-tracker.klederson.com/internal/beacon"
	"beacon-tracker.klederson.com/internal/config"
	"beacon-tracker.klederson.com/internal/logging"
	"github.com/sirupsen/logrus"
)

// Runner executes one alert command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Player runs the configured command when a beacon becomes near.
type Player struct {
	commands map[string][]string
	fallback []string
	timeout  time.Duration
	run      Runner
	log      *logrus.Entry

	wg sync.WaitGroup
}

// NewPlayer builds a player from the alert configuration. Commands are split
// on whitespace; no shell is involved.
func NewPlayer(cfg config.AlertConfig) *Player {
	p := &Player{
		commands: make(map[string][]string, len(cfg.Commands)),
		fallback: strings.Fields(cfg.Default),
		timeout:  cfg.Timeout,
		run:      execRunner,
		log:      logging.NewLogger("alert"),
	}
	if p.timeout <= 0 {
		p.timeout = config.AlertTimeout
	}
	for id, cmd := range cfg.Commands {
		if argv := strings.Fields(cmd); len(argv) > 0 {
			p.commands[id] = argv
		}
	}
	return p
}

// SetRunner replaces the command runner.
func (p *Player) SetRunner(r Runner) {
	p.run = r
}

// Attach subscribes the player and returns the unsubscribe func.
func (p *Player) Attach(subscribe func(func(beacon.Event)) func()) func() {
	return subscribe(p.Handle)
}

// Handle reacts to one trigger event. Commands run in the background.
func (p *Player) Handle(ev beacon.Event) {
	entry := p.log.WithField("beacon", ev.ID)
	if ev.Kind != beacon.NearTrigger {
		entry.WithField("evicted", ev.Evicted).Debug("beacon left, nothing to play")
		return
	}

	argv, ok := p.commands[ev.ID]
	if !ok {
		argv = p.fallback
	}
	if len(argv) == 0 {
		entry.Debug("no alert command configured")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.run(ctx, argv[0], argv[1:]...); err != nil {
			entry.WithError(err).WithField("command", argv[0]).Warn("alert command failed")
			return
		}
		entry.WithField("command", argv[0]).Debug("alert played")
	}()
}

// Wait blocks until every running alert command has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}
