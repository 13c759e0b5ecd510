package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"beacon-tracker.klederson.com/internal/config"
	"github.com/sirupsen/logrus"
)

// LevelEnv overrides the configured log level when set.
const LevelEnv = "BEACON_LOG_LEVEL"

var (
	root    = logrus.New()
	closer  io.Closer
	setupMu sync.Mutex
)

// Setup configures the shared logger. It may be called again to reconfigure;
// a previously opened log file is closed.
func Setup(cfg config.LogConfig, fallback io.Writer) error {
	setupMu.Lock()
	defer setupMu.Unlock()

	levelStr := cfg.Level
	if env := os.Getenv(LevelEnv); env != "" {
		levelStr = env
	}
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("log level %q: %w", levelStr, err)
	}
	root.SetLevel(level)

	switch cfg.Format {
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}

	out := fallback
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closer = f
	}
	if out == nil {
		out = io.Discard
	}
	root.SetOutput(out)
	return nil
}

// NewLogger returns an entry tagged with the component name.
func NewLogger(component string) *logrus.Entry {
	return root.WithField("component", component)
}

// Close releases the log file, if one is open.
func Close() error {
	setupMu.Lock()
	defer setupMu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	root.SetOutput(io.Discard)
	return err
}
