package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Proximity transform
	StrategyLinear      = "linear"
	StrategyLogDistance = "log-distance"

	LinearFloor   = -50.0 // RSSI at or below this is "too far" (dBm)
	LinearOffset  = 110.0 // Added to RSSI above the floor
	MeasuredPower = -65.0 // RSSI at 1 meter (dBm)
	PathLossExp   = 2.5   // Path loss exponent (N)

	// Near thresholds per strategy
	NearStrength = 60.0 // linear: proximity at/above this is near
	NearDistance = 1.0  // log-distance: meters at/below this is near

	// Beacon management
	MinSampleInterval = 500 * time.Millisecond // Debounce between admitted samples
	StaleThreshold    = 5 * time.Second        // Mark beacons absent after this long
	SweepInterval     = 1 * time.Second        // How often to run the stale sweep

	// Alerts
	AlertTimeout = 10 * time.Second // Max runtime of one alert command

	// UI
	TargetFPS  = 10 // Snapshot polls per second
	HistoryLen = 40 // Proximity samples kept per beacon for the sparkline

	// App
	AppName    = "BEACON-TRACKER"
	AppVersion = "1.0"
)

// DefaultTargets is the beacon set used when no config file names one.
var DefaultTargets = []string{
	"MsgOne", "MsgTwo", "MsgThree", "MsgFour",
	"MsgFive", "MsgSix", "MsgSeven", "MsgEight", "ghost",
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full set of construction-time settings.
type Config struct {
	Targets  []string `yaml:"targets"`
	Strategy string   `yaml:"strategy"`

	Linear      LinearConfig      `yaml:"linear"`
	LogDistance LogDistanceConfig `yaml:"log_distance"`

	// NearThreshold of zero selects the strategy default.
	NearThreshold float64 `yaml:"near_threshold,omitempty"`

	MinSampleInterval time.Duration `yaml:"min_sample_interval"`
	StaleThreshold    time.Duration `yaml:"stale_threshold"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`

	Adapter string      `yaml:"adapter"`
	Alerts  AlertConfig `yaml:"alerts"`
	Log     LogConfig   `yaml:"log"`
}

// LinearConfig holds the linear offset transform constants.
type LinearConfig struct {
	Floor  float64 `yaml:"floor"`
	Offset float64 `yaml:"offset"`
}

// LogDistanceConfig holds the path loss calibration constants.
type LogDistanceConfig struct {
	MeasuredPower float64 `yaml:"measured_power"`
	PathLossExp   float64 `yaml:"path_loss_exp"`
}

// AlertConfig maps beacons to the command run when they become near.
type AlertConfig struct {
	Default  string            `yaml:"default,omitempty"`
	Commands map[string]string `yaml:"commands,omitempty"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// LogConfig controls the logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	targets := make([]string, len(DefaultTargets))
	copy(targets, DefaultTargets)
	return Config{
		Targets:  targets,
		Strategy: StrategyLogDistance,
		Linear: LinearConfig{
			Floor:  LinearFloor,
			Offset: LinearOffset,
		},
		LogDistance: LogDistanceConfig{
			MeasuredPower: MeasuredPower,
			PathLossExp:   PathLossExp,
		},
		MinSampleInterval: MinSampleInterval,
		StaleThreshold:    StaleThreshold,
		SweepInterval:     SweepInterval,
		Adapter:           "hci0",
		Alerts: AlertConfig{
			Timeout: AlertTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// EffectiveNearThreshold resolves a zero NearThreshold to the strategy default.
func (c Config) EffectiveNearThreshold() float64 {
	if c.NearThreshold != 0 {
		return c.NearThreshold
	}
	if c.Strategy == StrategyLinear {
		return NearStrength
	}
	return NearDistance
}

// Validate checks the configuration and reports the first problem found.
func (c Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: target list is empty", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, id := range c.Targets {
		if id == "" {
			return fmt.Errorf("%w: empty beacon identifier", ErrInvalidConfig)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate beacon identifier %q", ErrInvalidConfig, id)
		}
		seen[id] = true
	}

	switch c.Strategy {
	case StrategyLinear:
	case StrategyLogDistance:
		if c.LogDistance.PathLossExp <= 0 {
			return fmt.Errorf("%w: path_loss_exp must be positive, got %v", ErrInvalidConfig, c.LogDistance.PathLossExp)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q (want %s or %s)",
			ErrInvalidConfig, c.Strategy, StrategyLinear, StrategyLogDistance)
	}

	if c.EffectiveNearThreshold() <= 0 {
		return fmt.Errorf("%w: near_threshold must be positive, got %v", ErrInvalidConfig, c.NearThreshold)
	}
	if c.MinSampleInterval <= 0 {
		return fmt.Errorf("%w: min_sample_interval must be positive, got %s", ErrInvalidConfig, c.MinSampleInterval)
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("%w: stale_threshold must be positive, got %s", ErrInvalidConfig, c.StaleThreshold)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive, got %s", ErrInvalidConfig, c.SweepInterval)
	}
	for id := range c.Alerts.Commands {
		if !seen[id] {
			return fmt.Errorf("%w: alert command for unknown beacon %q", ErrInvalidConfig, id)
		}
	}
	return nil
}
