package beacon

import (
	"fmt"
	"math"

	"beacon-tracker.klederson.com/internal/config"
)

// Transform turns a raw RSSI sample into a proximity value and defines
// which direction of that value counts as "closer".
type Transform interface {
	// Apply returns the proximity value for raw. present is false when the
	// sample should count as no sighting at all.
	Apply(raw int) (value float64, present bool)
	// Near reports whether value satisfies the near predicate for threshold.
	Near(value, threshold float64) bool
	// Closer reports whether a is strictly closer than b.
	Closer(a, b float64) bool
	// Unit labels values for display ("" for unitless strength).
	Unit() string
}

// Linear maps RSSI above Floor to RSSI+Offset; anything else is zero.
// Higher is closer.
type Linear struct {
	Floor  float64
	Offset float64
}

func (l Linear) Apply(raw int) (float64, bool) {
	r := float64(raw)
	if r <= l.Floor {
		return 0, false
	}
	v := r + l.Offset
	return v, v != 0
}

func (l Linear) Near(value, threshold float64) bool { return value >= threshold }
func (l Linear) Closer(a, b float64) bool          { return a > b }
func (l Linear) Unit() string                      { return "" }

// LogDistance estimates meters with the log-distance path loss model.
// Lower is closer.
type LogDistance struct {
	MeasuredPower float64 // RSSI at 1 meter
	PathLossExp   float64
}

// Apply treats a non-negative RSSI as no sighting.
func (ld LogDistance) Apply(raw int) (float64, bool) {
	if raw >= 0 {
		return 0, false
	}
	return RSSIToDistance(float64(raw), ld.MeasuredPower, ld.PathLossExp), true
}

func (ld LogDistance) Near(value, threshold float64) bool { return value <= threshold }
func (ld LogDistance) Closer(a, b float64) bool          { return a < b }
func (ld LogDistance) Unit() string                      { return "m" }

// RSSIToDistance estimates distance from RSSI using the log-distance path loss model.
// Formula: d = 10^((rssi - measuredPower) / (-10 * n))
func RSSIToDistance(rssi, measuredPower, pathLossExp float64) float64 {
	return math.Pow(10, (rssi-measuredPower)/(-10*pathLossExp))
}

// NewTransform builds the transform selected by cfg.Strategy.
func NewTransform(cfg config.Config) (Transform, error) {
	switch cfg.Strategy {
	case config.StrategyLinear:
		return Linear{Floor: cfg.Linear.Floor, Offset: cfg.Linear.Offset}, nil
	case config.StrategyLogDistance:
		if cfg.LogDistance.PathLossExp <= 0 {
			return nil, fmt.Errorf("path loss exponent must be positive, got %v", cfg.LogDistance.PathLossExp)
		}
		return LogDistance{
			MeasuredPower: cfg.LogDistance.MeasuredPower,
			PathLossExp:   cfg.LogDistance.PathLossExp,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transform strategy %q", cfg.Strategy)
	}
}
