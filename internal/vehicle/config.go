package vehicle

import (
	"fmt"
	"math"
)

// NitrousConfig tunes the nitrous subsystem. Times are milliseconds.
type NitrousConfig struct {
	DurationMs         float64 `json:"duration_ms"`
	Boost              float64 `json:"boost"`
	CooldownMs         float64 `json:"cooldown_ms"`
	FallbackCooldownMs float64 `json:"fallback_cooldown_ms"`
	RPMPerSecond       float64 `json:"rpm_per_second"`
}

// Config is the immutable description a Vehicle is built from.
// Ratios[0] is unused so that Ratios[g] is the ratio of gear g.
type Config struct {
	Name string `json:"name"`

	Ratios     []float64 `json:"ratios"`
	IdleRPM    float64   `json:"idle_rpm"`
	MaxRPM     float64   `json:"max_rpm"`
	RedlineRPM float64   `json:"redline_rpm"`

	BaseMaxSpeed   float64 `json:"base_max_speed"`
	RPMBuildRate   float64 `json:"rpm_build_rate"`
	ReferenceRatio float64 `json:"reference_ratio"`
	RPMDecayRate   float64 `json:"rpm_decay_rate"`
	TorqueConstant float64 `json:"torque_constant"`
	PowerFactor    float64 `json:"power_factor"`

	UpshiftRPMFactor     float64 `json:"upshift_rpm_factor"`
	UpshiftAccelFactor   float64 `json:"upshift_accel_factor"`
	DownshiftRPMFactor   float64 `json:"downshift_rpm_factor"`
	DownshiftAccelFactor float64 `json:"downshift_accel_factor"`

	RedlinePenalty  float64 `json:"redline_penalty"`
	DragCoefficient float64 `json:"drag_coefficient"`

	PerfectShiftMinRPM float64 `json:"perfect_shift_min_rpm"`
	PerfectShiftMaxRPM float64 `json:"perfect_shift_max_rpm"`
	PerfectShiftBonus  float64 `json:"perfect_shift_bonus"`

	ZeroToHundredSpeed float64 `json:"zero_to_hundred_speed"`

	Nitrous NitrousConfig `json:"nitrous"`
}

// DefaultConfig returns the stock six-speed car.
func DefaultConfig() Config {
	return Config{
		Name:                 "stock",
		Ratios:               []float64{0, 2.47, 1.85, 1.49, 1.24, 1.12, 1.04},
		IdleRPM:              800,
		MaxRPM:               9000,
		RedlineRPM:           8500,
		BaseMaxSpeed:         290,
		RPMBuildRate:         2470,
		ReferenceRatio:       2.47,
		RPMDecayRate:         1200,
		TorqueConstant:       15,
		PowerFactor:          1,
		UpshiftRPMFactor:     0.6,
		UpshiftAccelFactor:   0.7,
		DownshiftRPMFactor:   1.7,
		DownshiftAccelFactor: 1.2,
		RedlinePenalty:       0.3,
		DragCoefficient:      0.0001,
		PerfectShiftMinRPM:   8250,
		PerfectShiftMaxRPM:   8750,
		PerfectShiftBonus:    1.02,
		ZeroToHundredSpeed:   100,
		Nitrous: NitrousConfig{
			DurationMs:         3000,
			Boost:              1.8,
			CooldownMs:         5000,
			FallbackCooldownMs: 2000,
			RPMPerSecond:       500,
		},
	}
}

// MaxGear returns the highest gear.
func (c Config) MaxGear() int { return len(c.Ratios) - 1 }

// Validate checks that the config describes a drivable vehicle.
func (c Config) Validate() error {
	if len(c.Ratios) < 2 {
		return fmt.Errorf("%w: need at least one gear", ErrInvalidConfig)
	}
	for g := 1; g < len(c.Ratios); g++ {
		if !positive(c.Ratios[g]) {
			return fmt.Errorf("%w: gear %d ratio %v", ErrInvalidConfig, g, c.Ratios[g])
		}
	}
	if !positive(c.IdleRPM) || !(c.IdleRPM < c.MaxRPM) {
		return fmt.Errorf("%w: idle %v must be below max %v", ErrInvalidConfig, c.IdleRPM, c.MaxRPM)
	}
	if c.RedlineRPM < c.IdleRPM || c.RedlineRPM > c.MaxRPM {
		return fmt.Errorf("%w: redline %v outside [%v, %v]", ErrInvalidConfig, c.RedlineRPM, c.IdleRPM, c.MaxRPM)
	}
	if c.PerfectShiftMinRPM > c.PerfectShiftMaxRPM {
		return fmt.Errorf("%w: perfect shift window inverted", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"base_max_speed":  c.BaseMaxSpeed,
		"reference_ratio": c.ReferenceRatio,
		"torque_constant": c.TorqueConstant,
		"power_factor":    c.PowerFactor,
	} {
		if !positive(v) {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if c.Nitrous.DurationMs < 0 || c.Nitrous.CooldownMs < 0 || c.Nitrous.FallbackCooldownMs < 0 {
		return fmt.Errorf("%w: negative nitrous timing", ErrInvalidConfig)
	}
	return nil
}

// InPerfectWindow reports whether rpm falls in the perfect-shift band.
func (c Config) InPerfectWindow(rpm float64) bool {
	return rpm >= c.PerfectShiftMinRPM && rpm <= c.PerfectShiftMaxRPM
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
