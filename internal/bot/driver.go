// Package bot drives the opponent car: full throttle, automatic upshifts near
// a randomised target RPM and one nitrous shot per race.
package bot

import (
	"fmt"
	"math"

	"github.com/MJE43/dragstrip/internal/vehicle"
)

// Rand is the random source a driver draws from. *engine.Stream and
// *rand.Rand both satisfy it.
type Rand interface {
	Float64() float64
}

// Config tunes the driver. Skill runs from 0 (erratic) to 1 (always shifts at
// redline and always lands a perfect shift when the RPM allows it).
type Config struct {
	Skill              float64 `json:"skill"`
	ShiftVariance      float64 `json:"shift_variance"`
	ShiftFloorRPM      float64 `json:"shift_floor_rpm"`
	ShiftCeilingRPM    float64 `json:"shift_ceiling_rpm"`
	NitrousMinFraction float64 `json:"nitrous_min_fraction"`
	NitrousMaxFraction float64 `json:"nitrous_max_fraction"`
	TrackLength        float64 `json:"track_length"`
}

// DefaultConfig leaves ShiftCeilingRPM at zero, meaning the vehicle's max RPM.
func DefaultConfig() Config {
	return Config{
		Skill:              0.7,
		ShiftVariance:      1000,
		ShiftFloorRPM:      7000,
		NitrousMinFraction: 0.4,
		NitrousMaxFraction: 0.7,
		TrackLength:        1000,
	}
}

func (c Config) Validate() error {
	if math.IsNaN(c.Skill) || c.Skill < 0 || c.Skill > 1 {
		return fmt.Errorf("%w: skill %v outside [0, 1]", ErrInvalidConfig, c.Skill)
	}
	if c.ShiftVariance < 0 {
		return fmt.Errorf("%w: negative shift variance", ErrInvalidConfig)
	}
	if c.NitrousMinFraction < 0 || c.NitrousMaxFraction < c.NitrousMinFraction {
		return fmt.Errorf("%w: nitrous window [%v, %v]", ErrInvalidConfig, c.NitrousMinFraction, c.NitrousMaxFraction)
	}
	if c.TrackLength <= 0 {
		return fmt.Errorf("%w: track length %v", ErrInvalidConfig, c.TrackLength)
	}
	return nil
}

// Driver controls one vehicle.
type Driver struct {
	cfg     Config
	vehicle *vehicle.Vehicle
	rng     Rand

	shiftTarget float64
	nitrousAt   float64
	nitrousUsed bool
}

// New attaches a driver to v. The driver installs its own perfect-shift
// judge and an instant nitrous gate on the vehicle.
func New(cfg Config, v *vehicle.Vehicle, rng Rand) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if v == nil || rng == nil {
		return nil, ErrMissingDependency
	}
	d := &Driver{cfg: cfg, vehicle: v, rng: rng}
	vc := v.Config()
	v.SetShiftJudge(func(rpm float64) bool {
		return d.rng.Float64() < d.cfg.Skill && vc.InPerfectWindow(rpm)
	})
	v.SetGate(vehicle.InstantGate{})
	d.roll()
	return d, nil
}

func (d *Driver) roll() {
	d.shiftTarget = d.nextShiftTarget()
	span := d.cfg.NitrousMaxFraction - d.cfg.NitrousMinFraction
	d.nitrousAt = d.cfg.TrackLength * (d.cfg.NitrousMinFraction + d.rng.Float64()*span)
	d.nitrousUsed = false
}

func (d *Driver) nextShiftTarget() float64 {
	vc := d.vehicle.Config()
	ceiling := d.cfg.ShiftCeilingRPM
	if ceiling <= 0 {
		ceiling = vc.MaxRPM
	}
	offset := (d.rng.Float64()*2 - 1) * d.cfg.ShiftVariance * (1 - d.cfg.Skill)
	return math.Max(d.cfg.ShiftFloorRPM, math.Min(vc.RedlineRPM+offset, ceiling))
}

// Next returns the input for the coming tick.
func (d *Driver) Next(deltaMs, now float64) vehicle.Input {
	in := vehicle.Input{DeltaMs: deltaMs, Throttle: true, ElapsedMs: now}
	gb := d.vehicle.Gearbox()
	if d.vehicle.RPM() >= d.shiftTarget && gb.Gear() < gb.MaxGear() {
		in.ShiftUp = true
	}
	if !d.nitrousUsed && d.vehicle.Distance() >= d.nitrousAt {
		in.Nitrous = true
		d.nitrousUsed = true
	}
	return in
}

// Drive ticks the vehicle with the driver's own input.
func (d *Driver) Drive(deltaMs, now float64) vehicle.Report {
	rep := d.vehicle.Tick(d.Next(deltaMs, now))
	if rep.Shifted {
		d.shiftTarget = d.nextShiftTarget()
	}
	return rep
}

// Reset resets the vehicle and rolls new targets for the next race.
func (d *Driver) Reset() {
	d.vehicle.Reset()
	d.roll()
}

func (d *Driver) Vehicle() *vehicle.Vehicle { return d.vehicle }
func (d *Driver) Config() Config            { return d.cfg }
func (d *Driver) ShiftTarget() float64      { return d.shiftTarget }
func (d *Driver) NitrousAt() float64        { return d.nitrousAt }
func (d *Driver) NitrousUsed() bool         { return d.nitrousUsed }
