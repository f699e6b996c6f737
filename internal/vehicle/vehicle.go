// Package vehicle models the drivetrain of a single car: gearbox, engine RPM,
// speed integration and the nitrous boost.
package vehicle

import (
	"math"

	"github.com/MJE43/dragstrip/internal/sched"
)

// Input is one tick worth of controls. Shift and nitrous fields are edges:
// true only on the tick the key went down.
type Input struct {
	DeltaMs   float64
	Throttle  bool
	ShiftUp   bool
	ShiftDown bool
	Nitrous   bool
	ElapsedMs float64
}

// Report describes what happened during a tick.
type Report struct {
	Shifted       bool
	PerfectShift  bool
	NitrousOpened bool
	Limited       bool
}

// ShiftJudge decides whether an upshift from rpm earns the perfect-shift
// bonus. The default judge checks the configured window.
type ShiftJudge func(rpm float64) bool

// Vehicle owns all per-car simulation state.
type Vehicle struct {
	cfg     Config
	sched   *sched.Scheduler
	gearbox *Gearbox
	nitrous *Nitrous
	gate    Gate
	judge   ShiftJudge

	speed            float64
	rpm              float64
	acceleration     float64
	distance         float64
	topSpeed         float64
	zeroToHundred    float64
	hasZeroToHundred bool

	shiftCount         int
	perfectShiftCount  int
	lastRPMBeforeShift float64

	finish FinishTime

	gatePending bool
	epoch       uint64
}

// New builds a vehicle from cfg. Deferred events go to s.
func New(cfg Config, s *sched.Scheduler) (*Vehicle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		s = sched.New()
	}
	ratios := make([]float64, len(cfg.Ratios))
	copy(ratios, cfg.Ratios)
	cfg.Ratios = ratios

	v := &Vehicle{
		cfg:     cfg,
		sched:   s,
		gearbox: NewGearbox(ratios),
		nitrous: NewNitrous(cfg.Nitrous, s),
		gate:    InstantGate{},
		rpm:     cfg.IdleRPM,
	}
	v.judge = cfg.InPerfectWindow
	return v, nil
}

// SetGate replaces the nitrous gate. A nil gate restores InstantGate.
func (v *Vehicle) SetGate(g Gate) {
	if g == nil {
		g = InstantGate{}
	}
	v.gate = g
}

// SetShiftJudge replaces the perfect-shift policy. A nil judge restores the
// window check.
func (v *Vehicle) SetShiftJudge(j ShiftJudge) {
	if j == nil {
		j = v.cfg.InPerfectWindow
	}
	v.judge = j
}

// Tick advances the vehicle by in.DeltaMs.
func (v *Vehicle) Tick(in Input) Report {
	var rep Report
	delta := sanitize(in.DeltaMs)
	dt := delta / 1000

	if in.ShiftUp && v.gearbox.ShiftUp() {
		v.lastRPMBeforeShift = v.rpm
		v.rpm *= v.cfg.UpshiftRPMFactor
		v.acceleration *= v.cfg.UpshiftAccelFactor
		v.shiftCount++
		rep.Shifted = true
		if v.judge(v.lastRPMBeforeShift) {
			v.perfectShiftCount++
			v.speed *= v.cfg.PerfectShiftBonus
			rep.PerfectShift = true
		}
	}
	if in.ShiftDown && v.gearbox.ShiftDown() {
		v.lastRPMBeforeShift = v.rpm
		v.rpm = math.Min(v.rpm*v.cfg.DownshiftRPMFactor, v.cfg.MaxRPM)
		v.acceleration *= v.cfg.DownshiftAccelFactor
		v.shiftCount++
		rep.Shifted = true
	}
	ratio := v.gearbox.Ratio()

	if in.Throttle && v.gearbox.Gear() > 0 {
		build := v.cfg.RPMBuildRate * (ratio / v.cfg.ReferenceRatio) * v.cfg.PowerFactor
		v.rpm += build * dt
	} else {
		v.rpm -= v.cfg.RPMDecayRate * dt
	}
	v.rpm = clamp(v.rpm, v.cfg.IdleRPM, v.cfg.MaxRPM)

	torque := v.rpm / v.cfg.MaxRPM * v.cfg.TorqueConstant
	v.acceleration = torque * ratio

	if v.nitrous.Active() {
		v.acceleration *= v.nitrous.Boost()
		if in.Throttle {
			v.rpm = math.Min(v.rpm+v.cfg.Nitrous.RPMPerSecond*dt, v.cfg.MaxRPM)
		}
	}

	if v.rpm > v.cfg.RedlineRPM && v.gearbox.Gear() < v.gearbox.MaxGear() {
		v.acceleration *= v.cfg.RedlinePenalty
	}

	if in.Throttle {
		v.speed += v.acceleration * dt
	} else {
		v.speed -= v.cfg.DragCoefficient * v.speed * delta
	}
	if v.speed < 0 || math.IsNaN(v.speed) {
		v.speed = 0
	}
	if limit := v.MaxSpeed(); v.speed > limit {
		v.speed = limit
		rep.Limited = true
	}

	if v.speed > v.topSpeed {
		v.topSpeed = v.speed
	}
	if !v.hasZeroToHundred && v.speed >= v.cfg.ZeroToHundredSpeed {
		v.zeroToHundred = sanitize(in.ElapsedMs)
		v.hasZeroToHundred = true
	}
	v.distance += v.speed * dt

	if in.Nitrous {
		rep.NitrousOpened = v.requestNitrous(sanitize(in.ElapsedMs))
	}
	v.nitrous.Tick(delta)
	return rep
}

// requestNitrous routes a nitrous press through the gate. now is race time;
// the race clock is frozen while a gate is open, so the boost starts at now
// whenever the gate resolves.
func (v *Vehicle) requestNitrous(now float64) bool {
	if v.gatePending || v.nitrous.Status() != NitrousReady {
		return false
	}
	epoch := v.epoch
	v.gatePending = true
	opened := v.gate.Request(func(ok bool) {
		if epoch != v.epoch {
			return
		}
		v.gatePending = false
		if ok {
			v.nitrous.RequestActivate(now)
		} else {
			v.nitrous.ApplyFallbackCooldown()
		}
	})
	if !opened {
		v.gatePending = false
	}
	return opened
}

// MaxSpeed is the speed ceiling of the current gear.
func (v *Vehicle) MaxSpeed() float64 {
	return v.cfg.BaseMaxSpeed / v.gearbox.Ratio()
}

// AddSpeed applies an instantaneous bonus, respecting the gear ceiling.
func (v *Vehicle) AddSpeed(delta float64) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	v.speed = clamp(v.speed+delta, 0, v.MaxSpeed())
	if v.speed > v.topSpeed {
		v.topSpeed = v.speed
	}
}

// SetFinish records the finish time once; later calls are ignored.
func (v *Vehicle) SetFinish(f FinishTime) bool {
	if v.finish.Set() || !f.Set() {
		return false
	}
	v.finish = f
	return true
}

// Reset restores the vehicle to the start line and cancels its pending events.
func (v *Vehicle) Reset() {
	v.epoch++
	v.gatePending = false
	v.gearbox.Reset()
	v.nitrous.Reset()
	v.speed = 0
	v.rpm = v.cfg.IdleRPM
	v.acceleration = 0
	v.distance = 0
	v.topSpeed = 0
	v.zeroToHundred = 0
	v.hasZeroToHundred = false
	v.shiftCount = 0
	v.perfectShiftCount = 0
	v.lastRPMBeforeShift = 0
	v.finish = FinishTime{}
}

func (v *Vehicle) Config() Config              { return v.cfg }
func (v *Vehicle) Gearbox() *Gearbox           { return v.gearbox }
func (v *Vehicle) Nitrous() *Nitrous           { return v.nitrous }
func (v *Vehicle) Speed() float64              { return v.speed }
func (v *Vehicle) RPM() float64                { return v.rpm }
func (v *Vehicle) Acceleration() float64       { return v.acceleration }
func (v *Vehicle) Distance() float64           { return v.distance }
func (v *Vehicle) TopSpeed() float64           { return v.topSpeed }
func (v *Vehicle) ShiftCount() int             { return v.shiftCount }
func (v *Vehicle) PerfectShiftCount() int      { return v.perfectShiftCount }
func (v *Vehicle) LastRPMBeforeShift() float64 { return v.lastRPMBeforeShift }
func (v *Vehicle) Finish() FinishTime          { return v.finish }
func (v *Vehicle) GatePending() bool           { return v.gatePending }

// ZeroToHundred returns the race time at which 100 km/h was first reached.
func (v *Vehicle) ZeroToHundred() (float64, bool) {
	return v.zeroToHundred, v.hasZeroToHundred
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
