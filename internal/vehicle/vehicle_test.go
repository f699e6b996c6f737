package vehicle

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/MJE43/dragstrip/internal/sched"
)

const frame = 16.0

func newTestVehicle(t *testing.T) (*Vehicle, *sched.Scheduler) {
	t.Helper()
	s := sched.New()
	v, err := New(DefaultConfig(), s)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return v, s
}

// revTo holds throttle in the current gear until rpm reaches min.
func revTo(v *Vehicle, min float64, elapsed *float64) {
	for i := 0; i < 10000 && v.RPM() < min; i++ {
		*elapsed += frame
		v.Tick(Input{DeltaMs: frame, Throttle: true, ElapsedMs: *elapsed})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no gears", func(c *Config) { c.Ratios = []float64{0} }},
		{"zero ratio", func(c *Config) { c.Ratios[3] = 0 }},
		{"idle above max", func(c *Config) { c.IdleRPM = 9500 }},
		{"redline above max", func(c *Config) { c.RedlineRPM = 9100 }},
		{"inverted window", func(c *Config) { c.PerfectShiftMinRPM = 9000 }},
		{"zero torque", func(c *Config) { c.TorqueConstant = 0 }},
		{"negative nitrous", func(c *Config) { c.Nitrous.DurationMs = -1 }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestGearboxBounds(t *testing.T) {
	g := NewGearbox(DefaultConfig().Ratios)
	if g.ShiftDown() {
		t.Fatalf("shift down from first gear should fail")
	}
	for i := 1; i < g.MaxGear(); i++ {
		if !g.ShiftUp() {
			t.Fatalf("shift up %d failed", i)
		}
	}
	if g.ShiftUp() {
		t.Fatalf("shift up from top gear should fail")
	}
	if g.Gear() != 6 || g.Ratio() != 1.04 {
		t.Errorf("top gear = %d ratio %v", g.Gear(), g.Ratio())
	}
}

func TestShiftRoundTrip(t *testing.T) {
	v, _ := newTestVehicle(t)
	v.Tick(Input{DeltaMs: frame, Throttle: true, ShiftUp: true})
	if v.Gearbox().Gear() != 2 {
		t.Fatalf("expected gear 2, got %d", v.Gearbox().Gear())
	}
	v.Tick(Input{DeltaMs: frame, Throttle: true, ShiftDown: true})
	if v.Gearbox().Gear() != 1 {
		t.Fatalf("expected gear 1 after round trip, got %d", v.Gearbox().Gear())
	}
	if v.ShiftCount() != 2 {
		t.Errorf("shift count = %d, want 2", v.ShiftCount())
	}
}

func TestShiftAtLimitsIsNoop(t *testing.T) {
	v, _ := newTestVehicle(t)
	v.Tick(Input{DeltaMs: frame, ShiftDown: true})
	if v.ShiftCount() != 0 {
		t.Errorf("failed downshift counted as a shift")
	}
}

func TestThrottleOffDecaysMonotonically(t *testing.T) {
	v, _ := newTestVehicle(t)
	var elapsed float64
	revTo(v, 6000, &elapsed)
	if v.Speed() <= 0 {
		t.Fatalf("vehicle should be moving")
	}

	prevRPM, prevSpeed := v.RPM(), v.Speed()
	for i := 0; i < 500; i++ {
		v.Tick(Input{DeltaMs: frame})
		if v.RPM() > prevRPM || v.Speed() > prevSpeed {
			t.Fatalf("tick %d: rpm %v->%v speed %v->%v", i, prevRPM, v.RPM(), prevSpeed, v.Speed())
		}
		if v.RPM() < 800 || v.Speed() < 0 {
			t.Fatalf("tick %d: rpm %v speed %v out of range", i, v.RPM(), v.Speed())
		}
		prevRPM, prevSpeed = v.RPM(), v.Speed()
	}
	if v.RPM() != 800 {
		t.Errorf("rpm should settle at idle, got %v", v.RPM())
	}
}

func TestSpeedNeverExceedsGearCeiling(t *testing.T) {
	v, s := newTestVehicle(t)
	var elapsed float64
	for gear := 1; gear <= 6; gear++ {
		for i := 0; i < 1000; i++ {
			elapsed += frame
			v.Tick(Input{DeltaMs: frame, Throttle: true, Nitrous: i == 0, ElapsedMs: elapsed})
			s.RunDue(sched.Race, elapsed)
			limit := 290 / v.Gearbox().Ratio()
			if v.Speed() > limit+1e-9 {
				t.Fatalf("gear %d: speed %v over ceiling %v", gear, v.Speed(), limit)
			}
			if v.RPM() < 800 || v.RPM() > 9000 {
				t.Fatalf("rpm %v out of range", v.RPM())
			}
		}
		v.Tick(Input{DeltaMs: frame, Throttle: true, ShiftUp: true, ElapsedMs: elapsed})
	}
	if v.Distance() <= 0 || v.TopSpeed() <= 0 {
		t.Errorf("stats not recorded: distance %v top %v", v.Distance(), v.TopSpeed())
	}
	if _, ok := v.ZeroToHundred(); !ok {
		t.Errorf("zero to hundred never recorded")
	}
}

func TestPerfectShiftInWindow(t *testing.T) {
	v, _ := newTestVehicle(t)
	var elapsed float64
	revTo(v, 8250, &elapsed)
	if v.RPM() > 8750 {
		t.Fatalf("overshot window: %v", v.RPM())
	}
	before := v.Speed()

	rep := v.Tick(Input{DeltaMs: 0, Throttle: true, ShiftUp: true})
	if !rep.PerfectShift || v.PerfectShiftCount() != 1 {
		t.Fatalf("expected perfect shift at %v rpm", v.LastRPMBeforeShift())
	}
	if got := v.Speed(); math.Abs(got-before*1.02) > 1e-9 {
		t.Errorf("speed after bonus = %v, want %v", got, before*1.02)
	}
}

func TestEarlyShiftIsNotPerfect(t *testing.T) {
	v, _ := newTestVehicle(t)
	var elapsed float64
	revTo(v, 5000, &elapsed)
	rep := v.Tick(Input{DeltaMs: frame, Throttle: true, ShiftUp: true})
	if rep.PerfectShift || v.PerfectShiftCount() != 0 {
		t.Fatalf("shift at %v rpm should not be perfect", v.LastRPMBeforeShift())
	}
	if v.PerfectShiftCount() > v.ShiftCount() {
		t.Fatalf("perfect count exceeds shift count")
	}
}

func TestShiftJudgeOverride(t *testing.T) {
	v, _ := newTestVehicle(t)
	v.SetShiftJudge(func(float64) bool { return true })
	v.Tick(Input{DeltaMs: frame, ShiftUp: true})
	if v.PerfectShiftCount() != 1 {
		t.Fatalf("custom judge not consulted")
	}
	v.SetShiftJudge(nil)
	v.Tick(Input{DeltaMs: frame, ShiftUp: true})
	if v.PerfectShiftCount() != 1 {
		t.Fatalf("default judge should reject a shift at idle")
	}
}

func TestRedlinePenalty(t *testing.T) {
	v, _ := newTestVehicle(t)
	var elapsed float64
	revTo(v, 8600, &elapsed)
	v.Tick(Input{DeltaMs: frame, Throttle: true})
	want := v.RPM() / 9000 * 15 * 2.47 * 0.3
	if math.Abs(v.Acceleration()-want) > 1e-9 {
		t.Errorf("acceleration over redline = %v, want %v", v.Acceleration(), want)
	}
}

func TestNitrousLifecycle(t *testing.T) {
	v, s := newTestVehicle(t)
	rep := v.Tick(Input{DeltaMs: frame, Throttle: true, Nitrous: true, ElapsedMs: 100})
	if !rep.NitrousOpened || !v.Nitrous().Active() {
		t.Fatalf("nitrous should activate through the instant gate")
	}
	if s.Pending(sched.Race) != 1 {
		t.Fatalf("active nitrous must have a pending end event")
	}

	cooldown := v.Nitrous().CooldownRemaining()
	rep = v.Tick(Input{DeltaMs: frame, Throttle: true, Nitrous: true, ElapsedMs: 116})
	if rep.NitrousOpened {
		t.Fatalf("second request while active should be rejected")
	}
	if v.Nitrous().CooldownRemaining() != cooldown-frame {
		t.Errorf("rejected request changed cooldown")
	}

	s.RunDue(sched.Race, 3099)
	if !v.Nitrous().Active() {
		t.Fatalf("nitrous ended early")
	}
	s.RunDue(sched.Race, 3100)
	if v.Nitrous().Active() {
		t.Fatalf("nitrous still active after its duration")
	}
	if v.Nitrous().Status() != NitrousCooldown {
		t.Errorf("status = %s, want cooldown", v.Nitrous().Status())
	}
}

func TestNitrousRejectedLeavesStateUnchanged(t *testing.T) {
	n := NewNitrous(DefaultConfig().Nitrous, sched.New())
	n.ApplyFallbackCooldown()
	before := *n
	if n.RequestActivate(0) {
		t.Fatalf("activation during cooldown should fail")
	}
	if n.active != before.active || n.cooldown != before.cooldown || n.endID != before.endID {
		t.Fatalf("rejected activation mutated state")
	}
}

type denyGate struct{ calls int }

func (g *denyGate) Request(resolve func(bool)) bool {
	g.calls++
	resolve(false)
	return true
}

type heldGate struct{ resolve func(bool) }

func (g *heldGate) Request(resolve func(bool)) bool {
	if g.resolve != nil {
		return false
	}
	g.resolve = resolve
	return true
}

func TestGateFailureAppliesFallbackCooldown(t *testing.T) {
	v, _ := newTestVehicle(t)
	gate := &denyGate{}
	v.SetGate(gate)
	v.Tick(Input{DeltaMs: 0, Throttle: true, Nitrous: true})
	if v.Nitrous().Active() {
		t.Fatalf("denied gate must not boost")
	}
	if got := v.Nitrous().CooldownRemaining(); got != 2000 {
		t.Errorf("fallback cooldown = %v, want 2000", got)
	}
	v.Tick(Input{DeltaMs: frame, Nitrous: true})
	if gate.calls != 1 {
		t.Errorf("gate consulted during cooldown")
	}
}

func TestDeferredGateAfterResetIsIgnored(t *testing.T) {
	v, s := newTestVehicle(t)
	gate := &heldGate{}
	v.SetGate(gate)
	v.Tick(Input{DeltaMs: frame, Nitrous: true})
	if !v.GatePending() {
		t.Fatalf("gate should be pending")
	}
	v.Reset()
	gate.resolve(true)
	if v.Nitrous().Active() || s.Pending(sched.Race) != 0 {
		t.Fatalf("stale gate resolution activated nitrous")
	}
}

func TestBadDeltaIsIgnored(t *testing.T) {
	v, _ := newTestVehicle(t)
	for _, d := range []float64{math.NaN(), math.Inf(1), -50} {
		v.Tick(Input{DeltaMs: d, Throttle: true})
	}
	if v.RPM() != 800 || v.Speed() != 0 || v.Distance() != 0 {
		t.Fatalf("invalid deltas moved the vehicle: rpm %v speed %v", v.RPM(), v.Speed())
	}
}

func TestResetCancelsNitrous(t *testing.T) {
	v, s := newTestVehicle(t)
	v.Tick(Input{DeltaMs: frame, Throttle: true, Nitrous: true})
	v.SetFinish(FinishedAt(1234))
	v.Reset()

	if s.Pending(sched.Race) != 0 {
		t.Fatalf("reset left the nitrous end event pending")
	}
	if v.Nitrous().Status() != NitrousReady || v.Finish().Set() || v.Gearbox().Gear() != 1 {
		t.Fatalf("reset incomplete: %+v", v.Snapshot())
	}
}

func TestSetFinishOnlyOnce(t *testing.T) {
	v, _ := newTestVehicle(t)
	if !v.SetFinish(FinishedAt(9000)) {
		t.Fatalf("first finish should stick")
	}
	if v.SetFinish(DidNotFinish()) {
		t.Fatalf("finish overwritten")
	}
	if v.Finish().Ms != 9000 {
		t.Errorf("finish = %v", v.Finish())
	}
}

func TestFinishTimeOrderingAndJSON(t *testing.T) {
	a, b, dnf := FinishedAt(10000), FinishedAt(12000), DidNotFinish()
	if !a.Before(b) || b.Before(a) {
		t.Errorf("smaller time should win")
	}
	if !b.Before(dnf) || dnf.Before(b) {
		t.Errorf("real time should beat DNF")
	}
	if dnf.String() != "DNF" || a.String() != "10.00s" {
		t.Errorf("strings: %s %s", dnf, a)
	}

	data, err := json.Marshal(dnf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"status":"dnf"}` {
		t.Errorf("dnf json = %s", data)
	}
	var back FinishTime
	if err := json.Unmarshal([]byte(`{"status":"finished","ms":10500}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Real() || back.Ms != 10500 {
		t.Errorf("unmarshalled %+v", back)
	}
}

func TestDeterministic(t *testing.T) {
	run := func() Snapshot {
		v, s := newTestVehicle(t)
		var elapsed float64
		for i := 0; i < 2000; i++ {
			elapsed += frame
			s.RunDue(sched.Race, elapsed)
			v.Tick(Input{
				DeltaMs:   frame,
				Throttle:  i%300 != 0,
				ShiftUp:   i%250 == 249,
				Nitrous:   i == 900,
				ElapsedMs: elapsed,
			})
		}
		return v.Snapshot()
	}
	a, b := run(), run()
	if a.Distance != b.Distance || a.Speed != b.Speed || a.PerfectShiftCount != b.PerfectShiftCount {
		t.Fatalf("identical inputs diverged: %+v vs %+v", a, b)
	}
}
