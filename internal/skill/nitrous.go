package skill

import (
	"math"

	"github.com/MJE43/dragstrip/internal/sched"
)

// CheckConfig tunes the nitrous minigame. Distances are bar units.
type CheckConfig struct {
	WindowMs  float64 `json:"window_ms"`
	BarWidth  float64 `json:"bar_width"`
	ZoneWidth float64 `json:"zone_width"`
	SweepMs   float64 `json:"sweep_ms"`
}

func DefaultCheckConfig() CheckConfig {
	return CheckConfig{WindowMs: 5000, BarWidth: 400, ZoneWidth: 80, SweepMs: 750}
}

// Outcome is how a minigame window closed.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeMissed   Outcome = "missed"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeAborted  Outcome = "aborted"
)

// Suspender freezes and unfreezes the race clock while the minigame is open.
type Suspender interface {
	Suspend()
	Resume()
}

// CheckView is what a renderer needs to draw an open minigame.
type CheckView struct {
	Open        bool    `json:"open"`
	Marker      float64 `json:"marker"`
	BarWidth    float64 `json:"bar_width"`
	ZoneStart   float64 `json:"zone_start"`
	ZoneEnd     float64 `json:"zone_end"`
	RemainingMs float64 `json:"remaining_ms"`
}

// NitrousCheck is a vehicle.Gate that makes the driver hit a moving marker
// inside a zone before the nitrous fires. Timing runs on the frame clock so
// it keeps moving while the race clock is suspended. It is not reentrant and
// every opened window yields exactly one outcome.
type NitrousCheck struct {
	cfg     CheckConfig
	sched   *sched.Scheduler
	clock   func() float64
	susp    Suspender
	observe func(Outcome)

	open      bool
	openedAt  float64
	timeoutID sched.ID
	resolve   func(bool)
	last      Outcome
	attempts  int
	successes int
}

// NewNitrousCheck builds a check. clock returns the current frame time.
func NewNitrousCheck(cfg CheckConfig, s *sched.Scheduler, clock func() float64, susp Suspender) *NitrousCheck {
	return &NitrousCheck{cfg: cfg, sched: s, clock: clock, susp: susp}
}

// OnOutcome registers a callback run after each window closes.
func (c *NitrousCheck) OnOutcome(fn func(Outcome)) { c.observe = fn }

// Request opens the minigame. It returns false while a window is already open.
func (c *NitrousCheck) Request(resolve func(ok bool)) bool {
	if c.open || resolve == nil {
		return false
	}
	c.open = true
	c.openedAt = c.clock()
	c.resolve = resolve
	c.attempts++
	if c.susp != nil {
		c.susp.Suspend()
	}
	c.timeoutID = c.sched.At(sched.Frame, c.openedAt+c.cfg.WindowMs, "nitrous_check_timeout", func(float64) {
		c.timeoutID = 0
		c.finish(OutcomeTimedOut)
	})
	return true
}

// Press resolves the open window using the marker position at the current
// frame time. It reports whether a window was open.
func (c *NitrousCheck) Press() bool {
	if !c.open {
		return false
	}
	if c.InZone(c.Marker(c.clock())) {
		c.finish(OutcomeSuccess)
	} else {
		c.finish(OutcomeMissed)
	}
	return true
}

// Abort closes an open window as a failure.
func (c *NitrousCheck) Abort() {
	if c.open {
		c.finish(OutcomeAborted)
	}
}

func (c *NitrousCheck) finish(o Outcome) {
	if !c.open {
		return
	}
	c.open = false
	if c.timeoutID != 0 {
		c.sched.Cancel(c.timeoutID)
		c.timeoutID = 0
	}
	if c.susp != nil {
		c.susp.Resume()
	}
	resolve := c.resolve
	c.resolve = nil
	c.last = o
	if o == OutcomeSuccess {
		c.successes++
	}
	resolve(o == OutcomeSuccess)
	if c.observe != nil {
		c.observe(o)
	}
}

// Marker returns the marker position at frame time now. The marker starts at
// the left edge and sweeps the full bar each SweepMs, back and forth.
func (c *NitrousCheck) Marker(now float64) float64 {
	if c.cfg.SweepMs <= 0 {
		return 0
	}
	phase := math.Mod(math.Max(now-c.openedAt, 0)/c.cfg.SweepMs, 2)
	if phase > 1 {
		phase = 2 - phase
	}
	return phase * c.cfg.BarWidth
}

// Zone returns the success zone bounds, centred on the bar.
func (c *NitrousCheck) Zone() (start, end float64) {
	start = (c.cfg.BarWidth - c.cfg.ZoneWidth) / 2
	return start, start + c.cfg.ZoneWidth
}

func (c *NitrousCheck) InZone(x float64) bool {
	start, end := c.Zone()
	return x >= start && x <= end
}

func (c *NitrousCheck) Open() bool     { return c.open }
func (c *NitrousCheck) Last() Outcome  { return c.last }
func (c *NitrousCheck) Attempts() int  { return c.attempts }
func (c *NitrousCheck) Successes() int { return c.successes }

func (c *NitrousCheck) View() CheckView {
	start, end := c.Zone()
	v := CheckView{Open: c.open, BarWidth: c.cfg.BarWidth, ZoneStart: start, ZoneEnd: end}
	if c.open {
		now := c.clock()
		v.Marker = c.Marker(now)
		v.RemainingMs = math.Max(c.openedAt+c.cfg.WindowMs-now, 0)
	}
	return v
}

// Reset aborts any open window and clears counters.
func (c *NitrousCheck) Reset() {
	c.Abort()
	c.last = ""
	c.attempts = 0
	c.successes = 0
}
