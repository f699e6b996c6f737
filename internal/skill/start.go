// Package skill holds the two timing checks a player can pass during a race:
// the launch at GO and the nitrous activation minigame.
package skill

// StartConfig tunes the launch check.
type StartConfig struct {
	PerfectWindowMs float64 `json:"perfect_window_ms"`
	SpeedBonus      float64 `json:"speed_bonus"`
}

func DefaultStartConfig() StartConfig {
	return StartConfig{PerfectWindowMs: 200, SpeedBonus: 25}
}

type StartPhase int

const (
	StartIdle StartPhase = iota
	StartArmed
	StartAwaiting
	StartResolved
)

// StartResult classifies the launch.
type StartResult string

const (
	StartNone    StartResult = ""
	StartFalse   StartResult = "false_start"
	StartPerfect StartResult = "perfect_start"
	StartLate    StartResult = "late_start"
)

// PerfectStart judges the first throttle press around GO. Only the first
// press counts; it is classified once and later presses are ignored.
type PerfectStart struct {
	cfg      StartConfig
	phase    StartPhase
	result   StartResult
	goTime   float64
	reaction float64
}

func NewPerfectStart(cfg StartConfig) *PerfectStart {
	return &PerfectStart{cfg: cfg}
}

// StartCountdown arms the judge and clears the previous attempt.
func (p *PerfectStart) StartCountdown() {
	p.phase = StartArmed
	p.result = StartNone
	p.goTime = 0
	p.reaction = 0
}

// Go records the GO time. A throttle already held at GO is a false start.
func (p *PerfectStart) Go(t float64, throttleHeld bool) {
	if p.phase != StartArmed {
		return
	}
	p.goTime = t
	if throttleHeld {
		p.resolve(StartFalse)
		return
	}
	p.phase = StartAwaiting
}

// Press classifies a throttle press at time now. It returns the result and
// true only for the press that resolved the launch.
func (p *PerfectStart) Press(now float64) (StartResult, bool) {
	switch p.phase {
	case StartArmed:
		p.resolve(StartFalse)
		return p.result, true
	case StartAwaiting:
		p.reaction = now - p.goTime
		if p.reaction <= p.cfg.PerfectWindowMs {
			p.resolve(StartPerfect)
		} else {
			p.resolve(StartLate)
		}
		return p.result, true
	default:
		return p.result, false
	}
}

func (p *PerfectStart) resolve(r StartResult) {
	p.result = r
	p.phase = StartResolved
}

func (p *PerfectStart) Phase() StartPhase   { return p.phase }
func (p *PerfectStart) Result() StartResult { return p.result }

// ReactionMs is the time from GO to the judged press.
func (p *PerfectStart) ReactionMs() float64 { return p.reaction }

// Bonus is the launch speed bonus earned, zero unless perfect.
func (p *PerfectStart) Bonus() float64 {
	if p.result == StartPerfect {
		return p.cfg.SpeedBonus
	}
	return 0
}

func (p *PerfectStart) Reset() {
	p.phase = StartIdle
	p.result = StartNone
	p.goTime = 0
	p.reaction = 0
}
