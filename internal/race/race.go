// Package race runs a two-lane drag race: countdown, launch judging, the
// per-frame simulation of both cars, finish detection with a DNF deadline,
// pause handling and the final verdict.
//
// A race is driven by Update, called once per rendered frame with the frame
// delta and the player's controls. All deferred work goes through a single
// sched.Scheduler shared with the vehicles.
package race

import (
	"io"
	"log"
	"math"

	"github.com/MJE43/dragstrip/internal/sched"
	"github.com/MJE43/dragstrip/internal/skill"
	"github.com/MJE43/dragstrip/internal/vehicle"
)

// Phase is the race lifecycle state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCountdown Phase = "countdown"
	PhaseRacing    Phase = "racing"
	PhaseFinished  Phase = "finished"
)

// Controls is the player's input for one frame. Throttle is a level; every
// other field is an edge, true only on the frame the key went down.
type Controls struct {
	Throttle      bool `json:"throttle"`
	ShiftUp       bool `json:"shift_up"`
	ShiftDown     bool `json:"shift_down"`
	Nitrous       bool `json:"nitrous"`
	MinigamePress bool `json:"minigame_press"`
}

// Opponent is an autonomous car.
type Opponent interface {
	Vehicle() *vehicle.Vehicle
	Drive(deltaMs, now float64) vehicle.Report
	Reset()
}

// Option configures a Race.
type Option func(*Race)

func WithEmitter(e Emitter) Option {
	return func(r *Race) {
		if e != nil {
			r.emit = e
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Race) {
		if l != nil {
			r.logger = l
		}
	}
}

type lane struct {
	vehicle   *vehicle.Vehicle
	overshoot float64
	name      string
}

// Race is single-threaded; call every method from the frame loop.
type Race struct {
	cfg      Config
	sched    *sched.Scheduler
	player   lane
	opponent lane
	driver   Opponent
	judge    *skill.PerfectStart
	check    *skill.NitrousCheck
	emit     Emitter
	logger   *log.Logger

	phase        Phase
	countdown    int
	controls     Controls
	prevThrottle bool

	frameNow    float64
	startFrame  float64
	pausedTotal float64
	pauseStart  float64
	userPaused  bool
	suspended   bool
	raceNow     float64
	lastTick    float64

	countdownID sched.ID
	dnfID       sched.ID
	limitID     sched.ID

	outcome Outcome
	results *Results
}

// New wires a race around vehicles that already share s. opponent may be nil
// only when cfg.OpponentDisabled is set.
func New(cfg Config, s *sched.Scheduler, player *vehicle.Vehicle, opponent Opponent, opts ...Option) (*Race, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if player == nil || s == nil {
		return nil, ErrMissingVehicle
	}
	if opponent == nil && !cfg.OpponentDisabled {
		return nil, ErrMissingVehicle
	}
	r := &Race{
		cfg:    cfg,
		sched:  s,
		player: lane{vehicle: player, name: "player"},
		driver: opponent,
		judge:  skill.NewPerfectStart(cfg.Start),
		emit:   NopEmitter{},
		logger: log.New(io.Discard, "", 0),
		phase:  PhaseIdle,
	}
	if opponent != nil {
		r.opponent = lane{vehicle: opponent.Vehicle(), name: "opponent"}
	}
	r.check = skill.NewNitrousCheck(cfg.Check, s, r.FrameTime, suspender{r})
	r.check.OnOutcome(func(o skill.Outcome) {
		r.emit.Emit(EventNitrousResult, map[string]any{"outcome": o})
		r.logger.Printf("nitrous_check outcome=%s race_ms=%.0f", o, r.raceNow)
	})
	if cfg.NitrousCheck {
		player.SetGate(checkGate{r})
	} else {
		player.SetGate(vehicle.InstantGate{})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// checkGate announces the minigame before handing the request to it.
type checkGate struct{ r *Race }

func (g checkGate) Request(resolve func(bool)) bool {
	if !g.r.check.Request(resolve) {
		return false
	}
	g.r.emit.Emit(EventNitrousCheck, g.r.check.View())
	return true
}

// suspender lets the minigame freeze the race clock without exposing the
// user-facing Pause/Resume pair.
type suspender struct{ r *Race }

func (s suspender) Suspend() { s.r.setSuspended(true) }
func (s suspender) Resume()  { s.r.setSuspended(false) }

// Start begins the countdown.
func (r *Race) Start() error {
	if r.phase != PhaseIdle {
		return ErrAlreadyStarted
	}
	r.phase = PhaseCountdown
	r.countdown = r.cfg.CountdownFrom
	r.judge.StartCountdown()
	r.logger.Printf("race_start track=%.0f countdown=%d", r.cfg.TrackLength, r.countdown)
	if r.countdown == 0 {
		r.goRace(r.frameNow)
		return nil
	}
	r.emit.Emit(EventCountdown, map[string]any{"count": r.countdown})
	interval := r.cfg.CountdownIntervalMs
	r.countdownID = r.sched.Every(sched.Frame, r.frameNow+interval, interval, r.cfg.CountdownFrom, "countdown", func(at float64) {
		r.countdown--
		if r.countdown > 0 {
			r.emit.Emit(EventCountdown, map[string]any{"count": r.countdown})
			return
		}
		r.countdownID = 0
		r.goRace(at)
	})
	return nil
}

func (r *Race) goRace(at float64) {
	r.phase = PhaseRacing
	r.startFrame = at
	r.pausedTotal = 0
	r.raceNow = 0
	r.lastTick = 0
	r.judge.Go(0, r.controls.Throttle)
	if r.cfg.MaxRaceMs > 0 {
		r.limitID = r.sched.At(sched.Race, r.cfg.MaxRaceMs, "race_limit", func(float64) {
			r.limitID = 0
			r.stampDNF(&r.player)
			if r.driver != nil {
				r.stampDNF(&r.opponent)
			}
			r.finish()
		})
	}
	r.emit.Emit(EventGo, map[string]any{"frame_ms": at})
	if r.judge.Result() == skill.StartFalse {
		r.emit.Emit(EventLaunch, map[string]any{"result": skill.StartFalse})
	}
}

// Update advances the race by one frame.
func (r *Race) Update(deltaMs float64, c Controls) {
	if math.IsNaN(deltaMs) || math.IsInf(deltaMs, 0) || deltaMs < 0 {
		deltaMs = 0
	}
	r.controls = c
	throttleEdge := c.Throttle && !r.prevThrottle
	r.prevThrottle = c.Throttle

	r.frameNow += deltaMs
	r.sched.RunDue(sched.Frame, r.frameNow)

	switch r.phase {
	case PhaseCountdown:
		if c.Throttle {
			r.judgeLaunch(r.frameNow)
		}
		return
	case PhaseRacing:
	default:
		return
	}

	if c.MinigamePress && r.check.Open() {
		r.check.Press()
	}
	if r.frozen() {
		return
	}

	r.raceNow = r.elapsed()
	r.sched.RunDue(sched.Race, r.raceNow)
	if r.phase != PhaseRacing {
		return
	}

	if throttleEdge {
		r.judgeLaunch(r.raceNow)
	}

	delta := r.raceNow - r.lastTick
	r.lastTick = r.raceNow
	r.player.vehicle.Tick(vehicle.Input{
		DeltaMs:   delta,
		Throttle:  c.Throttle,
		ShiftUp:   c.ShiftUp,
		ShiftDown: c.ShiftDown,
		Nitrous:   c.Nitrous,
		ElapsedMs: r.raceNow,
	})
	if r.driver != nil && !r.cfg.OpponentDisabled {
		r.driver.Drive(delta, r.raceNow)
	}
	r.checkFinish()
}

func (r *Race) judgeLaunch(now float64) {
	result, judged := r.judge.Press(now)
	if !judged {
		return
	}
	if bonus := r.judge.Bonus(); bonus > 0 {
		r.player.vehicle.AddSpeed(bonus)
	}
	r.emit.Emit(EventLaunch, map[string]any{"result": result, "reaction_ms": r.judge.ReactionMs()})
	r.logger.Printf("launch result=%s reaction_ms=%.0f", result, r.judge.ReactionMs())
}

func (r *Race) checkFinish() {
	crossed := func(l *lane) bool {
		if l.vehicle == nil || l.vehicle.Finish().Set() || l.vehicle.Distance() < r.cfg.TrackLength {
			return false
		}
		l.overshoot = l.vehicle.Distance() - r.cfg.TrackLength
		l.vehicle.SetFinish(vehicle.FinishedAt(r.raceNow))
		r.emit.Emit(EventFinishLine, map[string]any{"lane": l.name, "time_ms": r.raceNow})
		return true
	}
	p := crossed(&r.player)
	o := false
	if r.driver != nil && !r.cfg.OpponentDisabled {
		o = crossed(&r.opponent)
	}
	if !p && !o {
		return
	}

	if r.driver == nil || r.cfg.OpponentDisabled {
		if r.driver != nil {
			r.stampDNF(&r.opponent)
		}
		r.finish()
		return
	}
	if r.player.vehicle.Finish().Set() && r.opponent.vehicle.Finish().Set() {
		r.finish()
		return
	}
	if r.dnfID == 0 {
		trailing := &r.opponent
		if !r.player.vehicle.Finish().Set() {
			trailing = &r.player
		}
		r.dnfID = r.sched.At(sched.Race, r.raceNow+r.cfg.DNFTimeoutMs, "dnf_deadline", func(float64) {
			r.dnfID = 0
			r.stampDNF(trailing)
			r.finish()
		})
	}
}

func (r *Race) stampDNF(l *lane) {
	if l.vehicle != nil && l.vehicle.SetFinish(vehicle.DidNotFinish()) {
		r.logger.Printf("dnf lane=%s race_ms=%.0f", l.name, r.raceNow)
	}
}

func (r *Race) finish() {
	if r.phase == PhaseFinished {
		return
	}
	r.phase = PhaseFinished
	r.check.Abort()
	for _, l := range []*lane{&r.player, &r.opponent} {
		if l.vehicle != nil {
			l.vehicle.Nitrous().Stop()
		}
	}
	for _, id := range []*sched.ID{&r.dnfID, &r.limitID} {
		if *id != 0 {
			r.sched.Cancel(*id)
			*id = 0
		}
	}

	res := &Results{
		TrackLength:      r.cfg.TrackLength,
		Player:           laneResult(r.player.vehicle, r.player.overshoot),
		Launch:           r.judge.Result(),
		ReactionMs:       r.judge.ReactionMs(),
		NitrousChecks:    r.check.Attempts(),
		NitrousSuccesses: r.check.Successes(),
	}
	opp := vehicle.DidNotFinish()
	if r.driver != nil {
		lr := laneResult(r.opponent.vehicle, r.opponent.overshoot)
		res.Opponent = &lr
		opp = lr.Finish
	}
	res.Outcome = Decide(res.Player.Finish, opp, r.player.overshoot, r.opponent.overshoot)
	if res.Player.Finish.Real() && opp.Real() {
		margin := math.Abs(res.Player.Finish.Ms - opp.Ms)
		res.MarginMs = &margin
	}
	r.outcome = res.Outcome
	r.results = res

	r.logger.Printf("race_finished outcome=%s player=%s opponent=%s", res.Outcome, res.Player.Time, FormatTime(opp))
	r.emit.Emit(EventFinished, res)
}

// Pause freezes the race clock. Only a running race without an open
// minigame can be paused.
func (r *Race) Pause() bool {
	if r.phase != PhaseRacing || r.userPaused || r.check.Open() {
		return false
	}
	r.setFrozen(func() { r.userPaused = true })
	r.emit.Emit(EventPaused, map[string]any{"race_ms": r.raceNow})
	return true
}

// Resume undoes Pause.
func (r *Race) Resume() bool {
	if !r.userPaused {
		return false
	}
	r.setFrozen(func() { r.userPaused = false })
	r.emit.Emit(EventResumed, map[string]any{"race_ms": r.raceNow})
	return true
}

func (r *Race) setSuspended(v bool) {
	r.setFrozen(func() { r.suspended = v })
}

// setFrozen applies change and books paused time when the frozen state flips.
func (r *Race) setFrozen(change func()) {
	was := r.frozen()
	change()
	now := r.frozen()
	switch {
	case !was && now:
		r.pauseStart = r.frameNow
	case was && !now:
		r.pausedTotal += r.frameNow - r.pauseStart
	}
}

func (r *Race) frozen() bool { return r.userPaused || r.suspended }

// elapsed is race time: frame time since GO minus every paused stretch.
func (r *Race) elapsed() float64 {
	if r.phase != PhaseRacing {
		return r.raceNow
	}
	t := r.frameNow - r.startFrame - r.pausedTotal
	if r.frozen() {
		t -= r.frameNow - r.pauseStart
	}
	return math.Max(t, 0)
}

// Reset abandons the race and returns to Idle, ready for Start.
func (r *Race) Reset() {
	r.check.Abort()
	for _, id := range []*sched.ID{&r.countdownID, &r.dnfID, &r.limitID} {
		if *id != 0 {
			r.sched.Cancel(*id)
			*id = 0
		}
	}
	r.sched.Invalidate()
	r.player.vehicle.Reset()
	r.player.overshoot = 0
	if r.driver != nil {
		r.driver.Reset()
		r.opponent.overshoot = 0
	}
	r.judge.Reset()
	r.check.Reset()

	r.phase = PhaseIdle
	r.countdown = 0
	r.userPaused = false
	r.suspended = false
	r.pausedTotal = 0
	r.pauseStart = 0
	r.startFrame = 0
	r.raceNow = 0
	r.lastTick = 0
	r.prevThrottle = false
	r.controls = Controls{}
	r.outcome = OutcomeNone
	r.results = nil
	r.emit.Emit(EventReset, nil)
	r.logger.Printf("race_reset")
}

func (r *Race) Phase() Phase                      { return r.phase }
func (r *Race) Countdown() int                    { return r.countdown }
func (r *Race) Config() Config                    { return r.cfg }
func (r *Race) FrameTime() float64                { return r.frameNow }
func (r *Race) RaceTime() float64                 { return r.elapsed() }
func (r *Race) Paused() bool                      { return r.userPaused }
func (r *Race) Suspended() bool                   { return r.suspended }
func (r *Race) Outcome() Outcome                  { return r.outcome }
func (r *Race) Player() *vehicle.Vehicle          { return r.player.vehicle }
func (r *Race) Opponent() Opponent                { return r.driver }
func (r *Race) Launch() *skill.PerfectStart       { return r.judge }
func (r *Race) NitrousCheck() *skill.NitrousCheck { return r.check }
func (r *Race) Scheduler() *sched.Scheduler       { return r.sched }

// Results returns the summary once the race has finished.
func (r *Race) Results() (*Results, bool) {
	return r.results, r.results != nil
}
