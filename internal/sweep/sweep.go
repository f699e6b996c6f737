// Package sweep runs one seeded headless race per heat across a range of
// heats and keeps the heats whose metric matches a target.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/dragstrip/internal/bot"
	"github.com/MJE43/dragstrip/internal/engine"
	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/pilot"
	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/scripting"
)

// EngineVersion is stamped on every result. Set at build time via ldflags.
var EngineVersion = "dev"

// MaxHeats caps the number of races in one sweep.
const MaxHeats = 100_000

// MaxHeat is the largest heat number accepted. Heats are stored in signed
// 64-bit columns.
const MaxHeat uint64 = math.MaxInt64

// BotSalt keys the opponent's random stream for a heat.
const BotSalt = "bot"

// TargetOp represents comparison operations for sweeping
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

// Valid reports whether op is a known operator.
func (op TargetOp) Valid() bool {
	switch op {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpBetween, OpOutside:
		return true
	}
	return false
}

// Request describes a sweep. Empty selections use the garage defaults and a
// nil Race uses race.DefaultConfig.
type Request struct {
	Seed      string           `json:"seed"`
	HeatStart uint64           `json:"heat_start"`
	HeatEnd   uint64           `json:"heat_end"`
	Player    garage.Selection `json:"player"`
	Opponent  garage.Selection `json:"opponent"`
	// Skill overrides the opponent's skill; nil keeps bot.DefaultConfig.
	Skill *float64      `json:"skill,omitempty"`
	Race  *race.Config  `json:"race,omitempty"`
	Pilot *pilot.Config `json:"pilot,omitempty"`
	// Script replaces the automatic pilot with a scripted one.
	Script string  `json:"script,omitempty"`
	StepMs float64 `json:"step_ms,omitempty"`

	Metric     string   `json:"metric"`
	TargetOp   TargetOp `json:"target_op"`
	TargetVal  float64  `json:"target_val"`
	TargetVal2 float64  `json:"target_val2,omitempty"` // for "between" and "outside"
	Tolerance  float64  `json:"tolerance"`
	Limit      int      `json:"limit,omitempty"`
	TimeoutMs  int      `json:"timeout_ms,omitempty"`
}

// Hit is a heat whose metric matched the target.
type Hit struct {
	Heat    uint64       `json:"heat"`
	Metric  float64      `json:"metric"`
	Outcome race.Outcome `json:"outcome"`
}

// Summary contains aggregate statistics over the matching heats.
type Summary struct {
	TotalEvaluated uint64  `json:"total_evaluated"`
	HitsFound      int     `json:"hits_found"`
	Skipped        uint64  `json:"skipped"`
	Failed         uint64  `json:"failed"`
	MinMetric      float64 `json:"min_metric"`
	MaxMetric      float64 `json:"max_metric"`
	MeanMetric     float64 `json:"mean_metric"`
	TimedOut       bool    `json:"timed_out,omitempty"`
}

// Result contains the complete sweep results. Hits are ordered by heat.
type Result struct {
	Hits            []Hit   `json:"hits"`
	Summary         Summary `json:"summary"`
	SeedFingerprint string  `json:"seed_fingerprint"`
	EngineVersion   string  `json:"engine_version"`
	Echo            Request `json:"echo"`
}

// TargetEvaluator handles target condition evaluation with tolerance
type TargetEvaluator struct {
	op        TargetOp
	val1      float64
	val2      float64
	tolerance float64
}

func NewTargetEvaluator(op TargetOp, val1, val2, tolerance float64) *TargetEvaluator {
	return &TargetEvaluator{op: op, val1: val1, val2: val2, tolerance: tolerance}
}

// Matches checks if a metric matches the target criteria
func (te *TargetEvaluator) Matches(metric float64) bool {
	switch te.op {
	case OpEqual:
		return math.Abs(metric-te.val1) <= te.tolerance
	case OpGreater:
		return metric > te.val1+te.tolerance
	case OpGreaterEqual:
		return metric >= te.val1-te.tolerance
	case OpLess:
		return metric < te.val1-te.tolerance
	case OpLessEqual:
		return metric <= te.val1+te.tolerance
	case OpBetween:
		return metric >= te.val1-te.tolerance && metric <= te.val2+te.tolerance
	case OpOutside:
		return metric < te.val1-te.tolerance || metric > te.val2+te.tolerance
	default:
		return false
	}
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithWorkers sets the number of concurrent races.
func WithWorkers(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sweeper runs heats on a worker pool. Each heat owns its scheduler, its
// vehicles and its random stream, so races share nothing.
type Sweeper struct {
	workerCount int
	batchSize   uint64
	logger      *log.Logger
}

// NewSweeper creates a sweeper with one worker per CPU.
func NewSweeper(opts ...Option) *Sweeper {
	s := &Sweeper{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   64,
		logger:      log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type job struct {
	start, end uint64
}

// plan is the per-sweep state shared read-only by all workers.
type plan struct {
	setup     race.Setup
	pilot     pilot.Config
	script    string
	seed      string
	stepMs    float64
	maxFrames int
}

// OpponentSkill is the skill the opponent races with.
func (req Request) OpponentSkill() float64 {
	if req.Skill != nil {
		return *req.Skill
	}
	return bot.DefaultConfig().Skill
}

func (req Request) plan() (*plan, error) {
	raceCfg := race.DefaultConfig()
	if req.Race != nil {
		raceCfg = *req.Race
	}
	if err := raceCfg.Validate(); err != nil {
		return nil, err
	}
	// The frame budget is derived from the limit.
	if raceCfg.MaxRaceMs <= 0 {
		return nil, ErrNoRaceLimit
	}
	player, err := garage.Build(req.Player)
	if err != nil {
		return nil, fmt.Errorf("player car: %w", err)
	}
	opponent, err := garage.Build(req.Opponent)
	if err != nil {
		return nil, fmt.Errorf("opponent car: %w", err)
	}
	botCfg := bot.DefaultConfig()
	botCfg.Skill = req.OpponentSkill()
	botCfg.TrackLength = raceCfg.TrackLength
	if err := botCfg.Validate(); err != nil {
		return nil, err
	}

	p := &plan{
		setup:  race.Setup{Race: raceCfg, Player: player, Opponent: opponent, Bot: botCfg},
		pilot:  pilot.DefaultConfig(),
		script: req.Script,
		seed:   req.Seed,
		stepMs: req.StepMs,
	}
	if req.Pilot != nil {
		p.pilot = *req.Pilot
	}
	if p.stepMs <= 0 {
		p.stepMs = 1000.0 / 60
	}
	budget := raceCfg.MaxRaceMs + float64(raceCfg.CountdownFrom)*raceCfg.CountdownIntervalMs + raceCfg.Check.WindowMs*8
	p.maxFrames = int(budget/p.stepMs) + 1
	return p, nil
}

// Sweep runs every heat in [HeatStart, HeatEnd]. Heats that fail are
// counted and their errors returned combined alongside the partial result.
func (s *Sweeper) Sweep(ctx context.Context, req Request) (*Result, error) {
	if req.HeatEnd < req.HeatStart {
		return nil, ErrInvalidRange
	}
	if req.HeatEnd-req.HeatStart >= MaxHeats {
		return nil, fmt.Errorf("%w: more than %d heats", ErrInvalidRange, MaxHeats)
	}
	if req.HeatEnd > MaxHeat {
		return nil, fmt.Errorf("%w: heat %d above %d", ErrInvalidRange, req.HeatEnd, MaxHeat)
	}
	metric, ok := GetMetric(req.Metric)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, req.Metric)
	}
	if !req.TargetOp.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, req.TargetOp)
	}
	if req.Script != "" {
		if _, err := scripting.NewPilot(req.Script, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	}
	p, err := req.plan()
	if err != nil {
		return nil, err
	}

	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = 1e-9
	}
	evaluator := NewTargetEvaluator(req.TargetOp, req.TargetVal, req.TargetVal2, tolerance)

	runCtx := ctx
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	jobs := make(chan job, s.workerCount*2)
	g.Go(func() error {
		s.generateJobs(gctx, jobs, req.HeatStart, req.HeatEnd)
		return nil
	})

	var (
		mu        sync.Mutex
		hits      []Hit
		heatErr   error
		evaluated uint64
		skipped   uint64
		failed    uint64
	)
	// runOne evaluates a heat and reports false once the sweep is cancelled.
	runOne := func(heat uint64) bool {
		res, err := p.runHeat(gctx, heat)
		if err != nil {
			if gctx.Err() != nil {
				return false
			}
			atomic.AddUint64(&failed, 1)
			mu.Lock()
			heatErr = multierr.Append(heatErr, fmt.Errorf("heat %d: %w", heat, err))
			mu.Unlock()
			return true
		}
		atomic.AddUint64(&evaluated, 1)
		value, ok := metric.Extract(res)
		if !ok {
			atomic.AddUint64(&skipped, 1)
			return true
		}
		if evaluator.Matches(value) {
			mu.Lock()
			hits = append(hits, Hit{Heat: heat, Metric: value, Outcome: res.Outcome})
			mu.Unlock()
		}
		return true
	}
	for i := 0; i < s.workerCount; i++ {
		g.Go(func() error {
			for j := range jobs {
				for heat := j.start; ; heat++ {
					if gctx.Err() != nil || !runOne(heat) {
						return nil
					}
					if heat == j.end {
						break
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	sort.Slice(hits, func(i, j int) bool { return hits[i].Heat < hits[j].Heat })
	summary := calculateSummary(hits, atomic.LoadUint64(&evaluated), timedOut)
	summary.Skipped = atomic.LoadUint64(&skipped)
	summary.Failed = atomic.LoadUint64(&failed)
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	if hits == nil {
		hits = []Hit{}
	}

	s.logger.Printf("sweep_done metric=%s heats=%d evaluated=%d hits=%d failed=%d timed_out=%t duration_ms=%d",
		req.Metric, req.HeatEnd-req.HeatStart+1, summary.TotalEvaluated, summary.HitsFound,
		summary.Failed, timedOut, time.Since(started).Milliseconds())

	echo := req
	echo.Seed = ""
	return &Result{
		Hits:            hits,
		Summary:         summary,
		SeedFingerprint: engine.Fingerprint(req.Seed),
		EngineVersion:   EngineVersion,
		Echo:            echo,
	}, heatErr
}

// RunHeat runs a single heat of req and returns its results.
func RunHeat(ctx context.Context, req Request, heat uint64) (*race.Results, error) {
	if heat > MaxHeat {
		return nil, fmt.Errorf("%w: heat %d above %d", ErrInvalidRange, heat, MaxHeat)
	}
	p, err := req.plan()
	if err != nil {
		return nil, err
	}
	return p.runHeat(ctx, heat)
}

func (p *plan) runHeat(ctx context.Context, heat uint64) (*race.Results, error) {
	rng := engine.NewStream(p.seed, BotSalt, heat, 0)
	r, err := race.Build(p.setup, rng)
	if err != nil {
		return nil, err
	}
	var driver race.Pilot = pilot.NewAuto(p.pilot)
	if p.script != "" {
		sp, err := scripting.NewPilot(p.script, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
		driver = sp
	}
	return race.Run(ctx, r, driver, p.stepMs, p.maxFrames)
}

// generateJobs splits the heat range into batches.
func (s *Sweeper) generateJobs(ctx context.Context, jobs chan<- job, start, end uint64) {
	defer close(jobs)
	for current := start; current <= end; {
		batchEnd := current + s.batchSize - 1
		if batchEnd > end || batchEnd < current {
			batchEnd = end
		}
		select {
		case jobs <- job{start: current, end: batchEnd}:
		case <-ctx.Done():
			return
		}
		if batchEnd == end {
			return
		}
		current = batchEnd + 1
	}
}

func calculateSummary(hits []Hit, totalEvaluated uint64, timedOut bool) Summary {
	summary := Summary{
		TotalEvaluated: totalEvaluated,
		HitsFound:      len(hits),
		TimedOut:       timedOut,
	}
	if len(hits) == 0 {
		return summary
	}
	lo, hi, sum := hits[0].Metric, hits[0].Metric, 0.0
	for _, h := range hits {
		lo = math.Min(lo, h.Metric)
		hi = math.Max(hi, h.Metric)
		sum += h.Metric
	}
	summary.MinMetric = lo
	summary.MaxMetric = hi
	summary.MeanMetric = sum / float64(len(hits))
	return summary
}
