// Command dragsim runs headless drag races and heat sweeps from the shell.
//
//	dragsim race  -seed abc -heat 3 -player gt40 -stage 3
//	dragsim sweep -seed abc -from 0 -to 999 -metric margin -op gt -val 0
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/multierr"

	"github.com/MJE43/dragstrip/internal/config"
	"github.com/MJE43/dragstrip/internal/engine"
	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/store"
	"github.com/MJE43/dragstrip/internal/sweep"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "race":
		err = runRace(ctx, os.Args[2:])
	case "sweep":
		err = runSweep(ctx, os.Args[2:])
	case "garage":
		err = printJSON(map[string]any{
			"models":  garage.ListModels(),
			"stages":  garage.ListStages(),
			"tunings": garage.ListTunings(),
			"metrics": sweepMetricKeys(),
		})
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dragsim: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dragsim race|sweep|garage [flags]")
}

// common holds the flags shared by race and sweep.
type common struct {
	configPath string
	seed       string
	player     garage.Selection
	opponent   garage.Selection
	skill      float64
	tutorial   bool
	scriptPath string
	stepMs     float64
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.DefaultPath(), "Path to the JSON settings file")
	fs.StringVar(&c.seed, "seed", "", "Seed for the opponent's random stream (required)")
	fs.StringVar(&c.player.Model, "player", "", "Player car model")
	fs.IntVar(&c.player.Stage, "stage", 0, "Player upgrade stage (1-3)")
	fs.StringVar(&c.player.Tuning, "tuning", "", "Player nitrous tuning")
	fs.StringVar(&c.opponent.Model, "opponent", "", "Opponent car model")
	fs.IntVar(&c.opponent.Stage, "opponent-stage", 0, "Opponent upgrade stage (1-3)")
	fs.Float64Var(&c.skill, "skill", -1, "Opponent skill in [0, 1]; negative keeps the configured value")
	fs.BoolVar(&c.tutorial, "tutorial", false, "Solo run on the long tutorial strip")
	fs.StringVar(&c.scriptPath, "script", "", "JavaScript pilot file defining drive(state)")
	fs.Float64Var(&c.stepMs, "step", 0, "Frame step in ms; 0 keeps the configured value")
	fs.BoolVar(&c.verbose, "v", false, "Verbose logging to stderr")
}

func (c *common) request(cfg config.Config) (sweep.Request, error) {
	if c.seed == "" {
		return sweep.Request{}, fmt.Errorf("-seed is required")
	}
	req := sweep.Request{
		Seed:     c.seed,
		Player:   cfg.Player,
		Opponent: cfg.Opponent,
		Skill:    &cfg.Bot.Skill,
		Pilot:    &cfg.Pilot,
		StepMs:   cfg.StepMs,
	}
	raceCfg := cfg.Race
	if c.tutorial {
		raceCfg = race.TutorialConfig()
	}
	req.Race = &raceCfg
	if c.player.Model != "" {
		req.Player = c.player
	}
	if c.opponent.Model != "" {
		req.Opponent = c.opponent
	}
	if c.skill >= 0 {
		skill := c.skill
		req.Skill = &skill
	}
	if c.stepMs > 0 {
		req.StepMs = c.stepMs
	}
	if c.scriptPath != "" {
		raw, err := os.ReadFile(c.scriptPath)
		if err != nil {
			return sweep.Request{}, fmt.Errorf("read script: %w", err)
		}
		req.Script = string(raw)
	}
	return req, nil
}

func runRace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("race", flag.ExitOnError)
	var c common
	c.register(fs)
	heat := fs.Uint64("heat", 0, "Heat number")
	asJSON := fs.Bool("json", false, "Print the full results as JSON")
	save := fs.Bool("save", false, "Store the race in the history database")
	fs.Parse(args)

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	req, err := c.request(cfg)
	if err != nil {
		return err
	}
	if c.verbose {
		log.SetFlags(log.Lmicroseconds)
		log.Printf("race_start seed_fp=%s heat=%d", engine.Fingerprint(req.Seed), *heat)
	}

	start := time.Now()
	res, err := sweep.RunHeat(ctx, req, *heat)
	if err != nil {
		return err
	}
	if *save {
		if err := saveRace(ctx, cfg, req, *heat, res); err != nil {
			return err
		}
	}
	if *asJSON {
		return printJSON(res)
	}

	fmt.Printf("outcome      %s\n", res.Outcome)
	fmt.Printf("launch       %s (%.0f ms)\n", res.Launch, res.ReactionMs)
	fmt.Printf("player       %s  top %.1f  0-100 %s  shifts %d (%s%% perfect)\n",
		res.Player.Time, res.Player.TopSpeed, res.Player.ZeroToHundred, res.Player.ShiftCount, res.Player.PerfectShiftPercent)
	if res.Opponent != nil {
		fmt.Printf("opponent     %s  top %.1f  0-100 %s  shifts %d (%s%% perfect)\n",
			res.Opponent.Time, res.Opponent.TopSpeed, res.Opponent.ZeroToHundred, res.Opponent.ShiftCount, res.Opponent.PerfectShiftPercent)
	}
	if res.MarginMs != nil {
		fmt.Printf("margin       %ss\n", race.Seconds(*res.MarginMs))
	}
	fmt.Printf("nitrous      %d/%d checks passed\n", res.NitrousSuccesses, res.NitrousChecks)
	if c.verbose {
		log.Printf("race_done duration=%v", time.Since(start))
	}
	return nil
}

func saveRace(ctx context.Context, cfg config.Config, req sweep.Request, heat uint64, res *race.Results) (err error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	rec, err := store.RecordFromResults(res, store.RaceMeta{
		SeedFingerprint: engine.Fingerprint(req.Seed),
		Heat:            heat,
		PlayerCar:       req.Player.Model,
		OpponentCar:     req.Opponent.Model,
		OpponentSkill:   req.OpponentSkill(),
	})
	if err != nil {
		return err
	}
	if err := db.SaveRace(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "saved race %s\n", rec.ID)
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	var c common
	c.register(fs)
	from := fs.Uint64("from", 0, "First heat")
	to := fs.Uint64("to", 99, "Last heat (inclusive)")
	metric := fs.String("metric", "player_win", "Metric to filter on")
	op := fs.String("op", "ge", "Target operator: eq, gt, ge, lt, le, between, outside")
	val := fs.Float64("val", 0, "Target value")
	val2 := fs.Float64("val2", 0, "Upper target value for between/outside")
	limit := fs.Int("limit", 0, "Maximum hits to print (0 = all)")
	timeout := fs.Duration("timeout", 0, "Stop after this long (0 = no limit)")
	workers := fs.Int("workers", 0, "Concurrent races (0 = configured or one per CPU)")
	fs.Parse(args)

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	req, err := c.request(cfg)
	if err != nil {
		return err
	}
	req.HeatStart, req.HeatEnd = *from, *to
	req.Metric = *metric
	req.TargetOp = sweep.TargetOp(*op)
	req.TargetVal, req.TargetVal2 = *val, *val2
	req.Limit = *limit
	req.TimeoutMs = int(timeout.Milliseconds())

	n := *workers
	if n == 0 {
		n = cfg.Workers
	}
	opts := []sweep.Option{sweep.WithWorkers(n)}
	if c.verbose {
		opts = append(opts, sweep.WithLogger(log.New(os.Stderr, "[sweep] ", log.LstdFlags)))
	}
	result, err := sweep.NewSweeper(opts...).Sweep(ctx, req)
	if result == nil {
		return err
	}
	for _, heatErr := range multierr.Errors(err) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", heatErr)
	}
	return printJSON(result)
}

func openDB(ctx context.Context, cfg config.Config) (store.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return db, nil
}

func sweepMetricKeys() []string {
	var keys []string
	for _, m := range sweep.ListMetrics() {
		keys = append(keys, m.Key)
	}
	return keys
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
