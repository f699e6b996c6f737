// Package desktop exposes a live race session and race history to the Wails
// frontend. The frontend owns the render loop and calls Frame once per
// animation frame.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/MJE43/dragstrip/internal/api"
	"github.com/MJE43/dragstrip/internal/apitoken"
	"github.com/MJE43/dragstrip/internal/config"
	"github.com/MJE43/dragstrip/internal/engine"
	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/store"
	"github.com/MJE43/dragstrip/internal/sweep"
)

// ErrNoRace is returned by session calls made before NewRace.
var ErrNoRace = errors.New("no race loaded")

// RaceOptions picks the cars and the seeded heat for a new race.
type RaceOptions struct {
	Player   garage.Selection `json:"player"`
	Opponent garage.Selection `json:"opponent"`
	Skill    *float64         `json:"skill,omitempty"`
	Tutorial bool             `json:"tutorial"`
	Seed     string           `json:"seed"`
	Heat     uint64           `json:"heat"`
}

// GarageInfo is the catalogue shown in the car picker.
type GarageInfo struct {
	Models  []garage.Model  `json:"models"`
	Stages  []garage.Stage  `json:"stages"`
	Tunings []garage.Tuning `json:"tunings"`
}

// APIInfo tells the frontend where the local HTTP API listens.
type APIInfo struct {
	URL          string `json:"url"`
	TokenEnabled bool   `json:"tokenEnabled"`
}

// App is the Wails-bound session object.
type App struct {
	ctx    context.Context
	cfg    config.Config
	logger *log.Logger
	emit   race.Emitter

	db     store.DB
	server *http.Server
	apiURL string
	token  string

	mu    sync.Mutex
	race  *race.Race
	meta  store.RaceMeta
	saved string
}

// Option configures an App.
type Option func(*App)

func WithLogger(l *log.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithEmitter replaces the Wails event emitter.
func WithEmitter(e race.Emitter) Option {
	return func(a *App) { a.emit = e }
}

func New(cfg config.Config, opts ...Option) *App {
	a := &App{cfg: cfg, logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Startup opens the history database and starts the local HTTP API.
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx
	if a.emit == nil {
		a.emit = &wailsEmitter{ctx: ctx}
	}

	if a.cfg.DBPath() != ":memory:" {
		if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.NewSQLiteDB(a.cfg.DBPath())
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return multierr.Append(err, db.Close())
	}
	a.db = db

	if a.cfg.HTTPAddr == "" {
		return nil
	}
	if a.cfg.RequireToken {
		tokens := apitoken.NewKeyringStore(a.cfg.KeyringService, a.cfg.TokenFallbackPath())
		token, created, err := tokens.Ensure(a.cfg.TokenName)
		if err != nil {
			return fmt.Errorf("api token: %w", err)
		}
		if created {
			a.logger.Printf("api_token_created name=%s", a.cfg.TokenName)
		}
		a.token = token
	}
	return a.startServer()
}

func (a *App) startServer() error {
	srv := api.NewServer(a.db, api.WithLogger(a.logger), api.WithToken(a.token))
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	a.server = &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.apiURL = "http://" + ln.Addr().String()
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Printf("api_server_stopped err=%v", err)
		}
	}()
	a.logger.Printf("api_server_started url=%s token_enabled=%t", a.apiURL, a.token != "")
	return nil
}

// Shutdown stops the HTTP API and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = multierr.Append(err, a.server.Shutdown(ctx))
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return err
}

// ------------- Wails binding methods (UI calls) -------------

func (a *App) Garage() GarageInfo {
	return GarageInfo{
		Models:  garage.ListModels(),
		Stages:  garage.ListStages(),
		Tunings: garage.ListTunings(),
	}
}

func (a *App) APIInfo() APIInfo {
	return APIInfo{URL: a.apiURL, TokenEnabled: a.token != ""}
}

// NewRace replaces the current race. An empty seed picks a random one.
func (a *App) NewRace(opts RaceOptions) (race.View, error) {
	if opts.Heat > sweep.MaxHeat {
		return race.View{}, fmt.Errorf("%w: heat %d above %d", sweep.ErrInvalidRange, opts.Heat, sweep.MaxHeat)
	}
	cfg := a.cfg
	if opts.Player.Model != "" {
		cfg.Player = opts.Player
	}
	if opts.Opponent.Model != "" {
		cfg.Opponent = opts.Opponent
	}
	if opts.Skill != nil {
		cfg.Bot.Skill = *opts.Skill
	}
	if opts.Tutorial {
		cfg.Race = race.TutorialConfig()
	}
	setup, err := cfg.Setup()
	if err != nil {
		return race.View{}, err
	}
	seed := opts.Seed
	if seed == "" {
		seed = apitoken.Generate()
	}

	r, err := race.Build(setup, engine.NewStream(seed, sweep.BotSalt, opts.Heat, 0),
		race.WithEmitter(a.emitter()), race.WithLogger(a.logger))
	if err != nil {
		return race.View{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.race = r
	a.saved = ""
	a.meta = store.RaceMeta{
		SeedFingerprint: engine.Fingerprint(seed),
		Heat:            opts.Heat,
		PlayerCar:       cfg.Player.Model,
		OpponentSkill:   setup.Bot.Skill,
	}
	if !setup.Race.OpponentDisabled {
		a.meta.OpponentCar = cfg.Opponent.Model
	}
	a.logger.Printf("race_loaded seed_fp=%s heat=%d player=%s tutorial=%t", a.meta.SeedFingerprint, opts.Heat, setup.Player.Name, opts.Tutorial)
	return r.View(), nil
}

func (a *App) emitter() race.Emitter {
	if a.emit == nil {
		return race.NopEmitter{}
	}
	return a.emit
}

// StartRace begins the countdown.
func (a *App) StartRace() (race.View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.race == nil {
		return race.View{}, ErrNoRace
	}
	if err := a.race.Start(); err != nil {
		return race.View{}, err
	}
	return a.race.View(), nil
}

// Frame advances the race by deltaMs with the controls of this frame. The
// finished race is stored once.
func (a *App) Frame(deltaMs float64, controls race.Controls) (race.View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.race == nil {
		return race.View{}, ErrNoRace
	}
	a.race.Update(deltaMs, controls)
	if res, ok := a.race.Results(); ok && a.saved == "" && a.db != nil {
		if err := a.save(res); err != nil {
			a.logger.Printf("race_save_failed err=%v", err)
		}
	}
	return a.race.View(), nil
}

func (a *App) save(res *race.Results) error {
	rec, err := store.RecordFromResults(res, a.meta)
	if err != nil {
		return err
	}
	if err := a.db.SaveRace(a.context(), rec); err != nil {
		return err
	}
	a.saved = rec.ID
	return nil
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) Pause() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.race != nil && a.race.Pause()
}

func (a *App) Resume() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.race != nil && a.race.Resume()
}

// ResetRace puts the current race back to idle with the same cars and seed.
func (a *App) ResetRace() (race.View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.race == nil {
		return race.View{}, ErrNoRace
	}
	a.race.Reset()
	a.saved = ""
	return a.race.View(), nil
}

// Finished is a race summary plus its history id, empty when not stored.
type Finished struct {
	ID      string        `json:"id,omitempty"`
	Results *race.Results `json:"results"`
}

// Results returns the summary of the finished race.
func (a *App) Results() (Finished, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.race == nil {
		return Finished{}, ErrNoRace
	}
	res, ok := a.race.Results()
	if !ok {
		return Finished{}, fmt.Errorf("race not finished")
	}
	return Finished{ID: a.saved, Results: res}, nil
}

// History returns a page of stored races, newest first.
func (a *App) History(outcome string, page, perPage int) (*store.RacesList, error) {
	if a.db == nil {
		return nil, fmt.Errorf("history not available")
	}
	return a.db.ListRaces(a.context(), store.RacesQuery{Outcome: outcome, Page: page, PerPage: perPage})
}

func (a *App) DeleteRace(id string) error {
	if a.db == nil {
		return fmt.Errorf("history not available")
	}
	return a.db.DeleteRace(a.context(), id)
}
