// Package store persists finished races and sweep runs in SQLite.
package store

import (
	"context"
	"time"
)

// DB is the persistence interface used by the API and the desktop app.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error

	SaveRace(ctx context.Context, race *RaceRecord) error
	GetRace(ctx context.Context, id string) (*RaceRecord, error)
	ListRaces(ctx context.Context, query RacesQuery) (*RacesList, error)
	DeleteRace(ctx context.Context, id string) error

	SaveRun(ctx context.Context, run *Run) error
	SaveHits(ctx context.Context, runID string, hits []Hit) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetHits(ctx context.Context, runID string, limit, offset int) ([]Hit, error)
	ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error)
}

// RaceRecord is a finished race. ResultsJSON holds the full results summary.
type RaceRecord struct {
	ID              string    `json:"id" db:"id"`
	SeedFingerprint string    `json:"seed_fingerprint" db:"seed_fingerprint"`
	Heat            uint64    `json:"heat" db:"heat"`
	PlayerCar       string    `json:"player_car" db:"player_car"`
	OpponentCar     string    `json:"opponent_car" db:"opponent_car"`
	OpponentSkill   float64   `json:"opponent_skill" db:"opponent_skill"`
	TrackLength     float64   `json:"track_length" db:"track_length"`
	Outcome         string    `json:"outcome" db:"outcome"`
	PlayerStatus    string    `json:"player_status" db:"player_status"`
	PlayerMs        *float64  `json:"player_ms,omitempty" db:"player_ms"`
	OpponentStatus  string    `json:"opponent_status" db:"opponent_status"`
	OpponentMs      *float64  `json:"opponent_ms,omitempty" db:"opponent_ms"`
	Launch          string    `json:"launch" db:"launch"`
	ResultsJSON     string    `json:"results_json" db:"results_json"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// RacesQuery filters and paginates race history.
type RacesQuery struct {
	Outcome string `json:"outcome,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// RacesList is a page of race history.
type RacesList struct {
	Races      []RaceRecord `json:"races"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PerPage    int          `json:"perPage"`
	TotalPages int          `json:"totalPages"`
}

// Run is a sweep over a range of heats.
type Run struct {
	ID              string    `json:"id" db:"id"`
	SeedFingerprint string    `json:"seed_fingerprint" db:"seed_fingerprint"`
	HeatStart       uint64    `json:"heat_start" db:"heat_start"`
	HeatEnd         uint64    `json:"heat_end" db:"heat_end"`
	Metric          string    `json:"metric" db:"metric"`
	TargetOp        string    `json:"target_op" db:"target_op"`
	TargetVal       float64   `json:"target_val" db:"target_val"`
	TargetVal2      float64   `json:"target_val2" db:"target_val2"`
	ParamsJSON      string    `json:"params_json" db:"params_json"`
	HitLimit        int       `json:"hit_limit" db:"hit_limit"`
	TimedOut        bool      `json:"timed_out" db:"timed_out"`
	HitCount        int       `json:"hit_count" db:"hit_count"`
	TotalEvaluated  uint64    `json:"total_evaluated" db:"total_evaluated"`
	SummaryMin      *float64  `json:"summary_min,omitempty" db:"summary_min"`
	SummaryMax      *float64  `json:"summary_max,omitempty" db:"summary_max"`
	SummaryMean     *float64  `json:"summary_mean,omitempty" db:"summary_mean"`
	EngineVersion   string    `json:"engine_version" db:"engine_version"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Hit is a heat that matched a sweep's target.
type Hit struct {
	ID      int64   `json:"id" db:"id"`
	RunID   string  `json:"run_id" db:"run_id"`
	Heat    uint64  `json:"heat" db:"heat"`
	Metric  float64 `json:"metric" db:"metric"`
	Outcome string  `json:"outcome" db:"outcome"`
}

// RunsQuery filters and paginates sweep runs.
type RunsQuery struct {
	Metric  string `json:"metric,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// RunsList is a page of sweep runs.
type RunsList struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"totalCount"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}
