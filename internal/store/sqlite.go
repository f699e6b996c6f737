package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteDB implements DB on SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path. ":memory:" gives a private
// in-memory database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	memory := path == ":memory:"
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	if memory {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writes.
	db.SetMaxOpenConns(1)

	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to enable WAL mode: %w", err), db.Close())
		}
	}
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration files: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *SQLiteDB) SaveRace(ctx context.Context, r *RaceRecord) error {
	if err := checkHeat(r.Heat); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO races (
		id, seed_fingerprint, heat, player_car, opponent_car, opponent_skill, track_length,
		outcome, player_status, player_ms, opponent_status, opponent_ms, launch, results_json, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SeedFingerprint, r.Heat, r.PlayerCar, r.OpponentCar, r.OpponentSkill, r.TrackLength,
		r.Outcome, r.PlayerStatus, nullFloat(r.PlayerMs), r.OpponentStatus, nullFloat(r.OpponentMs),
		r.Launch, r.ResultsJSON, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save race: %w", err)
	}
	return nil
}

const raceColumns = `id, seed_fingerprint, heat, player_car, opponent_car, opponent_skill, track_length,
	outcome, player_status, player_ms, opponent_status, opponent_ms, launch, results_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRace(row scanner) (*RaceRecord, error) {
	var r RaceRecord
	var playerMs, opponentMs sql.NullFloat64
	err := row.Scan(
		&r.ID, &r.SeedFingerprint, &r.Heat, &r.PlayerCar, &r.OpponentCar, &r.OpponentSkill, &r.TrackLength,
		&r.Outcome, &r.PlayerStatus, &playerMs, &r.OpponentStatus, &opponentMs, &r.Launch, &r.ResultsJSON, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.PlayerMs = floatPtr(playerMs)
	r.OpponentMs = floatPtr(opponentMs)
	return &r, nil
}

func (s *SQLiteDB) GetRace(ctx context.Context, id string) (*RaceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+raceColumns+` FROM races WHERE id = ?`, id)
	r, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return r, nil
}

func (s *SQLiteDB) ListRaces(ctx context.Context, query RacesQuery) (*RacesList, error) {
	where := ""
	args := []any{}
	if query.Outcome != "" {
		where = "WHERE outcome = ?"
		args = append(args, query.Outcome)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM races "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}
	page, perPage, pages, offset := paginate(query.Page, query.PerPage, total)

	rows, err := s.db.QueryContext(ctx, `SELECT `+raceColumns+` FROM races `+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, append(args, perPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query races: %w", err)
	}
	defer rows.Close()

	races := []RaceRecord{}
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races = append(races, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate races: %w", err)
	}
	return &RacesList{Races: races, TotalCount: total, Page: page, PerPage: perPage, TotalPages: pages}, nil
}

func (s *SQLiteDB) DeleteRace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM races WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRaceNotFound
	}
	return nil
}

func (s *SQLiteDB) SaveRun(ctx context.Context, run *Run) error {
	if err := checkHeat(run.HeatStart, run.HeatEnd); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	timedOut := 0
	if run.TimedOut {
		timedOut = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (
		id, seed_fingerprint, heat_start, heat_end, metric, target_op, target_val, target_val2,
		params_json, hit_limit, timed_out, hit_count, total_evaluated,
		summary_min, summary_max, summary_mean, engine_version, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SeedFingerprint, run.HeatStart, run.HeatEnd, run.Metric, run.TargetOp, run.TargetVal, run.TargetVal2,
		run.ParamsJSON, run.HitLimit, timedOut, run.HitCount, run.TotalEvaluated,
		nullFloat(run.SummaryMin), nullFloat(run.SummaryMax), nullFloat(run.SummaryMean), run.EngineVersion, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// SaveHits inserts hits in one transaction.
func (s *SQLiteDB) SaveHits(ctx context.Context, runID string, hits []Hit) (err error) {
	if len(hits) == 0 {
		return nil
	}
	for _, h := range hits {
		if err := checkHeat(h.Heat); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hits (run_id, heat, metric, outcome) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range hits {
		if _, err = stmt.ExecContext(ctx, runID, h.Heat, h.Metric, h.Outcome); err != nil {
			return fmt.Errorf("failed to insert hit: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hits: %w", err)
	}
	return nil
}

const runColumns = `id, seed_fingerprint, heat_start, heat_end, metric, target_op, target_val, target_val2,
	params_json, hit_limit, timed_out, hit_count, total_evaluated,
	summary_min, summary_max, summary_mean, engine_version, created_at`

func scanRun(row scanner) (*Run, error) {
	var run Run
	var params sql.NullString
	var timedOut int
	var lo, hi, mean sql.NullFloat64
	err := row.Scan(
		&run.ID, &run.SeedFingerprint, &run.HeatStart, &run.HeatEnd, &run.Metric, &run.TargetOp, &run.TargetVal, &run.TargetVal2,
		&params, &run.HitLimit, &timedOut, &run.HitCount, &run.TotalEvaluated,
		&lo, &hi, &mean, &run.EngineVersion, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.ParamsJSON = params.String
	run.TimedOut = timedOut != 0
	run.SummaryMin = floatPtr(lo)
	run.SummaryMax = floatPtr(hi)
	run.SummaryMean = floatPtr(mean)
	return &run, nil
}

func (s *SQLiteDB) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *SQLiteDB) GetHits(ctx context.Context, runID string, limit, offset int) ([]Hit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, heat, metric, outcome FROM hits
		WHERE run_id = ? ORDER BY heat LIMIT ? OFFSET ?`, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.RunID, &h.Heat, &h.Metric, &h.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteDB) ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error) {
	where := ""
	args := []any{}
	if query.Metric != "" {
		where = "WHERE metric = ?"
		args = append(args, query.Metric)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}
	page, perPage, pages, offset := paginate(query.Page, query.PerPage, total)

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs `+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, append(args, perPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return &RunsList{Runs: runs, TotalCount: total, Page: page, PerPage: perPage, TotalPages: pages}, nil
}

func paginate(page, perPage, total int) (int, int, int, int) {
	if perPage <= 0 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}
	pages := (total + perPage - 1) / perPage
	return page, perPage, pages, (page - 1) * perPage
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
