package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/store"
	"github.com/MJE43/dragstrip/internal/sweep"
)

// mockDB is an in-memory store.DB for testing
type mockDB struct {
	mu    sync.Mutex
	races map[string]*store.RaceRecord
	runs  map[string]*store.Run
	hits  map[string][]store.Hit
	seq   int
}

func newMockDB() *mockDB {
	return &mockDB{
		races: map[string]*store.RaceRecord{},
		runs:  map[string]*store.Run{},
		hits:  map[string][]store.Hit{},
	}
}

func (m *mockDB) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockDB) Close() error                      { return nil }
func (m *mockDB) Migrate(ctx context.Context) error { return nil }

func (m *mockDB) SaveRace(ctx context.Context, r *store.RaceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID("race")
	m.races[r.ID] = r
	return nil
}

func (m *mockDB) GetRace(ctx context.Context, id string) (*store.RaceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[id]
	if !ok {
		return nil, store.ErrRaceNotFound
	}
	return r, nil
}

func (m *mockDB) ListRaces(ctx context.Context, q store.RacesQuery) (*store.RacesList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &store.RacesList{Page: q.Page, PerPage: q.PerPage}
	for _, r := range m.races {
		if q.Outcome == "" || r.Outcome == q.Outcome {
			out.Races = append(out.Races, *r)
		}
	}
	out.TotalCount = len(out.Races)
	return out, nil
}

func (m *mockDB) DeleteRace(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.races[id]; !ok {
		return store.ErrRaceNotFound
	}
	delete(m.races, id)
	return nil
}

func (m *mockDB) SaveRun(ctx context.Context, run *store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.nextID("run")
	m.runs[run.ID] = run
	return nil
}

func (m *mockDB) SaveHits(ctx context.Context, runID string, hits []store.Hit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[runID] = append(m.hits[runID], hits...)
	return nil
}

func (m *mockDB) GetRun(ctx context.Context, id string) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return run, nil
}

func (m *mockDB) GetHits(ctx context.Context, runID string, limit, offset int) ([]store.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := m.hits[runID]
	if offset >= len(hits) {
		return []store.Hit{}, nil
	}
	hits = hits[offset:]
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *mockDB) ListRuns(ctx context.Context, q store.RunsQuery) (*store.RunsList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &store.RunsList{Page: q.Page, PerPage: q.PerPage}
	for _, run := range m.runs {
		out.Runs = append(out.Runs, *run)
	}
	out.TotalCount = len(out.Runs)
	return out, nil
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	h := NewServer(newMockDB()).Routes()
	w := do(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Checks["database"] != "healthy" {
		t.Errorf("unexpected health: %+v", resp)
	}
	if w.Header().Get("X-Engine-Version") == "" {
		t.Error("missing X-Engine-Version header")
	}
}

func TestGarageEndpoint(t *testing.T) {
	h := NewServer(nil).Routes()
	w := do(t, h, http.MethodGet, "/api/v1/garage", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp GarageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Models) != len(garage.ListModels()) || len(resp.Stages) != 3 || len(resp.Tunings) != 4 {
		t.Errorf("unexpected catalogue: %d models %d stages %d tunings", len(resp.Models), len(resp.Stages), len(resp.Tunings))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, NewServer(nil).Routes(), http.MethodGet, "/api/v1/metrics", nil)
	var resp MetricsListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Metrics) != len(sweep.ListMetrics()) {
		t.Errorf("got %d metrics", len(resp.Metrics))
	}
}

func TestTokenMiddleware(t *testing.T) {
	h := NewServer(nil, WithToken("s3cret")).Routes()

	if w := do(t, h, http.MethodGet, "/api/v1/garage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/garage", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/garage", nil, "Authorization", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Fatalf("good token: status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay open: status %d", w.Code)
	}
}

func TestSimulateAndHistory(t *testing.T) {
	db := newMockDB()
	h := NewServer(db).Routes()

	req := SimulateRequest{Seed: "api-seed", Heat: 4, Player: garage.Selection{Model: "gt40", Stage: 3}, Save: true}
	w := do(t, h, http.MethodPost, "/api/v1/races", req)
	if w.Code != http.StatusOK {
		t.Fatalf("simulate status %d: %s", w.Code, w.Body.String())
	}
	var resp SimulateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Results == nil || resp.Results.Outcome == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.SeedFingerprint == "" || resp.SeedFingerprint == "api-seed" {
		t.Errorf("fingerprint = %q", resp.SeedFingerprint)
	}

	// The same seed and heat replay the same race.
	again := do(t, h, http.MethodPost, "/api/v1/races", SimulateRequest{Seed: "api-seed", Heat: 4, Player: garage.Selection{Model: "gt40", Stage: 3}})
	var replay SimulateResponse
	if err := json.NewDecoder(again.Body).Decode(&replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replay.Results.Player.Finish != resp.Results.Player.Finish || replay.Results.Outcome != resp.Results.Outcome {
		t.Errorf("replay differs: %+v vs %+v", replay.Results.Player.Finish, resp.Results.Player.Finish)
	}

	w = do(t, h, http.MethodGet, "/api/v1/races/"+resp.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get race status %d", w.Code)
	}
	var rec store.RaceRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.PlayerCar != "gt40" || rec.Heat != 4 {
		t.Errorf("unexpected record: %+v", rec)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/races", nil); w.Code != http.StatusOK {
		t.Fatalf("list races status %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/races/"+resp.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/races/"+resp.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted race status %d", w.Code)
	}
}

func TestSimulateValidation(t *testing.T) {
	h := NewServer(nil).Routes()
	cases := []struct {
		name string
		req  SimulateRequest
	}{
		{"missing_seed", SimulateRequest{}},
		{"unknown_model", SimulateRequest{Seed: "s", Player: garage.Selection{Model: "tractor"}}},
		{"bad_stage", SimulateRequest{Seed: "s", Opponent: garage.Selection{Stage: 9}}},
		{"bad_skill", SimulateRequest{Seed: "s", Skill: floatPtr(1.5)}},
		{"heat_too_large", SimulateRequest{Seed: "s", Heat: sweep.MaxHeat + 1, Save: true}},
		{"bad_step", SimulateRequest{Seed: "s", StepMs: 500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/races", tc.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d", w.Code)
			}
			var e EngineError
			if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if e.Type != ErrTypeValidation {
				t.Errorf("error type %q", e.Type)
			}
		})
	}

	if w := do(t, h, http.MethodPost, "/api/v1/races", SimulateRequest{Seed: "s", Script: "var x = 1;"}); w.Code != http.StatusBadRequest {
		t.Errorf("script without drive: status %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/races", SimulateRequest{Seed: "s", Save: true}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("save without db: status %d", w.Code)
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestSimulateKeepsZeroSkill(t *testing.T) {
	db := newMockDB()
	h := NewServer(db).Routes()

	for heat := uint64(0); heat < 5; heat++ {
		w := do(t, h, http.MethodPost, "/api/v1/races", SimulateRequest{Seed: "zero-skill", Heat: heat, Skill: floatPtr(0), Save: true})
		if w.Code != http.StatusOK {
			t.Fatalf("heat %d: status %d: %s", heat, w.Code, w.Body.String())
		}
		var resp SimulateResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n := resp.Results.Opponent.PerfectShiftCount; n != 0 {
			t.Errorf("heat %d: skill 0 opponent made %d perfect shifts", heat, n)
		}
		if rec := db.races[resp.ID]; rec.OpponentSkill != 0 {
			t.Errorf("heat %d: stored skill %v", heat, rec.OpponentSkill)
		}
	}
}

func TestSimulateMaxHeat(t *testing.T) {
	w := do(t, NewServer(newMockDB()).Routes(), http.MethodPost, "/api/v1/races", SimulateRequest{Seed: "edge", Heat: sweep.MaxHeat, Save: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestSimulateTutorial(t *testing.T) {
	w := do(t, NewServer(nil).Routes(), http.MethodPost, "/api/v1/races", SimulateRequest{Seed: "tut", Tutorial: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp SimulateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Results.TrackLength != 1800 || resp.Results.Opponent != nil {
		t.Errorf("tutorial results: %+v", resp.Results)
	}
}

func TestSweepStoresRun(t *testing.T) {
	db := newMockDB()
	h := NewServer(db, WithSweeper(sweep.NewSweeper(sweep.WithWorkers(2)))).Routes()

	req := sweep.Request{
		Seed:      "sweep-api",
		HeatStart: 0,
		HeatEnd:   5,
		Metric:    "top_speed",
		TargetOp:  sweep.OpGreater,
		Limit:     4,
	}
	w := do(t, h, http.MethodPost, "/api/v1/sweeps", req)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		RunID   string        `json:"run_id"`
		Hits    []sweep.Hit   `json:"hits"`
		Summary sweep.Summary `json:"summary"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID == "" || len(resp.Hits) != 4 || resp.Summary.TotalEvaluated != 6 {
		t.Fatalf("unexpected sweep response: %+v", resp)
	}

	w = do(t, h, http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	var run store.Run
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.HitCount != 6 || run.SummaryMean == nil || run.Metric != "top_speed" {
		t.Errorf("stored run: %+v", run)
	}

	w = do(t, h, http.MethodGet, "/api/v1/runs/"+resp.RunID+"/hits?limit=2", nil)
	var hits struct {
		Hits []store.Hit `json:"hits"`
	}
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	if len(hits.Hits) != 2 {
		t.Errorf("got %d hits", len(hits.Hits))
	}

	if w := do(t, h, http.MethodGet, "/api/v1/runs/nope/hits", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing run hits: status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/runs", nil); w.Code != http.StatusOK {
		t.Errorf("list runs: status %d", w.Code)
	}
}

func TestSweepValidation(t *testing.T) {
	h := NewServer(nil).Routes()
	bad := []sweep.Request{
		{Seed: "s", HeatStart: 3, HeatEnd: 1, Metric: "player_win", TargetOp: sweep.OpEqual},
		{Seed: "s", Metric: "lap", TargetOp: sweep.OpEqual},
		{Seed: "s", Metric: "player_win", TargetOp: "near"},
		{Seed: "s", Metric: "player_win", TargetOp: sweep.OpBetween, TargetVal: 5, TargetVal2: 1},
		{Seed: "s", HeatStart: sweep.MaxHeat - 1, HeatEnd: sweep.MaxHeat + 1, Metric: "player_win", TargetOp: sweep.OpEqual},
	}
	for i, req := range bad {
		if w := do(t, h, http.MethodPost, "/api/v1/sweeps", req); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: status %d", i, w.Code)
		}
	}
}

func TestRecoveryHandler(t *testing.T) {
	s := NewServer(nil)
	h := s.errorHandler.RecoveryHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	if w.Header().Get("X-Error-Type") != ErrTypeInternal {
		t.Errorf("error type header %q", w.Header().Get("X-Error-Type"))
	}
}
