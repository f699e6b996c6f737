package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/multierr"

	"github.com/MJE43/dragstrip/internal/engine"
	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/store"
	"github.com/MJE43/dragstrip/internal/sweep"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"garage": "healthy",
		"sweep":  "healthy",
	}
	status := http.StatusOK
	overall := "healthy"
	if len(garage.ListModels()) == 0 {
		checks["garage"] = "unhealthy"
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	switch {
	case s.db == nil:
		checks["database"] = "disabled"
	default:
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := s.db.ListRuns(ctx, store.RunsQuery{PerPage: 1}); err != nil {
			checks["database"] = "unhealthy"
			if overall == "healthy" {
				overall = "degraded"
			}
		} else {
			checks["database"] = "healthy"
		}
	}

	s.writeJSON(w, status, HealthResponse{
		Status:        overall,
		EngineVersion: EngineVersion(),
		GitCommit:     GitCommit,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Checks:        checks,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGarage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GarageResponse{
		Models:        garage.ListModels(),
		Stages:        garage.ListStages(),
		Tunings:       garage.ListTunings(),
		EngineVersion: EngineVersion(),
	})
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := sweep.ListMetrics()
	out := make([]MetricSpec, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, MetricSpec{Key: m.Key, Description: m.Description})
	}
	s.writeJSON(w, http.StatusOK, MetricsListResponse{Metrics: out, EngineVersion: EngineVersion()})
}

// handleSimulate runs one seeded race and optionally stores it.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON format")
		return
	}
	if !s.validate(w, r, ValidateSimulateRequest(&req)) {
		return
	}

	res, err := sweep.RunHeat(r.Context(), req.sweepRequest(), req.Heat)
	if err != nil {
		s.handleRunError(w, r, "simulate", err)
		return
	}

	fingerprint := engine.Fingerprint(req.Seed)
	s.logger.Printf("race_simulated seed_fp=%s heat=%d outcome=%s player=%s", fingerprint, req.Heat, res.Outcome, res.Player.Time)

	resp := SimulateResponse{
		Heat:            req.Heat,
		SeedFingerprint: fingerprint,
		Results:         res,
		EngineVersion:   EngineVersion(),
	}
	if req.Save {
		if s.db == nil {
			s.unavailable(w, r)
			return
		}
		rec, err := store.RecordFromResults(res, store.RaceMeta{
			SeedFingerprint: fingerprint,
			Heat:            req.Heat,
			PlayerCar:       selectionName(req.Player),
			OpponentCar:     selectionName(req.Opponent),
			OpponentSkill:   req.sweepRequest().OpponentSkill(),
		})
		if err == nil {
			err = s.db.SaveRace(r.Context(), rec)
		}
		if err != nil {
			s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
			return
		}
		resp.ID = rec.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.unavailable(w, r)
		return
	}
	page, perPage := pageParams(r)
	list, err := s.db.ListRaces(r.Context(), store.RacesQuery{
		Outcome: r.URL.Query().Get("outcome"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRace(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.unavailable(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.db.GetRace(r.Context(), id)
	if errors.Is(err, store.ErrRaceNotFound) {
		s.errorHandler.HandleNotFound(w, r, "race", id)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRace(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.unavailable(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	err := s.db.DeleteRace(r.Context(), id)
	if errors.Is(err, store.ErrRaceNotFound) {
		s.errorHandler.HandleNotFound(w, r, "race", id)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Engine-Version", EngineVersion())
	w.WriteHeader(http.StatusNoContent)
}

// handleSweep runs a sweep and stores the run with its hits.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweep.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON format")
		return
	}
	if !s.validate(w, r, ValidateSweepRequest(&req)) {
		return
	}
	if req.TimeoutMs == 0 {
		req.TimeoutMs = int((s.timeout - time.Second).Milliseconds())
	}

	result, err := s.sweeper.Sweep(r.Context(), req)
	if result == nil {
		s.handleRunError(w, r, "sweep", err)
		return
	}
	resp := SweepResponse{Result: result}
	for _, heatErr := range multierr.Errors(err) {
		resp.Errors = append(resp.Errors, heatErr.Error())
	}
	if len(resp.Errors) > 0 {
		s.logger.Printf("sweep_heat_failures count=%d first=%q", len(resp.Errors), resp.Errors[0])
	}

	if s.db != nil {
		runID, err := s.saveRun(r.Context(), req, result)
		if err != nil {
			s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
			return
		}
		resp.RunID = runID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveRun(ctx context.Context, req sweep.Request, result *sweep.Result) (string, error) {
	params, err := json.Marshal(result.Echo)
	if err != nil {
		return "", err
	}
	run := &store.Run{
		SeedFingerprint: result.SeedFingerprint,
		HeatStart:       req.HeatStart,
		HeatEnd:         req.HeatEnd,
		Metric:          req.Metric,
		TargetOp:        string(req.TargetOp),
		TargetVal:       req.TargetVal,
		TargetVal2:      req.TargetVal2,
		ParamsJSON:      string(params),
		HitLimit:        req.Limit,
		TimedOut:        result.Summary.TimedOut,
		HitCount:        result.Summary.HitsFound,
		TotalEvaluated:  result.Summary.TotalEvaluated,
		EngineVersion:   result.EngineVersion,
	}
	if result.Summary.HitsFound > 0 {
		lo, hi, mean := result.Summary.MinMetric, result.Summary.MaxMetric, result.Summary.MeanMetric
		run.SummaryMin, run.SummaryMax, run.SummaryMean = &lo, &hi, &mean
	}
	if err := s.db.SaveRun(ctx, run); err != nil {
		return "", err
	}
	hits := make([]store.Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, store.Hit{Heat: h.Heat, Metric: h.Metric, Outcome: string(h.Outcome)})
	}
	if err := s.db.SaveHits(ctx, run.ID, hits); err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.unavailable(w, r)
		return
	}
	page, perPage := pageParams(r)
	list, err := s.db.ListRuns(r.Context(), store.RunsQuery{
		Metric:  r.URL.Query().Get("metric"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.unavailable(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.db.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		s.errorHandler.HandleNotFound(w, r, "run", id)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunHits(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.unavailable(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(r.Context(), id); errors.Is(err, store.ErrRunNotFound) {
		s.errorHandler.HandleNotFound(w, r, "run", id)
		return
	} else if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	hits, err := s.db.GetHits(r.Context(), id, limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "hits": hits})
}

// validate writes a 400 for err and reports whether the request may go on.
func (s *Server) validate(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return true
	}
	var fe fieldError
	if errors.As(err, &fe) {
		s.errorHandler.HandleValidationError(w, r, fe.field, fe.message)
	} else {
		s.errorHandler.HandleValidationError(w, r, "", err.Error())
	}
	return false
}

func (s *Server) handleRunError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.errorHandler.HandleTimeoutError(w, r, operation)
	case errors.Is(err, sweep.ErrInvalidScript), errors.Is(err, sweep.ErrInvalidRange), errors.Is(err, sweep.ErrNoRaceLimit),
		errors.Is(err, sweep.ErrMetricNotFound), errors.Is(err, sweep.ErrInvalidTarget),
		errors.Is(err, garage.ErrModelNotFound), errors.Is(err, garage.ErrStageNotFound),
		errors.Is(err, garage.ErrTuningNotFound):
		engineErr := NewError(ErrTypeInvalidParams, err.Error()).WithContext("operation", operation).Build()
		s.errorHandler.HandleError(w, r, engineErr, http.StatusBadRequest)
	default:
		engineErr := NewError(ErrTypeSimulation, "simulation failed").
			WithContext("operation", operation).
			WithCause(err).
			Build()
		s.errorHandler.HandleError(w, r, engineErr, http.StatusInternalServerError)
	}
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request) {
	engineErr := NewError(ErrTypeServiceUnavailable, "history storage is not configured").Build()
	s.errorHandler.HandleError(w, r, engineErr, http.StatusServiceUnavailable)
}

func selectionName(sel garage.Selection) string {
	if sel.Model == "" {
		return "beater_car"
	}
	return sel.Model
}

func pageParams(r *http.Request) (int, int) {
	return queryInt(r, "page", 1), queryInt(r, "perPage", 50)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
