package api

import (
	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/pilot"
	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/sweep"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

const (
	// Input validation errors
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeUnauthorized  = "unauthorized"

	// Simulation errors
	ErrTypeNotFound   = "not_found"
	ErrTypeSimulation = "simulation_error"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategorySimulation ErrorCategory = "simulation"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidParams, ErrTypeUnauthorized:
		return CategoryValidation
	case ErrTypeNotFound, ErrTypeSimulation:
		return CategorySimulation
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// SimulateRequest runs one headless race.
type SimulateRequest struct {
	Seed     string           `json:"seed"`
	Heat     uint64           `json:"heat"`
	Player   garage.Selection `json:"player"`
	Opponent garage.Selection `json:"opponent"`
	Skill    *float64         `json:"skill,omitempty"`
	Tutorial bool             `json:"tutorial,omitempty"`
	Pilot    *pilot.Config    `json:"pilot,omitempty"`
	Script   string           `json:"script,omitempty"`
	StepMs   float64          `json:"step_ms,omitempty"`
	// Save stores the race in history.
	Save bool `json:"save,omitempty"`
}

// SimulateResponse carries the results of one race.
type SimulateResponse struct {
	ID              string        `json:"id,omitempty"`
	Heat            uint64        `json:"heat"`
	SeedFingerprint string        `json:"seed_fingerprint"`
	Results         *race.Results `json:"results"`
	EngineVersion   string        `json:"engine_version"`
}

// SweepResponse is a sweep result plus the stored run id.
type SweepResponse struct {
	RunID string `json:"run_id,omitempty"`
	*sweep.Result
	Errors []string `json:"errors,omitempty"`
}

// GarageResponse lists the car catalogue.
type GarageResponse struct {
	Models        []garage.Model  `json:"models"`
	Stages        []garage.Stage  `json:"stages"`
	Tunings       []garage.Tuning `json:"tunings"`
	EngineVersion string          `json:"engine_version"`
}

// MetricSpec describes a sweep metric.
type MetricSpec struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// MetricsListResponse lists sweep metrics.
type MetricsListResponse struct {
	Metrics       []MetricSpec `json:"metrics"`
	EngineVersion string       `json:"engine_version"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	EngineVersion string            `json:"engine_version"`
	GitCommit     string            `json:"git_commit,omitempty"`
	Uptime        string            `json:"uptime"`
	Checks        map[string]string `json:"checks"`
	Timestamp     string            `json:"timestamp"`
}
