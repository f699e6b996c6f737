// Package api serves simulations, sweeps, the garage catalogue and race
// history over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/dragstrip/internal/store"
	"github.com/MJE43/dragstrip/internal/sweep"
)

// Server handles HTTP requests. db may be nil, in which case nothing is
// persisted and the history routes answer 503.
type Server struct {
	db           store.DB
	sweeper      *sweep.Sweeper
	errorHandler *ErrorHandler
	logger       *log.Logger
	token        string
	timeout      time.Duration
	startTime    time.Time
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithToken requires "Authorization: Bearer <token>" on /api routes.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

func WithSweeper(sw *sweep.Sweeper) Option {
	return func(s *Server) {
		if sw != nil {
			s.sweeper = sw
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewServer(db store.DB, opts ...Option) *Server {
	s := &Server{
		db:        db,
		logger:    log.New(io.Discard, "", 0),
		timeout:   60 * time.Second,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweeper == nil {
		s.sweeper = sweep.NewSweeper(sweep.WithLogger(s.logger))
	}
	s.errorHandler = NewErrorHandler(s.logger)
	s.logger.Printf("server_init database_enabled=%t auth_enabled=%t engine_version=%s",
		db != nil, s.token != "", EngineVersion())
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.TokenMiddleware)

		r.Get("/garage", s.handleGarage)
		r.Get("/metrics", s.handleListMetrics)
		r.Post("/races", s.handleSimulate)
		r.Get("/races", s.handleListRaces)
		r.Get("/races/{id}", s.handleGetRace)
		r.Delete("/races/{id}", s.handleDeleteRace)
		r.Post("/sweeps", s.handleSweep)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/hits", s.handleGetRunHits)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion())
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed err=%v", err)
	}
}
