// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/influence/internal/domain/model"
	"github.com/okian/influence/internal/domain/types"
	"github.com/okian/influence/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ScoreDependencies
	BadgeDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	scoreHandler  *ScoreHandler
	badgeHandler  *BadgeHandler
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger logger.Logger
}

// WithLogger sets the logger handlers report failures to. Without it
// failures are not logged.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		scoreHandler:  NewScoreHandler(deps, o.logger),
		badgeHandler:  NewBadgeHandler(deps, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /api/score/{username}", MetricsMiddleware(s.scoreHandler.HandleGetScore, "score"))
	mux.HandleFunc("GET /api/score/image/{username}/{score}", MetricsMiddleware(s.badgeHandler.HandleGetBadge, "badge"))
}

// Result mirrors the domain shape the score endpoint serializes.
type Result = model.ScoreResult

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: code})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
