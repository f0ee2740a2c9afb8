package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/influence/internal/adapters/twitter"
	service "github.com/okian/influence/internal/app"
	"github.com/okian/influence/internal/domain/types"
	"github.com/okian/influence/pkg/logger"
)

// MsgSearchFailed is returned when mention search fails, whatever the cause.
const MsgSearchFailed = "failed to search posts (usage limits may apply)"

// ScoreDependencies defines the interface for score operations.
type ScoreDependencies interface {
	Score(ctx context.Context, username string) (Result, error)
}

// ScoreHandler handles score requests.
type ScoreHandler struct {
	deps   ScoreDependencies
	logger logger.Logger
}

// NewScoreHandler creates a new score handler.
// A nil logger discards failures.
func NewScoreHandler(deps ScoreDependencies, l logger.Logger) *ScoreHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &ScoreHandler{deps: deps, logger: l}
}

// HandleGetScore handles GET /api/score/{username} requests.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Score(r.Context(), r.PathValue("username"))
	if err != nil {
		status, code, msg := scoreErrorStatus(err)
		if status >= statusInternalError {
			h.logger.Warn(r.Context(), "score request failed",
				logger.String("request_id", RequestIDFromContext(r.Context())),
				logger.Error(err))
		}
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, types.FromResult(result))
}

// scoreErrorStatus maps a score failure onto status, code and message.
// Upstream lookup failures keep the upstream status and message.
func scoreErrorStatus(err error) (int, string, string) {
	if upErr, ok := twitter.IsUpstream(err); ok {
		status := upErr.Status
		if status < statusBadRequest {
			status = http.StatusBadGateway
		}
		switch {
		case errors.Is(upErr, twitter.ErrUpstreamNotFound):
			return status, "not_found", upErr.Message
		case errors.Is(upErr, twitter.ErrUpstreamRateLimited):
			return status, "rate_limited", upErr.Message
		default:
			return status, "upstream_error", upErr.Message
		}
	}
	switch {
	case errors.Is(err, service.ErrInvalidUsername):
		return http.StatusBadRequest, "invalid_username", ErrBadRequest.Error() + ": invalid username"
	case errors.Is(err, twitter.ErrSearchFailed):
		return http.StatusInternalServerError, "search_failed", MsgSearchFailed
	default:
		return http.StatusInternalServerError, "internal_error", ""
	}
}
