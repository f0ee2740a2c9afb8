package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	service "github.com/okian/influence/internal/app"
	"github.com/okian/influence/pkg/logger"
)

// Plain-text bodies of badge failures.
const (
	MsgInvalidBadgeRequest = "invalid username or score"
	MsgBadgeFailed         = "failed to generate image"
)

// BadgeDependencies defines the interface for badge operations.
type BadgeDependencies interface {
	Badge(ctx context.Context, username string, score int) ([]byte, error)
}

// BadgeHandler handles badge image requests.
type BadgeHandler struct {
	deps   BadgeDependencies
	logger logger.Logger
}

// NewBadgeHandler creates a new badge handler.
// A nil logger discards failures.
func NewBadgeHandler(deps BadgeDependencies, l logger.Logger) *BadgeHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &BadgeHandler{deps: deps, logger: l}
}

// HandleGetBadge handles GET /api/score/image/{username}/{score} requests.
// Failures are answered in plain text since clients expect an image here.
func (h *BadgeHandler) HandleGetBadge(w http.ResponseWriter, r *http.Request) {
	score, err := strconv.Atoi(r.PathValue("score"))
	if err != nil {
		writeText(w, http.StatusBadRequest, MsgInvalidBadgeRequest)
		return
	}

	png, err := h.deps.Badge(r.Context(), r.PathValue("username"), score)
	if err != nil {
		if errors.Is(err, service.ErrInvalidUsername) || errors.Is(err, service.ErrInvalidScore) {
			writeText(w, http.StatusBadRequest, MsgInvalidBadgeRequest)
			return
		}
		h.logger.Error(r.Context(), "badge request failed",
			logger.String("request_id", RequestIDFromContext(r.Context())),
			logger.Error(err))
		writeText(w, http.StatusInternalServerError, MsgBadgeFailed)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
