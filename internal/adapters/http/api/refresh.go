package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/aiweather/internal/app"
	"github.com/okian/aiweather/pkg/logger"
)

// Refresher starts a cycle on demand.
type Refresher interface {
	TriggerRefresh(ctx context.Context) error
}

// RefreshHandler handles manual refresh requests.
type RefreshHandler struct {
	refresher Refresher
	log       logger.Logger
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(r Refresher, l logger.Logger) *RefreshHandler {
	return &RefreshHandler{refresher: r, log: l}
}

type refreshResponse struct {
	Status string `json:"status"`
}

// HandleRefresh handles POST /refresh. The cycle runs in the background:
// 202 when started, 409 when one is already running, 503 during shutdown.
func (h *RefreshHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	err := h.refresher.TriggerRefresh(r.Context())
	switch {
	case err == nil:
		h.log.Info(r.Context(), "manual refresh started")
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: "started"})
	case errors.Is(err, service.ErrRefreshInFlight):
		writeError(w, http.StatusConflict, "in_flight", err)
	case errors.Is(err, service.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "stopped", err)
	default:
		h.log.Error(r.Context(), "manual refresh failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
