package history

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"moodle-herald/internal/pkg/ctxlog"
	"moodle-herald/internal/pkg/httputil"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Handler exposes the journal read-only over HTTP.
type Handler struct {
	repo Repository
}

// NewHandler creates a new journal handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the journal routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/deliveries", h.listDeliveries)
}

type deliveryResponse struct {
	ID             string    `json:"id"`
	NotificationID int64     `json:"notification_id"`
	Subject        string    `json:"subject"`
	Verdict        string    `json:"verdict"`
	Channels       []string  `json:"channels"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxListLimit)
	}

	deliveries, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to list deliveries", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := make([]deliveryResponse, len(deliveries))
	for i, d := range deliveries {
		resp[i] = deliveryResponse{
			ID:             d.ID.String(),
			NotificationID: d.NotificationID,
			Subject:        d.Subject,
			Verdict:        d.Verdict,
			Channels:       d.Channels,
			CreatedAt:      d.CreatedAt,
		}
	}

	httputil.Success(w, http.StatusOK, resp)
}
