package visit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/metrics"
	"github.com/aplatt/steamrail/backend/internal/store"
	"github.com/aplatt/steamrail/backend/pkg/utils"
)

// Handler serves the persisted visit counter.
type Handler struct {
	store store.Store
	log   zerolog.Logger
}

// New creates the visit handler.
func New(st store.Store, log zerolog.Logger) *Handler {
	return &Handler{store: st, log: log.With().Str("component", "visit").Logger()}
}

// RegisterRoutes registers the visit counter routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/visit", h.handleGet)
	r.Post("/visit", h.handleIncrement)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Counter(r.Context(), store.KeyVisitCount)
	if err != nil {
		h.log.Error().Err(err).Msg("read visit counter")
		utils.RespondError(w, http.StatusInternalServerError, "counter unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int64{"visit_count": count})
}

// handleIncrement bumps the counter with a single atomic storage update;
// concurrent page loads never lose increments.
func (h *Handler) handleIncrement(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.IncrementCounter(r.Context(), store.KeyVisitCount)
	if err != nil {
		h.log.Error().Err(err).Msg("increment visit counter")
		utils.RespondError(w, http.StatusInternalServerError, "counter unavailable")
		return
	}
	metrics.VisitsRecorded.Inc()
	utils.RespondJSON(w, http.StatusOK, map[string]int64{"visit_count": count})
}
