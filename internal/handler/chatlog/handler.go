package chatlog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	chatservice "github.com/aplatt/steamrail/backend/internal/service/chat"
	"github.com/aplatt/steamrail/backend/pkg/utils"
)

// Handler serves the recent public chat log for late-joining clients.
type Handler struct {
	relay *chatservice.Relay
	log   zerolog.Logger
}

// New creates the chat log handler.
func New(relay *chatservice.Relay, log zerolog.Logger) *Handler {
	return &Handler{relay: relay, log: log.With().Str("component", "chatlog").Logger()}
}

// RegisterRoutes registers the chat log route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/public_chat_log", h.handleRecent)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := chatservice.DefaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	records, err := h.relay.RecentLog(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("read chat log")
		utils.RespondError(w, http.StatusInternalServerError, "chat log unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}
