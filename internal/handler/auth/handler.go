package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/metrics"
	authservice "github.com/aplatt/steamrail/backend/internal/service/auth"
	sessionservice "github.com/aplatt/steamrail/backend/internal/service/session"
	"github.com/aplatt/steamrail/backend/pkg/utils"
)

// Handler serves the Discord OAuth login endpoint.
type Handler struct {
	bridge   *authservice.Bridge
	sessions *sessionservice.Store
	log      zerolog.Logger
}

// New creates the auth handler.
func New(bridge *authservice.Bridge, sessions *sessionservice.Store, log zerolog.Logger) *Handler {
	return &Handler{
		bridge:   bridge,
		sessions: sessions,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// RegisterRoutes registers the login route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/discord/login", h.handleLogin)
}

// handleLogin exchanges the authorization code for a Discord identity, mints
// a linked session, and returns the token for the client to persist and bind
// over the socket via session_auth. A failed exchange creates no session and
// is never retried: OAuth codes are single-use.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Auth string `json:"auth"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Auth == "" {
		utils.RespondError(w, http.StatusBadRequest, "auth code is required")
		return
	}

	identity, err := h.bridge.Exchange(r.Context(), payload.Auth)
	if err != nil {
		metrics.AuthFailures.Inc()
		h.log.Warn().Err(err).Msg("discord login failed")
		utils.RespondError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	sess := h.sessions.Create()
	h.sessions.LinkIdentity(sess.Token, identity)

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"username":      identity.DisplayName,
		"session_token": sess.Token,
	})
}
