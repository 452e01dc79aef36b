package ws

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/service/relay"
)

// Handler upgrades HTTP requests and hands the socket to the hub.
type Handler struct {
	hub      *relay.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates the websocket handler. Origins are not restricted here; the
// game client is served cross-origin in development and CORS policy lives at
// the router.
func New(hub *relay.Hub, log zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

// RegisterRoutes registers the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWS)
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	h.hub.Attach(conn)
}
