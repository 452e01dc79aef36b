package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/config"
	authhandler "github.com/aplatt/steamrail/backend/internal/handler/auth"
	"github.com/aplatt/steamrail/backend/internal/handler/chatlog"
	"github.com/aplatt/steamrail/backend/internal/handler/visit"
	wshandler "github.com/aplatt/steamrail/backend/internal/handler/ws"
	middlewarePkg "github.com/aplatt/steamrail/backend/internal/middleware"
	authservice "github.com/aplatt/steamrail/backend/internal/service/auth"
	chatservice "github.com/aplatt/steamrail/backend/internal/service/chat"
	"github.com/aplatt/steamrail/backend/internal/service/relay"
	sessionservice "github.com/aplatt/steamrail/backend/internal/service/session"
	"github.com/aplatt/steamrail/backend/internal/store"
	"github.com/aplatt/steamrail/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. bridge may be nil when
// Discord credentials are not configured; the login route then answers 503.
func NewRouter(
	cfg config.ServerConfig,
	st store.Store,
	sessions *sessionservice.Store,
	chatRelay *chatservice.Relay,
	hub *relay.Hub,
	bridge *authservice.Bridge,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	visit.New(st, log).RegisterRoutes(r)
	chatlog.New(chatRelay, log).RegisterRoutes(r)
	wshandler.New(hub, log).RegisterRoutes(r)

	if bridge != nil {
		authhandler.New(bridge, sessions, log).RegisterRoutes(r)
	} else {
		r.Post("/auth/discord/login", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondError(w, http.StatusServiceUnavailable, "discord auth not configured")
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := st.Ping(req.Context()); err != nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
