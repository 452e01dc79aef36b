package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aplatt/steamrail/backend/internal/config"
	"github.com/aplatt/steamrail/backend/internal/handler"
	authservice "github.com/aplatt/steamrail/backend/internal/service/auth"
	chatservice "github.com/aplatt/steamrail/backend/internal/service/chat"
	"github.com/aplatt/steamrail/backend/internal/service/relay"
	sessionservice "github.com/aplatt/steamrail/backend/internal/service/session"
	"github.com/aplatt/steamrail/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file if present; production supplies real environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.Server)

	st, err := newStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	if err := st.EnsureCounter(ctx, store.KeyVisitCount); err != nil {
		log.Fatal().Err(err).Msg("failed to seed visit counter")
	}

	sessions := sessionservice.NewStore()
	chatRelay := chatservice.NewRelay(sessions, st, log)

	var bridge *authservice.Bridge
	if cfg.Discord.Enabled() {
		bridge = authservice.NewBridge(cfg.Discord, log)
		log.Info().Msg("discord identity linking enabled")
	} else {
		log.Info().Msg("discord credentials not configured, identity linking disabled")
	}

	hub := relay.NewHub(cfg.Relay, sessions, chatRelay, bridge, log)
	go hub.Run(ctx)

	router := handler.NewRouter(cfg.Server, st, sessions, chatRelay, hub, bridge, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", cfg.Server.Addr).Msg("steamrail backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server shut down")
}

func newLogger(cfg config.ServerConfig) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		log.Info().Msg("using postgres store")
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store")
	return store.NewSQLiteStore(ctx, cfg.SQLitePath)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
