package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/api/messaging"
	"github.com/Vasu1712/legalwise-backend/internal/auth"
	"github.com/Vasu1712/legalwise-backend/internal/chat"
	"github.com/Vasu1712/legalwise-backend/internal/config"
	"github.com/Vasu1712/legalwise-backend/internal/logger"
	"github.com/Vasu1712/legalwise-backend/internal/middleware"
	"github.com/Vasu1712/legalwise-backend/internal/presence"
	"github.com/Vasu1712/legalwise-backend/internal/storage"
	"github.com/Vasu1712/legalwise-backend/internal/storage/memory"
	"github.com/Vasu1712/legalwise-backend/internal/storage/postgres"
	"github.com/Vasu1712/legalwise-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(false)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.IsDevelopment())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store := openStore(ctx, cfg, log)
	defer store.Close()

	var tracker presence.Tracker = presence.Nop{}
	if cfg.ValkeyAddr != "" {
		vt, err := presence.NewValkeyTracker(cfg.ValkeyAddr, cfg.PresenceTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("valkey connection failed")
		}
		defer vt.Close()
		tracker = vt
		log.Info().Str("addr", cfg.ValkeyAddr).Msg("connected to Valkey")
	}

	registry := ws.NewRegistry(log)
	dispatcher := chat.NewDispatcher(registry, cfg.DispatchQueueSize, log)
	go dispatcher.Run(ctx)

	router := chat.NewRouter(store, registry, dispatcher, log)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	handler := messaging.NewChatHandler(router, registry, tracker, verifier, messaging.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		SendBufferSize: cfg.SendBufferSize,
		PresenceTTL:    cfg.PresenceTTL,
	}, log)

	r := mux.NewRouter()
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", messaging.Health(store, registry.Count)).Methods(http.MethodGet)
	messaging.RegisterChatRoutes(r, handler, middleware.RequireAuth(verifier))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.CORS(cfg.AllowedOrigins)(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	registry.CloseAll(websocket.CloseGoingAway, "server shutdown")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()

	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) storage.Store {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return memory.NewChatStore()
	}
	store, err := postgres.NewPostgresChatStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection failed")
	}
	log.Info().Msg("connected to PostgreSQL")
	return store
}
