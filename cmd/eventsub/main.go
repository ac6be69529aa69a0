package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
	"github.com/Sanishdngl/Event-sub000/internal/config"
	"github.com/Sanishdngl/Event-sub000/internal/logging"
	"github.com/Sanishdngl/Event-sub000/internal/metrics"
	"github.com/Sanishdngl/Event-sub000/internal/notify"
	"github.com/Sanishdngl/Event-sub000/internal/rest"
	"github.com/Sanishdngl/Event-sub000/internal/store"
	"github.com/Sanishdngl/Event-sub000/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", "json")
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("addr", cfg.Addr).Msg("starting event-sub server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		notifStore store.Store
		directory  auth.Directory
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}
		notifStore = pg
		directory = auth.NewPostgresDirectory(pg.DB())
		logger.Info().Msg("using postgres notification store")
	} else {
		notifStore = store.NewMemory()
		directory = auth.NewMemoryDirectory()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	m := metrics.NewRegistry(prometheus.DefaultRegisterer)
	gate := auth.NewGate(cfg.JWTSecret, directory)

	registry := ws.NewRegistry(ws.RegistryConfig{
		PingInterval: cfg.PingInterval,
		PongTimeout:  cfg.PongTimeout,
		SendBuffer:   cfg.SendBuffer,
		MessageRate:  cfg.MessageRate,
		MessageBurst: cfg.MessageBurst,
	}, logger, m)
	engine := ws.NewEngine(registry, logger, m)
	router := ws.NewRouter(notifStore, engine, logger)
	wsServer := ws.NewServer(ws.ServerConfig{MaxMessageSize: cfg.MaxMessageSize}, gate, registry, router, logger, m)
	publisher := notify.NewPublisher(notifStore, engine, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rest.NewHandler(notifStore, gate, publisher, engine, logger).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	// Connections are never persisted; clients reconnect after restart.
	registry.Close()
	logger.Info().Msg("server stopped")
}
