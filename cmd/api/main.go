// Command api runs the DEX coordination backend HTTP server: the shadow
// ledger, order engine, pool manager, settlement queue and reconciler all
// live in this process's memory for its lifetime.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftline/dex-core/internal/api"
	"github.com/driftline/dex-core/internal/audit"
	"github.com/driftline/dex-core/internal/authsession"
	"github.com/driftline/dex-core/internal/chain"
	"github.com/driftline/dex-core/internal/config"
	"github.com/driftline/dex-core/internal/ledger"
	"github.com/driftline/dex-core/internal/metrics"
	"github.com/driftline/dex-core/internal/orderengine"
	"github.com/driftline/dex-core/internal/pool"
	"github.com/driftline/dex-core/internal/reconcile"
	"github.com/driftline/dex-core/internal/settlement"
	"github.com/driftline/dex-core/internal/users"
	"github.com/driftline/dex-core/internal/wsfeed"

	"github.com/go-redis/redis/v8"
)

func setupLogger(cfg config.Config) zerolog.Logger {
	var logger zerolog.Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Environment == "production" {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return logger
}

func main() {
	cfg := config.Load()
	logger := setupLogger(cfg)
	log.Logger = logger

	for _, c := range metrics.Collectors() {
		prometheus.MustRegister(c)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	l := ledger.New(logger)
	pools := pool.NewManager(logger)
	engine := orderengine.New(ctx, l, logger)
	chainClient := chain.NewDemoClient(cfg.KeetaRPCURL, logger)

	if err := chainClient.Healthcheck(ctx); err != nil {
		logger.Warn().Err(err).Msg("chain healthcheck failed at startup")
	}

	var auditSink *audit.Sink
	if s, err := audit.New(cfg.PostgresURL, logger); err != nil {
		logger.Warn().Err(err).Msg("audit sink unavailable, continuing without durable audit trail")
	} else {
		auditSink = s
		defer auditSink.Close()
	}

	settlementQueue := settlement.New(ctx, l, chainClient, auditSink, logger)

	reconciler := reconcile.New(l, pools, chainClient, auditSink, cfg.DustThreshold, logger)
	go reconciler.Run(ctx, cfg.ReconcileInterval)

	sessions := authsession.New()
	registry := users.New()

	hub := wsfeed.NewHub(logger)
	if cfg.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, wsfeed fan-out stays single-instance")
		} else {
			broadcaster := wsfeed.NewRedisBroadcaster(rdb, hub, logger)
			defer broadcaster.Close()
		}
	}

	svc := api.NewService(l, engine, pools, settlementQueue, chainClient, sessions, registry, hub, reconciler, cfg.AllowedOrigins, logger)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: svc.Middleware(mux),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
