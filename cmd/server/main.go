package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/bridge"
	"github.com/erauner12/ticketbridge/internal/config"
	"github.com/erauner12/ticketbridge/internal/db"
	"github.com/erauner12/ticketbridge/internal/httpapi"
	"github.com/erauner12/ticketbridge/internal/schema"
	"github.com/erauner12/ticketbridge/internal/storage"
	"github.com/erauner12/ticketbridge/internal/store"
	"github.com/erauner12/ticketbridge/internal/webhook"
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "ticketbridge").Logger()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Pretty logging for local dev
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	// Durable tier
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := schema.Ensure(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("schema bootstrap failed")
	}

	// Metrics registry shared by storage, consumer and /metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	// Storage tiers
	l1, err := storage.NewMemory(cfg.L1Capacity)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create memory tier")
	}
	l2, err := storage.NewRedis(ctx, cfg.PlatformRedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis cache configuration")
	}
	defer l2.Close()

	engine := storage.NewEngine(l1, l2, storage.NewPostgres(pool), storage.EngineConfig{
		DefaultTTL: cfg.DefaultCacheTTL,
		Metrics:    storage.NewMetrics(registry, cfg.DebugMode),
	})

	domainStore := store.New(pool, engine, cfg.DefaultCacheTTL)

	// Webhook pipeline. The chat client is injected by the deployment
	// wiring; without one, actions are logged and acknowledged.
	var chat bridge.ChatPlatform = bridge.LogOnlyChat{}
	lookup := bridge.NewLookup(domainStore, chat, bridge.LookupConfig{})
	dispatcher := webhook.NewDispatcher()
	bridge.NewHandlers(domainStore, chat, lookup).Register(dispatcher)

	queue, err := webhook.NewRedisQueue(ctx, cfg.WebhookRedisURL, cfg.QueueName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to webhook queue")
	}
	defer queue.Close()

	consumer := webhook.NewConsumer(queue, dispatcher, webhook.Config{
		PollInterval: cfg.PollInterval,
		BlockTimeout: cfg.BlockTimeout,
	}, registry)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start webhook consumer")
	}

	// Ops HTTP surface
	srv := &httpapi.Server{Store: domainStore, Consumer: consumer, Registry: registry}
	adminJWT := httpapi.AdminJWTCfg{
		HS256Secret: cfg.AdminJWTSecret,
		DevMode:     !cfg.Production(),
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(adminJWT),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting ops HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("consumer stop error")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
