package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"draftlab/analytics/internal/api"
	"draftlab/analytics/internal/bootstrap"
	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/config"
	"draftlab/analytics/internal/trends"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.MustLoad()
	bootstrap.SetupLogger(cfg)

	log.Info().
		Str("env", cfg.AppEnv).
		Int("port", cfg.APIPort).
		Msg("Starting draft analytics API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open services")
	}
	defer svc.Close()

	analytics := cache.NewAnalyticsCache(svc.Store, cache.WithMaxAge(cfg.AnalyticsCacheMaxAge))
	go analytics.WatchMetadata(ctx, cfg.MetadataPollInterval)

	server := &api.Server{
		Query:      svc.QueryService(),
		Analytics:  analytics,
		Trends:     trends.NewService(svc.Store),
		Aggregator: svc.Aggregator(),
		Health:     svc,
		JWTSecret:  cfg.AdminJWTSecret,
	}
	app := server.App()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("API shutdown failed")
		}
	}()

	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		log.Fatal().Err(err).Msg("API server failed")
	}

	log.Info().Msg("API shutdown complete")
}
