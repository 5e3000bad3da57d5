package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/bootstrap"
	"draftlab/analytics/internal/config"
	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/scheduler"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.MustLoad()
	bootstrap.SetupLogger(cfg)

	log.Info().
		Str("env", cfg.AppEnv).
		Str("store", cfg.StoreDriver).
		Msg("Starting draft analytics aggregation worker")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	svc, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open services")
	}
	defer svc.Close()

	if svc.DB != nil {
		if err := svc.DB.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	if cfg.EnableMetrics {
		go svc.StartMetricsServer(ctx, cfg.MetricsPort)
	}

	// Update system uptime metric
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	sched := scheduler.NewScheduler(cfg, svc.Aggregator())

	if cfg.EnableScheduler {
		log.Info().Msg("Starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	if cfg.InitialAggregationEnabled {
		log.Info().Msg("Running initial aggregation...")
		if _, err := sched.Trigger(ctx, aggregator.ModeFull); err != nil {
			log.Error().Err(err).Msg("Initial aggregation failed, continuing anyway...")
		} else {
			log.Info().Msg("Initial aggregation completed successfully")
		}
	}

	// Keep running until context is cancelled
	<-ctx.Done()

	log.Info().Msg("Shutting down scheduler...")
	sched.Stop()

	log.Info().Msg("Worker shutdown complete")
}
