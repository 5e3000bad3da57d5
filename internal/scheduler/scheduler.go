package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/config"
	"draftlab/analytics/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Runner runs full and incremental aggregations
type Runner interface {
	Run(ctx context.Context) (*aggregator.Result, error)
	RunIncremental(ctx context.Context) (*aggregator.Result, error)
}

// Scheduler runs the nightly full aggregation and, when an interval is
// configured, incremental updates between them
type Scheduler struct {
	cfg      *config.Config
	runner   Runner
	cron     *cron.Cron
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		cron:     cron.New(cron.WithLocation(cfg.Location())),
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.AggregationCron, func() {
		log.Info().Msg("Running scheduled aggregation...")
		s.trigger(ctx, aggregator.ModeFull)
	}); err != nil {
		return fmt.Errorf("failed to schedule aggregation: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.AggregationCron).
		Str("timezone", s.cfg.Location().String()).
		Msg("Aggregation scheduled")

	if s.cfg.IncrementalInterval > 0 {
		s.ticker = time.NewTicker(s.cfg.IncrementalInterval)
		log.Info().
			Dur("interval", s.cfg.IncrementalInterval).
			Msg("Incremental updates started")

		go s.pollIncremental(ctx)
	}

	return nil
}

// Stop stops the scheduler and waits for a running cron job to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping scheduler...")

		if s.cron != nil {
			<-s.cron.Stop().Done()
		}

		if s.ticker != nil {
			s.ticker.Stop()
		}

		close(s.stopChan)
		log.Info().Msg("Scheduler stopped")
	})
}

// Trigger runs one aggregation in the given mode outside the schedule
func (s *Scheduler) Trigger(ctx context.Context, mode string) (*aggregator.Result, error) {
	switch mode {
	case aggregator.ModeFull, "":
		return s.runner.Run(ctx)
	case aggregator.ModeIncremental:
		return s.runner.RunIncremental(ctx)
	default:
		return nil, fmt.Errorf("unknown aggregation mode %q", mode)
	}
}

func (s *Scheduler) pollIncremental(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping incremental updates")
			return
		case <-s.stopChan:
			log.Info().Msg("Stop signal received, stopping incremental updates")
			return
		case <-s.ticker.C:
			s.trigger(ctx, aggregator.ModeIncremental)
		}
	}
}

// trigger runs a scheduled job and only logs the outcome
func (s *Scheduler) trigger(ctx context.Context, mode string) {
	start := time.Now()
	defer func() { metrics.RecordWorkerIteration(time.Since(start).Seconds()) }()

	result, err := s.Trigger(ctx, mode)
	switch {
	case errors.Is(err, aggregator.ErrRunInProgress):
		log.Warn().Str("mode", mode).Msg("Aggregation already running, skipping scheduled run")
	case err != nil:
		log.Error().Err(err).Str("mode", mode).Msg("Scheduled aggregation failed")
	default:
		log.Info().
			Str("mode", mode).
			Str("run_id", result.RunID).
			Int("sessions", result.Sessions).
			Int("documents", result.Documents).
			Dur("duration", time.Since(start)).
			Msg("Scheduled aggregation complete")
	}
}
