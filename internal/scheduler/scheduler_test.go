package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu   sync.Mutex
	full int
	incr int
}

func (r *countingRunner) Run(ctx context.Context) (*aggregator.Result, error) {
	r.mu.Lock()
	r.full++
	r.mu.Unlock()
	return &aggregator.Result{RunID: "full", Mode: aggregator.ModeFull}, nil
}

func (r *countingRunner) RunIncremental(ctx context.Context) (*aggregator.Result, error) {
	r.mu.Lock()
	r.incr++
	r.mu.Unlock()
	return nil, aggregator.ErrRunInProgress
}

func (r *countingRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full, r.incr
}

func testConfig() *config.Config {
	return &config.Config{
		AggregationCron:     "0 2 * * *",
		AggregationTimezone: "UTC",
	}
}

func TestTrigger(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(testConfig(), runner)

	result, err := s.Trigger(context.Background(), aggregator.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, "full", result.RunID)

	_, err = s.Trigger(context.Background(), aggregator.ModeIncremental)
	assert.ErrorIs(t, err, aggregator.ErrRunInProgress)

	_, err = s.Trigger(context.Background(), "weekly")
	assert.Error(t, err)

	full, incr := runner.counts()
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, incr)
}

func TestStart_RejectsBadCron(t *testing.T) {
	cfg := testConfig()
	cfg.AggregationCron = "every night"
	s := NewScheduler(cfg, &countingRunner{})

	assert.Error(t, s.Start(context.Background()))
}

func TestStart_RunsIncrementalOnInterval(t *testing.T) {
	cfg := testConfig()
	cfg.IncrementalInterval = 10 * time.Millisecond
	runner := &countingRunner{}
	s := NewScheduler(cfg, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool {
		_, incr := runner.counts()
		return incr >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()

	full, _ := runner.counts()
	assert.Zero(t, full)
}

func TestNewScheduler_UsesConfiguredTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.AggregationTimezone = "UTC"
	s := NewScheduler(cfg, &countingRunner{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 1)
	assert.Equal(t, time.UTC, s.cron.Location())
}
