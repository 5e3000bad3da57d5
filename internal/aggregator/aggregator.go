package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/notify"
	"draftlab/analytics/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrRunInProgress is returned when another aggregation run holds the lock
var ErrRunInProgress = errors.New("aggregation run already in progress")

// Run modes
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Result summarizes a finished run
type Result struct {
	RunID     string        `json:"runId"`
	Mode      string        `json:"mode"`
	Sessions  int           `json:"sessions"`
	Documents int           `json:"documents"`
	Duration  time.Duration `json:"duration"`
}

// Aggregator turns draft sessions into precomputed analytics documents
type Aggregator struct {
	store    store.Store
	writer   *store.BatchWriter
	notifier notify.Notifier
	locker   Locker
	now      func() time.Time

	pageSize  int
	batchSize int
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithPageSize sets the number of sessions read per page
func WithPageSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithBatchSize sets the write chunk size (capped at store.MaxBatchSize)
func WithBatchSize(n int) Option {
	return func(a *Aggregator) { a.batchSize = n }
}

// WithNotifier sets where run failures are reported
func WithNotifier(n notify.Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

// WithLocker replaces the in-process run lock
func WithLocker(l Locker) Option {
	return func(a *Aggregator) { a.locker = l }
}

// WithClock replaces the clock used for the team needs year
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an aggregator over s
func New(s store.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     s,
		notifier:  notify.Log{},
		locker:    &mutexLocker{},
		now:       time.Now,
		pageSize:  DefaultPageSize,
		batchSize: store.MaxBatchSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.writer = store.NewBatchWriter(s, a.batchSize)
	return a
}

// Run reads every draft session and rewrites all analytics documents.
// Concurrent runs fail with ErrRunInProgress.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	release, err := a.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release(ctx, release)

	start := time.Now()
	result := &Result{RunID: uuid.NewString(), Mode: ModeFull}

	log.Info().Str("run_id", result.RunID).Msg("Starting analytics aggregation")

	sessions, err := a.fullRun(ctx, result)
	result.Duration = time.Since(start)

	if err != nil {
		metrics.RecordAggregation(ModeFull, "error", result.Duration.Seconds(), len(sessions))
		metrics.RecordError("aggregator", "run_failed")
		a.fail(ctx, ModeFull, err, map[string]any{
			"error":      err.Error(),
			"inProgress": false,
		})
		return result, err
	}

	metrics.RecordAggregation(ModeFull, "success", result.Duration.Seconds(), result.Sessions)
	log.Info().
		Str("run_id", result.RunID).
		Int("sessions", result.Sessions).
		Int("documents", result.Documents).
		Dur("duration", result.Duration).
		Msg("Analytics aggregation complete")
	return result, nil
}

func (a *Aggregator) fullRun(ctx context.Context, result *Result) ([]models.DraftSession, error) {
	if err := a.mergeMetadata(ctx, map[string]any{
		"inProgress":         true,
		"documentsProcessed": 0,
		"startedAt":          store.ServerTimestamp,
		"runId":              result.RunID,
	}); err != nil {
		return nil, err
	}

	pager := NewSessionPager(a.store, a.pageSize)
	var sessions []models.DraftSession
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return sessions, err
		}
		if len(page) == 0 {
			break
		}
		sessions = append(sessions, page...)

		if err := a.mergeMetadata(ctx, map[string]any{
			"documentsProcessed": len(sessions),
			"inProgress":         true,
		}); err != nil {
			return sessions, err
		}
		log.Debug().
			Int("page", pager.Pages()).
			Int("sessions", len(page)).
			Int("total", len(sessions)).
			Msg("Read sessions page")
	}
	result.Sessions = len(sessions)

	if len(sessions) == 0 {
		log.Info().Msg("No draft sessions to aggregate")
		return sessions, a.mergeMetadata(ctx, map[string]any{
			"lastUpdated":        store.ServerTimestamp,
			"documentsProcessed": 0,
			"inProgress":         false,
			"error":              nil,
		})
	}

	docs, err := a.runPasses(ctx, sessions)
	result.Documents = docs
	if err != nil {
		return sessions, err
	}

	return sessions, a.mergeMetadata(ctx, map[string]any{
		"lastUpdated":        store.ServerTimestamp,
		"documentsProcessed": len(sessions),
		"inProgress":         false,
		"error":              nil,
	})
}

// runPasses runs every pass concurrently over the same snapshot and waits
// for all of them. It returns the number of documents written.
func (a *Aggregator) runPasses(ctx context.Context, sessions []models.DraftSession) (int, error) {
	now := a.now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		written int
	)

	for _, p := range passes {
		wg.Add(1)
		go func(p pass) {
			defer wg.Done()

			start := time.Now()
			n, err := a.writeOutputs(ctx, p.run(sessions, now))
			metrics.RecordPass(p.name, time.Since(start).Seconds())

			mu.Lock()
			defer mu.Unlock()
			written += n
			if err != nil {
				log.Error().Err(err).Str("pass", p.name).Msg("Aggregation pass failed")
				errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
				return
			}
			log.Info().
				Str("pass", p.name).
				Int("documents", n).
				Dur("duration", time.Since(start)).
				Msg("Aggregation pass complete")
		}(p)
	}

	wg.Wait()
	return written, errors.Join(errs...)
}

func (a *Aggregator) writeOutputs(ctx context.Context, outputs []output) (int, error) {
	ops := make([]store.Op, 0, len(outputs))
	for _, out := range outputs {
		data, err := toDocument(out.payload)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s: %w", out.id, err)
		}
		data["lastUpdated"] = store.ServerTimestamp
		ops = append(ops, store.SetOp(models.CollectionPrecomputed, out.id, data))
	}

	res, err := a.writer.Write(ctx, ops)
	return res.Ops, err
}

func (a *Aggregator) mergeMetadata(ctx context.Context, fields map[string]any) error {
	if err := a.store.Merge(ctx, models.CollectionPrecomputed, models.DocMetadata, fields); err != nil {
		return fmt.Errorf("failed to update aggregation metadata: %w", err)
	}
	return nil
}

// fail records err on the metadata document and reports it. Neither step
// can mask the original error.
func (a *Aggregator) fail(ctx context.Context, mode string, err error, fields map[string]any) {
	ctx = context.WithoutCancel(ctx)

	log.Error().Err(err).Str("mode", mode).Msg("Analytics aggregation failed")

	if mErr := a.mergeMetadata(ctx, fields); mErr != nil {
		log.Error().Err(mErr).Msg("Failed to record aggregation error")
	}
	if nErr := a.notifier.AggregationFailed(ctx, mode, err); nErr != nil {
		log.Warn().Err(nErr).Msg("Failed to send aggregation failure alert")
	}
}

func (a *Aggregator) release(ctx context.Context, release func(context.Context) error) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("Failed to release aggregation lock")
	}
}

// toDocument renders a payload struct as a stored document body
func toDocument(payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
