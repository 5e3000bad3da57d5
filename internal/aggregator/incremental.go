package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Incremental job states stored under metadata.jobStatus.positions
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// RunIncremental folds sessions newer than the stored watermark into the
// overall position distribution and rewrites position_trends/round_{n}.
func (a *Aggregator) RunIncremental(ctx context.Context) (*Result, error) {
	release, err := a.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release(ctx, release)

	start := time.Now()
	result := &Result{RunID: uuid.NewString(), Mode: ModeIncremental}

	err = a.incremental(ctx, result)
	result.Duration = time.Since(start)

	if err != nil {
		metrics.RecordAggregation(ModeIncremental, "error", result.Duration.Seconds(), result.Sessions)
		metrics.RecordError("aggregator", "incremental_failed")
		a.fail(ctx, ModeIncremental, err, map[string]any{
			"jobStatus": map[string]any{
				"positions": JobFailed,
				"error":     err.Error(),
			},
		})
		return result, err
	}

	metrics.RecordAggregation(ModeIncremental, "success", result.Duration.Seconds(), result.Sessions)
	log.Info().
		Str("run_id", result.RunID).
		Int("sessions", result.Sessions).
		Int("documents", result.Documents).
		Dur("duration", result.Duration).
		Msg("Incremental aggregation complete")
	return result, nil
}

func (a *Aggregator) incremental(ctx context.Context, result *Result) error {
	md, err := a.metadata(ctx)
	if err != nil {
		return err
	}
	since := md.LastProcessedTimestamp
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}

	if err := a.mergeMetadata(ctx, map[string]any{
		"jobStatus": map[string]any{"positions": JobProcessing},
	}); err != nil {
		return err
	}

	overall, err := a.overallCounts(ctx)
	if err != nil {
		return err
	}

	byRound := map[int]map[int]map[string]int{}
	watermark := since
	selected := 0
	// Stored timestamps come in several encodings, so sessions are paged by
	// id and compared after decoding.
	pager := NewSessionPager(a.store, incrementalPageSize)

	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		for _, s := range page {
			stamped, ok := sessionTime(s)
			if !ok || !stamped.After(since) {
				continue
			}
			selected++
			if stamped.After(watermark) {
				watermark = stamped
			}
			for _, p := range s.Picks {
				round, pick := p.Round.Int(), p.PickNumber.Int()
				if p.Position == "" || round <= 0 || pick <= 0 {
					continue
				}
				overall[p.Position]++
				if byRound[round] == nil {
					byRound[round] = map[int]map[string]int{}
				}
				if byRound[round][pick] == nil {
					byRound[round][pick] = map[string]int{}
				}
				byRound[round][pick][p.Position]++
			}
		}

		if err := a.mergeMetadata(ctx, map[string]any{
			"positionsProgress": map[string]any{
				"batchesProcessed":   pager.Pages(),
				"documentsProcessed": selected,
				"inProgress":         true,
				"lastBatchTime":      store.ServerTimestamp,
			},
		}); err != nil {
			return err
		}
	}
	result.Sessions = selected

	completed := map[string]any{
		"jobStatus": map[string]any{"positions": JobCompleted},
		"positionsProgress": map[string]any{
			"batchesProcessed":   pager.Pages(),
			"documentsProcessed": selected,
			"inProgress":         false,
			"lastBatchTime":      store.ServerTimestamp,
		},
	}

	if result.Sessions == 0 {
		log.Info().Time("since", since).Msg("No new draft sessions")
		return a.mergeMetadata(ctx, completed)
	}

	var d models.Distribution
	d.Total, d.Positions = shares(overall)
	if err := a.store.Merge(ctx, models.CollectionPrecomputed, models.DocPositionDistribution, map[string]any{
		"overall":     d,
		"lastUpdated": store.ServerTimestamp,
	}); err != nil {
		return fmt.Errorf("failed to update position distribution: %w", err)
	}
	result.Documents++

	ops := make([]store.Op, 0, len(byRound))
	for _, round := range sortedRounds(byRound) {
		rows := make([]models.PositionsAtPick, 0, len(byRound[round]))
		for pick, positions := range byRound[round] {
			rows = append(rows, pickRow(pick, fmt.Sprint(round), positions))
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Pick < rows[j].Pick })

		data, err := toDocument(map[string]any{"positions": rows})
		if err != nil {
			return fmt.Errorf("failed to encode round %d trends: %w", round, err)
		}
		data["lastUpdated"] = store.ServerTimestamp
		ops = append(ops, store.SetOp(models.CollectionPositionTrends, fmt.Sprintf("round_%d", round), data))
	}
	res, err := a.writer.Write(ctx, ops)
	result.Documents += res.Ops
	if err != nil {
		return err
	}

	completed["lastProcessedTimestamp"] = models.FormatTime(watermark)
	completed["lastUpdated"] = store.ServerTimestamp
	return a.mergeMetadata(ctx, completed)
}

// sessionTime is the session timestamp at the millisecond precision the
// watermark is stored with.
func sessionTime(s models.DraftSession) (time.Time, bool) {
	if s.Timestamp == nil || s.Timestamp.IsZero() {
		return time.Time{}, false
	}
	return s.Timestamp.UTC().Truncate(time.Millisecond), true
}

func (a *Aggregator) metadata(ctx context.Context) (models.AggregationMetadata, error) {
	doc, err := a.store.Get(ctx, models.CollectionPrecomputed, models.DocMetadata)
	if errors.Is(err, store.ErrNotFound) {
		return models.AggregationMetadata{}, nil
	}
	if err != nil {
		return models.AggregationMetadata{}, fmt.Errorf("failed to read aggregation metadata: %w", err)
	}
	return models.DecodeMetadata(doc.Data), nil
}

// overallCounts seeds position counts from the stored distribution
func (a *Aggregator) overallCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}

	doc, err := a.store.Get(ctx, models.CollectionPrecomputed, models.DocPositionDistribution)
	if errors.Is(err, store.ErrNotFound) {
		return counts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position distribution: %w", err)
	}

	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return counts, nil
	}
	var stored models.PositionDistribution
	if err := json.Unmarshal(raw, &stored); err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable position distribution")
		return counts, nil
	}
	for pos, share := range stored.Overall.Positions {
		counts[pos] = share.Count
	}
	return counts, nil
}

func sortedRounds(m map[int]map[int]map[string]int) []int {
	rounds := make([]int, 0, len(m))
	for r := range m {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)
	return rounds
}
