package store

import (
	"context"
	"fmt"

	"draftlab/analytics/internal/metrics"

	"github.com/rs/zerolog/log"
)

// MaxBatchSize is the hard ceiling on operations in one atomic commit
const MaxBatchSize = 500

// Committer applies one atomic batch
type Committer interface {
	CommitBatch(ctx context.Context, ops []Op) error
}

// BatchError reports the batch that failed and how many operations were
// committed before it. Earlier batches are not rolled back.
type BatchError struct {
	Batch     int
	Committed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d committed operations: %v", e.Batch, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// BatchResult summarizes a successful write
type BatchResult struct {
	Ops     int
	Batches int
}

// BatchWriter splits large write sets into sequential atomic chunks
type BatchWriter struct {
	committer Committer
	size      int
}

// NewBatchWriter creates a writer; sizes outside 1..MaxBatchSize use MaxBatchSize
func NewBatchWriter(c Committer, size int) *BatchWriter {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	return &BatchWriter{committer: c, size: size}
}

// Size returns the configured chunk size
func (w *BatchWriter) Size() int { return w.size }

// Write commits ops in order, at most Size per chunk
func (w *BatchWriter) Write(ctx context.Context, ops []Op) (BatchResult, error) {
	var result BatchResult
	for start := 0; start < len(ops); start += w.size {
		if err := ctx.Err(); err != nil {
			return result, &BatchError{Batch: result.Batches + 1, Committed: result.Ops, Err: err}
		}

		end := start + w.size
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]

		if err := w.committer.CommitBatch(ctx, chunk); err != nil {
			metrics.RecordBatchWrite("error", len(chunk))
			log.Error().Err(err).
				Int("batch", result.Batches+1).
				Int("committed", result.Ops).
				Msg("Batch commit failed")
			return result, &BatchError{Batch: result.Batches + 1, Committed: result.Ops, Err: err}
		}

		result.Batches++
		result.Ops += len(chunk)
		metrics.RecordBatchWrite("success", len(chunk))
		log.Debug().
			Int("batch", result.Batches).
			Int("ops", len(chunk)).
			Msg("Committed batch")
	}
	return result, nil
}
