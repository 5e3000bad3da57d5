package importer

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/query"
	"draftlab/analytics/internal/ranking"
	"draftlab/analytics/internal/store"

	"github.com/rs/zerolog/log"
)

// Cohort is one position-season worth of records to rank and replace
type Cohort struct {
	Position models.Position
	Season   int
	// Table names the weight table; empty means the position default
	Table string
	// Collection receives the documents; empty means the position default
	Collection string
	Records    []models.Record
}

// Summary describes a finished cohort import
type Summary struct {
	Position   models.Position
	Season     int
	Table      string
	Collection string
	Written    int
	Deleted    int
	Skipped    int
	Batches    int
	TierCounts map[int]int
	Duration   time.Duration
}

// PageEvictor drops cached query pages; cache.RedisCache implements it
type PageEvictor interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Importer ranks cohorts and replaces their stored documents
type Importer struct {
	store    store.Store
	writer   *store.BatchWriter
	pipeline *ranking.Pipeline
	pages    PageEvictor
}

// Option configures an Importer
type Option func(*Importer)

// WithPageEvictor evicts the cached query pages of every collection an
// import rewrites
func WithPageEvictor(e PageEvictor) Option {
	return func(i *Importer) { i.pages = e }
}

// New creates an importer writing batches of batchSize
func New(s store.Store, pipeline *ranking.Pipeline, batchSize int, opts ...Option) *Importer {
	if pipeline == nil {
		pipeline = ranking.NewPipeline(nil)
	}
	i := &Importer{
		store:    s,
		writer:   store.NewBatchWriter(s, batchSize),
		pipeline: pipeline,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// DefaultCollection returns the stats collection for a position, e.g. wrStats
func DefaultCollection(p models.Position) string {
	return strings.ToLower(string(p)) + "Stats"
}

// Parse picks the parser from the source extension; anything but .json is CSV
func Parse(source string, r io.Reader, position models.Position) ([]models.Record, error) {
	location, _, _ := strings.Cut(source, "?")
	if strings.EqualFold(path.Ext(location), ".json") {
		return ParseJSON(r, position)
	}
	return ParseCSV(r, position)
}

// ImportCohort ranks the cohort, deletes stored documents of the same
// position and season that are no longer present, and upserts every record
// under its deterministic id.
func (i *Importer) ImportCohort(ctx context.Context, c Cohort) (*Summary, error) {
	start := time.Now()

	if _, err := models.ParsePosition(string(c.Position)); err != nil {
		return nil, err
	}
	if c.Season <= 0 {
		return nil, fmt.Errorf("season is required")
	}
	if c.Table == "" {
		c.Table = ranking.DefaultTableFor(c.Position)
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection(c.Position)
	}

	summary := &Summary{
		Position:   c.Position,
		Season:     c.Season,
		Table:      c.Table,
		Collection: c.Collection,
	}

	records := make([]models.Record, 0, len(c.Records))
	for _, rec := range c.Records {
		base := rec.Base()
		if base.Season == 0 {
			base.Season = c.Season
		}
		if base.Season != c.Season {
			log.Warn().
				Str("player", base.PlayerName).
				Int("season", base.Season).
				Int("cohort_season", c.Season).
				Msg("Skipping record from another season")
			summary.Skipped++
			continue
		}
		base.Position = c.Position
		records = append(records, rec)
	}

	ranked, err := i.pipeline.Rank(records, c.Table)
	if err != nil {
		metrics.RecordImport(string(c.Position), "error", 0)
		return nil, fmt.Errorf("failed to rank cohort: %w", err)
	}

	existing, err := i.store.Query(ctx, store.Query{
		Collection: c.Collection,
		Filters: []store.Filter{
			store.Eq("season", c.Season),
			store.Eq("position", string(c.Position)),
		},
	})
	if err != nil {
		metrics.RecordImport(string(c.Position), "error", 0)
		return nil, fmt.Errorf("failed to read existing cohort: %w", err)
	}

	keep := make(map[string]bool, len(ranked))
	sets := make([]store.Op, 0, len(ranked))
	for _, rec := range ranked {
		id := rec.Base().DocumentID()
		if keep[id] {
			log.Warn().Str("id", id).Msg("Duplicate record in cohort, last one wins")
		}
		keep[id] = true

		doc := rec.Document()
		doc["lastUpdated"] = store.ServerTimestamp
		sets = append(sets, store.SetOp(c.Collection, id, doc))
	}

	var ops []store.Op
	for _, doc := range existing {
		if !keep[doc.ID] {
			ops = append(ops, store.DeleteOp(c.Collection, doc.ID))
			summary.Deleted++
		}
	}
	ops = append(ops, sets...)

	result, err := i.writer.Write(ctx, ops)
	if err != nil {
		metrics.RecordImport(string(c.Position), "error", result.Ops)
		return nil, fmt.Errorf("failed to write cohort: %w", err)
	}

	summary.Written = len(sets)
	summary.Batches = result.Batches
	i.evictPages(ctx, c.Collection)
	summary.TierCounts = ranking.TierCounts(ranked)
	summary.Duration = time.Since(start)

	metrics.RecordImport(string(c.Position), "success", summary.Written)
	log.Info().
		Str("position", string(c.Position)).
		Int("season", c.Season).
		Str("table", c.Table).
		Str("collection", c.Collection).
		Int("written", summary.Written).
		Int("deleted", summary.Deleted).
		Int("skipped", summary.Skipped).
		Int("batches", summary.Batches).
		Interface("tiers", summary.TierCounts).
		Dur("duration", summary.Duration).
		Msg("Cohort import completed")

	return summary, nil
}

// evictPages drops stale query pages. A failure only leaves pages to expire
// on their TTL.
func (i *Importer) evictPages(ctx context.Context, collection string) {
	if i.pages == nil {
		return
	}
	removed, err := i.pages.DeletePrefix(ctx, query.PagePrefix(collection))
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("Failed to evict cached query pages")
		return
	}
	log.Debug().Str("collection", collection).Int("removed", removed).Msg("Evicted cached query pages")
}

// ImportSource opens, parses and imports one source location
func (i *Importer) ImportSource(ctx context.Context, sources *Sources, source string, c Cohort) (*Summary, error) {
	rc, err := sources.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := Parse(source, rc, c.Position)
	if err != nil {
		return nil, err
	}
	c.Records = records
	return i.ImportCohort(ctx, c)
}
