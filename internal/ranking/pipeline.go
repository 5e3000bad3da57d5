package ranking

import (
	"sort"
	"time"

	"draftlab/analytics/internal/models"

	"github.com/rs/zerolog/log"
)

// Rank scores, orders and tiers one cohort in place and returns it sorted
// best first. Every record's rank depends on the whole cohort, so the cohort
// must be complete. An empty cohort is returned unchanged.
func Rank(records []models.Record, table WeightTable, opts ...Option) []models.Record {
	if len(records) == 0 {
		return records
	}

	scorer := NewScorer(table, records, opts...)
	for _, rec := range records {
		rec.Base().MyRank = scorer.Score(rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Base().MyRank > records[j].Base().MyRank
	})

	scores := make([]float64, len(records))
	for i, rec := range records {
		base := rec.Base()
		base.MyRankNum = i + 1
		scores[i] = base.MyRank
	}

	scoreCohort := NewCohort(scores)
	for _, rec := range records {
		rec.Base().Tier = tierWithin(rec.Base().MyRank, scoreCohort)
	}

	return records
}

// Pipeline ranks cohorts with named weight tables
type Pipeline struct {
	tables Tables
	opts   []Option
}

// NewPipeline creates a pipeline over the given tables
func NewPipeline(tables Tables, opts ...Option) *Pipeline {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Pipeline{tables: tables, opts: opts}
}

// Tables returns the configured weight tables
func (p *Pipeline) Tables() Tables { return p.tables }

// Rank ranks records with the named table. The only failure is an unknown
// table name.
func (p *Pipeline) Rank(records []models.Record, tableName string) ([]models.Record, error) {
	table, err := p.tables.Lookup(tableName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ranked := Rank(records, table, p.opts...)

	log.Debug().
		Str("table", tableName).
		Int("records", len(ranked)).
		Dur("duration", time.Since(start)).
		Msg("Cohort ranked")

	return ranked, nil
}

// TierCounts tallies records per tier
func TierCounts(records []models.Record) map[int]int {
	counts := make(map[int]int, TierCount)
	for _, rec := range records {
		counts[rec.Base().Tier]++
	}
	return counts
}
