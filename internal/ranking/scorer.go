package ranking

import (
	"draftlab/analytics/internal/models"
)

// Option configures a Scorer or Pipeline
type Option func(*options)

type options struct {
	missingTier int
}

func defaultOptions() options {
	return options{missingTier: DefaultMissingTier}
}

// WithMissingTier overrides the tier assumed for records without one
func WithMissingTier(tier int) Option {
	return func(o *options) {
		if tier > 0 {
			o.missingTier = tier
		}
	}
}

// Scorer computes composite scores for one cohort under one weight table.
// Percentile columns are built once per cohort.
type Scorer struct {
	table   WeightTable
	columns map[string]Cohort
	opts    options
}

// NewScorer prepares the percentile columns the table needs from cohort
func NewScorer(table WeightTable, cohort []models.Record, opts ...Option) *Scorer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	columns := make(map[string]Cohort, len(table.Terms))
	for _, term := range table.Terms {
		if term.Kind != TermPercentile {
			continue
		}
		if _, done := columns[term.Metric]; done {
			continue
		}
		values := make([]float64, len(cohort))
		for i, rec := range cohort {
			values[i] = metricOrZero(rec, term.Metric)
		}
		columns[term.Metric] = NewCohort(values)
	}

	return &Scorer{table: table, columns: columns, opts: o}
}

// Score returns the weighted composite for rec. The result has no fixed range
// and only orders records within the cohort.
func (s *Scorer) Score(rec models.Record) float64 {
	var total float64
	for _, term := range s.table.Terms {
		switch term.Kind {
		case TermPercentile:
			total += s.columns[term.Metric].Rank(metricOrZero(rec, term.Metric)) * term.Weight
		case TermInvertedTier:
			tier := float64(s.opts.missingTier)
			if v, ok := rec.Metric(term.Metric); ok && v > 0 {
				tier = v
			}
			total += (10 - tier) * 10 * term.Weight
		}
	}
	return total
}

// metricOrZero treats a missing metric as the worst raw value
func metricOrZero(rec models.Record, metric string) float64 {
	v, ok := rec.Metric(metric)
	if !ok || !isFinite(v) {
		return 0
	}
	return v
}
