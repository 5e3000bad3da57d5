package ranking

import (
	"math"
	"sort"
)

// NeutralPercentile is returned for a cohort with no finite values
const NeutralPercentile = 50.0

// Cohort is a pre-sorted set of finite metric values for repeated lookups
type Cohort struct {
	sorted []float64
}

// NewCohort drops NaN and infinite values and sorts the rest
func NewCohort(values []float64) Cohort {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	return Cohort{sorted: sorted}
}

// Len returns the number of finite values
func (c Cohort) Len() int { return len(c.sorted) }

// Rank returns the share of cohort values strictly below value, on a 0-100 scale
func (c Cohort) Rank(value float64) float64 {
	if len(c.sorted) == 0 {
		return NeutralPercentile
	}
	if math.IsNaN(value) {
		return 0
	}
	below := sort.SearchFloat64s(c.sorted, value)
	return float64(below) / float64(len(c.sorted)) * 100
}

// PercentileRank ranks value against cohort. Use NewCohort when ranking many
// values against the same cohort.
func PercentileRank(value float64, cohort []float64) float64 {
	return NewCohort(cohort).Rank(value)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
