package ranking

// TierCount is the number of ordinal tiers; tier 1 is best
const TierCount = 8

// TierBand is the width of each tier in percentile points
const TierBand = 100.0 / TierCount

// TierForPercentile maps a 0-100 percentile to a tier:
// >= 87.5 is tier 1, >= 75 tier 2, ... below 12.5 tier 8.
func TierForPercentile(p float64) int {
	for tier := 1; tier < TierCount; tier++ {
		if p >= 100-float64(tier)*TierBand {
			return tier
		}
	}
	return TierCount
}

// AssignTier locates score within scores and returns its tier. An empty
// cohort yields the worst tier.
func AssignTier(score float64, scores []float64) int {
	return tierWithin(score, NewCohort(scores))
}

func tierWithin(score float64, cohort Cohort) int {
	if cohort.Len() == 0 {
		return TierCount
	}
	return TierForPercentile(cohort.Rank(score))
}
