package ranking

import (
	"fmt"
	"sort"

	"draftlab/analytics/internal/models"
)

// TermKind selects how a metric enters the composite
type TermKind string

const (
	// TermPercentile weights the metric's percentile within the cohort.
	TermPercentile TermKind = "percentile"
	// TermInvertedTier weights (10 - tier) * 10 for a 1-best ordinal tier input.
	TermInvertedTier TermKind = "inverted_tier"
)

// DefaultMissingTier stands in for an absent team-context tier
const DefaultMissingTier = 8

// Term is one weighted metric of a composite formula
type Term struct {
	Metric string   `koanf:"metric"`
	Weight float64  `koanf:"weight"`
	Kind   TermKind `koanf:"kind"`
}

// WeightTable is a named composite formula
type WeightTable struct {
	Name  string `koanf:"name"`
	Terms []Term `koanf:"terms"`
}

// Validate checks the table has terms and every term is usable
func (t WeightTable) Validate() error {
	if len(t.Terms) == 0 {
		return fmt.Errorf("weight table %q has no terms", t.Name)
	}
	for i, term := range t.Terms {
		if term.Metric == "" {
			return fmt.Errorf("weight table %q term %d: metric is required", t.Name, i)
		}
		switch term.Kind {
		case TermPercentile, TermInvertedTier:
		default:
			return fmt.Errorf("weight table %q term %q: unknown kind %q", t.Name, term.Metric, term.Kind)
		}
	}
	return nil
}

// Tables maps table names to formulas
type Tables map[string]WeightTable

// Lookup returns the named table
func (t Tables) Lookup(name string) (WeightTable, error) {
	table, ok := t[name]
	if !ok {
		return WeightTable{}, fmt.Errorf("unknown weight table %q (available: %v)", name, t.Names())
	}
	return table, nil
}

// Names lists the table names in sorted order
func (t Tables) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pct(metric string, weight float64) Term {
	return Term{Metric: metric, Weight: weight, Kind: TermPercentile}
}

func inv(metric string, weight float64) Term {
	return Term{Metric: metric, Weight: weight, Kind: TermInvertedTier}
}

// DefaultTables returns the built-in formulas. They are a starting point and
// can be replaced from the weights file.
func DefaultTables() Tables {
	receiver := []Term{
		pct(models.MetricTotalEPA, 2),
		pct(models.MetricTargetShare, 1),
		pct(models.MetricYards, 1),
		pct(models.MetricConversionRate, 0.5),
		pct(models.MetricExplosiveRate, 0.5),
		pct(models.MetricAvgSeparation, 1),
		pct(models.MetricCatchPercentage, 1),
	}
	wr2025 := append(append([]Term{}, receiver[:6]...), pct(models.MetricAvgIntendedAirYards, 0.3))

	return Tables{
		"wr":      {Name: "wr", Terms: receiver},
		"te":      {Name: "te", Terms: append([]Term{}, receiver...)},
		"wr_2025": {Name: "wr_2025", Terms: wr2025},
		"wr_projection": {Name: "wr_projection", Terms: []Term{
			pct(models.MetricProjectedPoints, 0.20),
			pct(models.MetricYards, 0.20),
			pct(models.MetricTargetShare, 0.15),
			inv(models.MetricPassOffenseTier, 0.10),
			inv(models.MetricQBTier, 0.10),
			inv(models.MetricEPATier, 0.15),
			inv(models.MetricNYPassFreqTier, 0.10),
		}},
		"rb": {Name: "rb", Terms: []Term{
			pct(models.MetricTotalEPA, 2),
			pct(models.MetricRushShare, 1),
			pct(models.MetricYards, 1),
			pct(models.MetricConversionRate, 0.5),
			pct(models.MetricExplosiveRate, 0.5),
			pct(models.MetricTargetShare, 1),
			pct(models.MetricReceptions, 1),
		}},
		"qb": {Name: "qb", Terms: []Term{
			pct(models.MetricTotalEPA, 2),
			pct(models.MetricAvgCPOE, 1),
			pct(models.MetricYardsPerGame, 1),
			pct(models.MetricTDsPerGame, 1),
			pct(models.MetricINTsPerGame, -1),
			pct(models.MetricThirdDownConversionRate, 0.5),
		}},
	}
}

// DefaultTableFor returns the default table name for a position
func DefaultTableFor(p models.Position) string {
	switch p {
	case models.PositionQB:
		return "qb"
	case models.PositionRB:
		return "rb"
	case models.PositionTE:
		return "te"
	default:
		return "wr"
	}
}
