package aggregator

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"draftlab/analytics/internal/models"
)

// output is one document produced by a pass
type output struct {
	id      string
	payload any
}

// pass is an independent aggregation over a session snapshot
type pass struct {
	name string
	run  func(sessions []models.DraftSession, now time.Time) []output
}

var passes = []pass{
	{name: "positionDistribution", run: func(s []models.DraftSession, _ time.Time) []output {
		return []output{{models.DocPositionDistribution, positionDistribution(s)}}
	}},
	{name: "teamNeeds", run: func(s []models.DraftSession, now time.Time) []output {
		return []output{{models.DocTeamNeeds, teamNeeds(s, now.Year())}}
	}},
	{name: "positionsByPick", run: func(s []models.DraftSession, _ time.Time) []output {
		outs := []output{{models.DocPositionsByPick, models.PickTable[models.PositionsAtPick]{Data: positionsByPick(s, 0)}}}
		for round := 1; round <= models.MaxRound; round++ {
			outs = append(outs, output{
				models.RoundDocID(models.DocPositionsByPick, round),
				models.PickTable[models.PositionsAtPick]{Data: positionsByPick(s, round)},
			})
		}
		return outs
	}},
	{name: "playersByPick", run: func(s []models.DraftSession, _ time.Time) []output {
		outs := []output{{models.DocPlayersByPick, models.PickTable[models.PlayersAtPick]{Data: playersByPick(s, 0)}}}
		for round := 1; round <= models.MaxRound; round++ {
			outs = append(outs, output{
				models.RoundDocID(models.DocPlayersByPick, round),
				models.PickTable[models.PlayersAtPick]{Data: playersByPick(s, round)},
			})
		}
		return outs
	}},
	{name: "playerDeviations", run: func(s []models.DraftSession, _ time.Time) []output {
		return []output{{models.DocPlayerDeviations, playerDeviations(s)}}
	}},
	{name: "teamPerformance", run: func(s []models.DraftSession, _ time.Time) []output {
		return []output{{models.DocTeamPerformance, teamPerformance(s)}}
	}},
	{name: "pickCorrelations", run: func(s []models.DraftSession, _ time.Time) []output {
		return []output{{models.DocPickCorrelations, pickCorrelations(s)}}
	}},
	{name: "historicalTrends", run: func(s []models.DraftSession, _ time.Time) []output {
		return []output{{models.DocHistoricalTrends, historicalTrends(s)}}
	}},
}

// percent formats count/total as "x.y%"
func percent(count, total int) string {
	if total <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(count)/float64(total)*100)
}

// shares converts raw position counts to counts with formatted percentages
func shares(counts map[string]int) (int, map[string]models.PositionShare) {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make(map[string]models.PositionShare, len(counts))
	for pos, c := range counts {
		out[pos] = models.PositionShare{Count: c, Percentage: percent(c, total)}
	}
	return total, out
}

// ranked is a key with a count, sorted by count descending then key
type ranked struct {
	key   string
	count int
}

func rankCounts(counts map[string]int) []ranked {
	out := make([]ranked, 0, len(counts))
	for k, c := range counts {
		out = append(out, ranked{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

// playerKey identifies a player across sessions
func playerKey(p models.DraftPick) string {
	return p.PlayerName + "|" + p.Position
}

// roundLabel renders a pick's round the way it is stored ("1".."7" or "?")
func roundLabel(p models.DraftPick) string {
	if p.Round.Int() <= 0 {
		return "?"
	}
	return strconv.Itoa(p.Round.Int())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
