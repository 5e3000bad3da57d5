package aggregator

import (
	"sort"

	"draftlab/analytics/internal/models"
)

const (
	// minPairCount is the exclusive lower bound for a reported pair
	minPairCount        = 2
	maxPlayerPairs      = 100
	maxPositionExamples = 5
)

type pairAcc struct {
	key    string
	first  models.PlayerRef
	second models.PlayerRef
	count  int
}

// pickCorrelations counts how often two players land in the same session
func pickCorrelations(sessions []models.DraftSession) models.PickCorrelations {
	pairs := map[string]*pairAcc{}

	for _, s := range sessions {
		if len(s.Picks) < 2 {
			continue
		}
		for i := 0; i < len(s.Picks); i++ {
			a := s.Picks[i]
			if a.PlayerName == "" {
				continue
			}
			for j := i + 1; j < len(s.Picks); j++ {
				b := s.Picks[j]
				if b.PlayerName == "" {
					continue
				}
				ka, kb := playerKey(a), playerKey(b)
				first, second := models.PlayerRef{Name: a.PlayerName, Position: a.Position}, models.PlayerRef{Name: b.PlayerName, Position: b.Position}
				if kb < ka {
					ka, kb = kb, ka
					first, second = second, first
				}
				key := ka + "___" + kb
				acc, ok := pairs[key]
				if !ok {
					acc = &pairAcc{key: key, first: first, second: second}
					pairs[key] = acc
				}
				acc.count++
			}
		}
	}

	significant := make([]*pairAcc, 0)
	for _, acc := range pairs {
		if acc.count > minPairCount {
			significant = append(significant, acc)
		}
	}
	sort.Slice(significant, func(i, j int) bool {
		if significant[i].count != significant[j].count {
			return significant[i].count > significant[j].count
		}
		return significant[i].key < significant[j].key
	})

	byPosition := map[string]*models.PositionCorrelation{}
	var order []string
	for _, acc := range significant {
		posKey := acc.first.Position + "___" + acc.second.Position
		pc, ok := byPosition[posKey]
		if !ok {
			pc = &models.PositionCorrelation{
				Position1: acc.first.Position,
				Position2: acc.second.Position,
				Examples:  []models.CorrelationExample{},
			}
			byPosition[posKey] = pc
			order = append(order, posKey)
		}
		pc.Count++
		if len(pc.Examples) < maxPositionExamples {
			pc.Examples = append(pc.Examples, models.CorrelationExample{
				Player1: acc.first.Name,
				Player2: acc.second.Name,
				Count:   acc.count,
			})
		}
	}

	out := models.PickCorrelations{
		PlayerCorrelations:   []models.PlayerCorrelation{},
		PositionCorrelations: make([]models.PositionCorrelation, 0, len(order)),
	}
	for i, acc := range significant {
		if i == maxPlayerPairs {
			break
		}
		out.PlayerCorrelations = append(out.PlayerCorrelations, models.PlayerCorrelation{
			Player1: acc.first,
			Player2: acc.second,
			Count:   acc.count,
		})
	}
	for _, k := range order {
		out.PositionCorrelations = append(out.PositionCorrelations, *byPosition[k])
	}
	sort.SliceStable(out.PositionCorrelations, func(i, j int) bool {
		return out.PositionCorrelations[i].Count > out.PositionCorrelations[j].Count
	})
	return out
}
