package aggregator

import (
	"draftlab/analytics/internal/models"
)

type teamAcc struct {
	drafts     int
	totalPicks int
	valueSum   int
	round1Sum  int
	tradeUps   int
	tradeDowns int
	byRound    map[string]int
	positions  map[string]int
}

// teamPerformance summarizes how each team drafts across sessions. Trades
// count toward teams already seen: up for the offering team, down for the
// receiving one.
func teamPerformance(sessions []models.DraftSession) models.TeamPerformance {
	accs := map[string]*teamAcc{}

	for _, s := range sessions {
		if len(s.Picks) == 0 {
			continue
		}

		byTeam := map[string][]models.DraftPick{}
		for _, p := range s.Picks {
			if p.ActualTeam == "" {
				continue
			}
			byTeam[p.ActualTeam] = append(byTeam[p.ActualTeam], p)
		}

		for _, team := range sortedKeys(byTeam) {
			acc, ok := accs[team]
			if !ok {
				acc = &teamAcc{byRound: map[string]int{}, positions: map[string]int{}}
				accs[team] = acc
			}
			acc.drafts++

			for _, p := range byTeam[team] {
				if p.Position != "" {
					acc.positions[p.Position]++
				}
				round := roundLabel(p)
				acc.byRound[round]++
				if round == "1" {
					acc.round1Sum += p.PickNumber.Int()
				}
				acc.valueSum += p.PickNumber.Int() - p.PlayerRank.Int()
				acc.totalPicks++
			}
		}

		for _, t := range s.Trades {
			if acc, ok := accs[t.TeamOffering]; ok {
				acc.tradeUps++
			}
			if acc, ok := accs[t.TeamReceiving]; ok {
				acc.tradeDowns++
			}
		}
	}

	out := models.TeamPerformance{Metrics: make(map[string]*models.TeamMetrics, len(accs))}
	for team, acc := range accs {
		m := &models.TeamMetrics{
			Drafts:       acc.drafts,
			TotalPicks:   acc.totalPicks,
			PicksByRound: acc.byRound,
		}
		if acc.totalPicks > 0 {
			m.AvgPickValue = float64(acc.valueSum) / float64(acc.totalPicks)
		}
		if n := acc.byRound["1"]; n > 0 {
			m.AverageRound1Pick = float64(acc.round1Sum) / float64(n)
		}
		if acc.drafts > 0 {
			m.TradeUpFrequency = float64(acc.tradeUps) / float64(acc.drafts)
			m.TradeDownFrequency = float64(acc.tradeDowns) / float64(acc.drafts)
		}
		_, m.PositionDistribution = shares(acc.positions)
		out.Metrics[team] = m
	}
	return out
}
