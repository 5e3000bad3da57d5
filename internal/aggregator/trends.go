package aggregator

import (
	"math"
	"strings"

	"draftlab/analytics/internal/models"
)

const topPlayersPerMonth = 10

// historicalTrends buckets sessions by UTC calendar month
func historicalTrends(sessions []models.DraftSession) models.HistoricalTrends {
	byMonth := map[string][]models.DraftSession{}
	for _, s := range sessions {
		if s.Timestamp == nil || s.Timestamp.IsZero() || len(s.Picks) == 0 {
			continue
		}
		month := s.Timestamp.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], s)
	}

	out := models.HistoricalTrends{
		Trends: models.Trends{
			PositionTrends: map[string]map[string]models.MonthPositionShare{},
			TradeTrends: models.TradeTrends{
				TradeFrequency:           map[string]float64{},
				AverageValueDifferential: map[string]float64{},
			},
			Top10Players: map[string][]models.TrendPlayer{},
		},
		Months: sortedKeys(byMonth),
	}

	for _, month := range out.Months {
		docs := byMonth[month]
		positions := map[string]int{}
		players := map[string]int{}
		totalPicks, trades := 0, 0
		valueDiff := 0.0

		for _, s := range docs {
			for _, p := range s.Picks {
				positions[p.Position]++
				players[playerKey(p)]++
				totalPicks++
			}
			for _, t := range s.Trades {
				trades++
				valueDiff += math.Abs(t.ValueOffered.Float() - t.TargetValue.Float())
			}
		}

		monthShares := make(map[string]models.MonthPositionShare, len(positions))
		for pos, c := range positions {
			monthShares[pos] = models.MonthPositionShare{
				Count:      c,
				Percentage: float64(c) / float64(totalPicks) * 100,
			}
		}
		out.Trends.PositionTrends[month] = monthShares

		out.Trends.TradeTrends.TradeFrequency[month] = float64(trades) / float64(len(docs))
		if trades > 0 {
			out.Trends.TradeTrends.AverageValueDifferential[month] = valueDiff / float64(trades)
		} else {
			out.Trends.TradeTrends.AverageValueDifferential[month] = 0
		}

		top := rankCounts(players)
		if len(top) > topPlayersPerMonth {
			top = top[:topPlayersPerMonth]
		}
		list := make([]models.TrendPlayer, len(top))
		for i, r := range top {
			name, pos, _ := strings.Cut(r.key, "|")
			list[i] = models.TrendPlayer{
				Name:       name,
				Position:   pos,
				Count:      r.count,
				Percentage: percent(r.count, len(docs)),
			}
		}
		out.Trends.Top10Players[month] = list
	}

	return out
}
