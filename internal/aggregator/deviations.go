package aggregator

import (
	"math"
	"sort"

	"draftlab/analytics/internal/models"
)

// minDeviationSamples is the fewest observations a player needs to be reported
const minDeviationSamples = 3

type deviationAcc struct {
	name     string
	position string
	school   string
	values   []int
}

// playerDeviations averages (pick number - pre-draft rank) per player
func playerDeviations(sessions []models.DraftSession) models.PlayerDeviations {
	accs := map[string]*deviationAcc{}

	for _, s := range sessions {
		for _, p := range s.Picks {
			if p.PlayerName == "" || p.PickNumber.Int() <= 0 || p.PlayerRank.Int() <= 0 {
				continue
			}
			key := playerKey(p)
			acc, ok := accs[key]
			if !ok {
				acc = &deviationAcc{name: p.PlayerName, position: p.Position, school: p.School}
				accs[key] = acc
			}
			acc.values = append(acc.values, p.PickNumber.Int()-p.PlayerRank.Int())
		}
	}

	players := make([]models.PlayerDeviation, 0, len(accs))
	for _, acc := range accs {
		if len(acc.values) < minDeviationSamples {
			continue
		}
		sum := 0
		for _, v := range acc.values {
			sum += v
		}
		avg := float64(sum) / float64(len(acc.values))
		players = append(players, models.PlayerDeviation{
			Name:         acc.name,
			Position:     acc.position,
			AvgDeviation: math.Round(avg*10) / 10,
			SampleSize:   len(acc.values),
			School:       acc.school,
		})
	}
	sortByMagnitude(players)

	byPosition := map[string][]models.PlayerDeviation{}
	for _, p := range players {
		byPosition[p.Position] = append(byPosition[p.Position], p)
	}
	sizes := make(map[string]int, len(byPosition))
	for pos, list := range byPosition {
		sizes[pos] = len(list)
	}

	return models.PlayerDeviations{
		Players:             players,
		ByPosition:          byPosition,
		SampleSize:          len(sessions),
		PositionSampleSizes: sizes,
	}
}

func sortByMagnitude(players []models.PlayerDeviation) {
	sort.Slice(players, func(i, j int) bool {
		ai, aj := math.Abs(players[i].AvgDeviation), math.Abs(players[j].AvgDeviation)
		if ai != aj {
			return ai > aj
		}
		if players[i].Name != players[j].Name {
			return players[i].Name < players[j].Name
		}
		return players[i].Position < players[j].Position
	})
}
