package aggregator

import (
	"draftlab/analytics/internal/models"
)

// maxTeamNeeds is the number of positions kept per team
const maxTeamNeeds = 5

// positionDistribution counts positions overall and per drafting team
func positionDistribution(sessions []models.DraftSession) models.PositionDistribution {
	overall := map[string]int{}
	byTeam := map[string]map[string]int{}

	for _, s := range sessions {
		for _, p := range s.Picks {
			if p.Position == "" {
				continue
			}
			overall[p.Position]++

			if p.ActualTeam == "" {
				continue
			}
			if byTeam[p.ActualTeam] == nil {
				byTeam[p.ActualTeam] = map[string]int{}
			}
			byTeam[p.ActualTeam][p.Position]++
		}
	}

	result := models.PositionDistribution{ByTeam: make(map[string]models.Distribution, len(byTeam))}
	result.Overall.Total, result.Overall.Positions = shares(overall)
	for team, counts := range byTeam {
		var d models.Distribution
		d.Total, d.Positions = shares(counts)
		result.ByTeam[team] = d
	}
	return result
}

// teamNeeds weights early-round positions per team, 3x for round 1 down to
// 1x for round 3, and keeps each team's top positions.
func teamNeeds(sessions []models.DraftSession, year int) models.TeamNeeds {
	weighted := map[string]map[string]int{}

	for _, s := range sessions {
		for _, p := range s.Picks {
			round := p.Round.Int()
			if round < 1 || round > 3 || p.ActualTeam == "" || p.Position == "" {
				continue
			}
			if weighted[p.ActualTeam] == nil {
				weighted[p.ActualTeam] = map[string]int{}
			}
			weighted[p.ActualTeam][p.Position] += 4 - round
		}
	}

	needs := make(map[string][]string, len(weighted))
	for team, counts := range weighted {
		top := rankCounts(counts)
		if len(top) > maxTeamNeeds {
			top = top[:maxTeamNeeds]
		}
		positions := make([]string, len(top))
		for i, r := range top {
			positions[i] = r.key
		}
		needs[team] = positions
	}

	return models.TeamNeeds{Needs: needs, Year: year}
}
