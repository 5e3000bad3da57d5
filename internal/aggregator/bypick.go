package aggregator

import (
	"sort"

	"draftlab/analytics/internal/models"
)

// playersPerPick is the number of players kept per pick slot
const playersPerPick = 3

// positionsByPick tallies positions at each pick number. round 0 covers all
// rounds; otherwise only picks from that round count.
func positionsByPick(sessions []models.DraftSession, round int) []models.PositionsAtPick {
	counts := map[int]map[string]int{}
	rounds := map[int]string{}

	for _, s := range sessions {
		for _, p := range s.Picks {
			pick := p.PickNumber.Int()
			if pick <= 0 || p.Position == "" {
				continue
			}
			if round != 0 && p.Round.Int() != round {
				continue
			}
			if counts[pick] == nil {
				counts[pick] = map[string]int{}
			}
			counts[pick][p.Position]++
			rounds[pick] = roundLabel(p)
		}
	}

	rows := make([]models.PositionsAtPick, 0, len(counts))
	for pick, positions := range counts {
		rows = append(rows, pickRow(pick, rounds[pick], positions))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Pick < rows[j].Pick })
	return rows
}

// pickRow renders one pick slot's position counts, most frequent first
func pickRow(pick int, round string, positions map[string]int) models.PositionsAtPick {
	total := 0
	for _, c := range positions {
		total += c
	}

	row := models.PositionsAtPick{Pick: pick, Round: round, TotalDrafts: total}
	for _, r := range rankCounts(positions) {
		row.Positions = append(row.Positions, models.PickPositionShare{
			Position:   r.key,
			Count:      r.count,
			Percentage: percent(r.count, total),
		})
	}
	return row
}

type pickPlayer struct {
	share models.PickPlayerShare
	key   string
}

// playersByPick tallies the players taken at each pick number and keeps the
// most frequent three.
func playersByPick(sessions []models.DraftSession, round int) []models.PlayersAtPick {
	slots := map[int]map[string]*pickPlayer{}
	totals := map[int]int{}

	for _, s := range sessions {
		for _, p := range s.Picks {
			pick := p.PickNumber.Int()
			if pick <= 0 || p.PlayerName == "" {
				continue
			}
			if round != 0 && p.Round.Int() != round {
				continue
			}
			if slots[pick] == nil {
				slots[pick] = map[string]*pickPlayer{}
			}
			key := playerKey(p)
			entry, ok := slots[pick][key]
			if !ok {
				entry = &pickPlayer{key: key, share: models.PickPlayerShare{
					Player:   p.PlayerName,
					Position: p.Position,
					School:   p.School,
					Rank:     p.PlayerRank.Int(),
				}}
				slots[pick][key] = entry
			}
			entry.share.Count++
			totals[pick]++
		}
	}

	rows := make([]models.PlayersAtPick, 0, len(slots))
	for pick, players := range slots {
		list := make([]*pickPlayer, 0, len(players))
		for _, pp := range players {
			list = append(list, pp)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].share.Count != list[j].share.Count {
				return list[i].share.Count > list[j].share.Count
			}
			return list[i].key < list[j].key
		})
		if len(list) > playersPerPick {
			list = list[:playersPerPick]
		}

		row := models.PlayersAtPick{Pick: pick, TotalDrafts: totals[pick]}
		for _, pp := range list {
			share := pp.share
			share.Percentage = percent(share.Count, totals[pick])
			row.Players = append(row.Players, share)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Pick < rows[j].Pick })
	return rows
}
