package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/query"
	"draftlab/analytics/internal/store"

	"github.com/rs/zerolog/log"
)

// Service computes rolling-window usage trends from weekly game logs
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a trends service over s
func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// DefaultSeason is the most recent season that has started by now.
// Seasons start in September.
func DefaultSeason(now time.Time) int {
	if now.Month() >= time.September {
		return now.Year()
	}
	return now.Year() - 1
}

// PlayerTrends averages touches and PPR points per player over the last
// weeks of the season's logged weeks, best average PPR first. A zero season
// means DefaultSeason.
func (s *Service) PlayerTrends(ctx context.Context, position string, weeks, season int) ([]models.PlayerTrend, error) {
	position = strings.ToUpper(strings.TrimSpace(position))
	if position == "" || weeks <= 0 {
		return nil, &query.Error{
			Code:    query.CodeInvalidArgument,
			Message: "Missing required parameters: position, weeks.",
		}
	}
	if season == 0 {
		season = DefaultSeason(s.now())
	}

	docs, err := s.store.Query(ctx, store.Query{
		Collection: models.CollectionGameLogs,
		Filters: []store.Filter{
			store.Eq("season", season),
			store.Eq("position", position),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read game logs: %w", err)
	}

	logs := make([]models.GameLog, 0, len(docs))
	maxWeek := 0
	for _, doc := range docs {
		var gl models.GameLog
		if err := decodeLog(doc.Data, &gl); err != nil {
			log.Debug().Err(err).Str("id", doc.ID).Msg("Skipping unreadable game log")
			continue
		}
		if gl.Week.Int() <= 0 {
			continue
		}
		if gl.Week.Int() > maxWeek {
			maxWeek = gl.Week.Int()
		}
		logs = append(logs, gl)
	}
	if maxWeek == 0 {
		return []models.PlayerTrend{}, nil
	}
	startWeek := max(1, maxWeek-weeks+1)

	type player struct {
		first   models.GameLog
		touches []float64
		ppr     []float64
	}
	players := map[string]*player{}
	var order []string

	for _, gl := range logs {
		if gl.Week.Int() < startWeek {
			continue
		}
		p, ok := players[gl.PlayerID]
		if !ok {
			p = &player{first: gl}
			players[gl.PlayerID] = p
			order = append(order, gl.PlayerID)
		}
		p.touches = append(p.touches, gl.Carries.Float()+gl.Targets.Float())
		p.ppr = append(p.ppr, gl.FantasyPointsPPR.Float())
	}

	out := make([]models.PlayerTrend, 0, len(players))
	for _, id := range order {
		p := players[id]
		out = append(out, models.PlayerTrend{
			PlayerID:      p.first.PlayerID,
			PlayerName:    p.first.PlayerName,
			Position:      p.first.Position,
			Team:          p.first.Team,
			GamesPlayed:   len(p.touches),
			AvgTouches:    round2(mean(p.touches)),
			MedianTouches: round2(median(p.touches)),
			AvgPPR:        round2(mean(p.ppr)),
			MedianPPR:     round2(median(p.ppr)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgPPR > out[j].AvgPPR })

	log.Debug().
		Str("position", position).
		Int("season", season).
		Int("weeks", weeks).
		Int("players", len(out)).
		Msg("Player trends computed")
	return out, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// decodeLog reads a stored log; numeric player ids are kept as strings
func decodeLog(data map[string]any, gl *models.GameLog) error {
	if id, ok := data["player_id"]; ok && id != nil {
		if _, isString := id.(string); !isString {
			data["player_id"] = fmt.Sprint(id)
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, gl)
}
