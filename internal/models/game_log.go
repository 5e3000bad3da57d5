package models

// GameLog is one player's box-score line for a single week
type GameLog struct {
	PlayerID         string    `json:"player_id"`
	PlayerName       string    `json:"player_name"`
	Position         string    `json:"position"`
	Team             string    `json:"team"`
	Season           FlexInt   `json:"season"`
	Week             FlexInt   `json:"week"`
	Carries          FlexFloat `json:"carries"`
	Targets          FlexFloat `json:"targets"`
	FantasyPointsPPR FlexFloat `json:"fantasy_points_ppr"`
}

// PlayerTrend summarizes a player's usage over a rolling window of weeks
type PlayerTrend struct {
	PlayerID      string  `json:"playerId"`
	PlayerName    string  `json:"playerName"`
	Position      string  `json:"position"`
	Team          string  `json:"team"`
	GamesPlayed   int     `json:"gamesPlayed"`
	AvgTouches    float64 `json:"avgTouches"`
	MedianTouches float64 `json:"medianTouches"`
	AvgPPR        float64 `json:"avgPPR"`
	MedianPPR     float64 `json:"medianPPR"`
}
