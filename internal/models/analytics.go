package models

import (
	"fmt"
	"time"
)

// Collections and well-known document ids
const (
	CollectionDraftAnalytics = "draftAnalytics"
	CollectionPrecomputed    = "precomputedAnalytics"
	CollectionPositionTrends = "position_trends"
	CollectionIndexRequests  = "admin_index_requests"
	CollectionGameLogs       = "playerGameLogs"

	DocMetadata = "metadata"
)

// Aggregation result document ids
const (
	DocPositionDistribution = "positionDistribution"
	DocTeamNeeds            = "teamNeeds"
	DocPositionsByPick      = "positionsByPick"
	DocPlayersByPick        = "playersByPick"
	DocPlayerDeviations     = "playerDeviations"
	DocTeamPerformance      = "teamPerformance"
	DocPickCorrelations     = "pickCorrelations"
	DocHistoricalTrends     = "historicalTrends"
)

// MaxRound is the last round with its own by-pick documents
const MaxRound = 7

// RoundDocID returns the per-round document id, e.g. positionsByPickRound3
func RoundDocID(base string, round int) string {
	return fmt.Sprintf("%sRound%d", base, round)
}

// PositionShare is a count with its formatted share of the total
type PositionShare struct {
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// Distribution is a position breakdown over a number of picks
type Distribution struct {
	Total     int                      `json:"total"`
	Positions map[string]PositionShare `json:"positions"`
}

// PositionDistribution is stored under positionDistribution
type PositionDistribution struct {
	Overall Distribution            `json:"overall"`
	ByTeam  map[string]Distribution `json:"byTeam"`
}

// TeamNeeds is stored under teamNeeds
type TeamNeeds struct {
	Needs map[string][]string `json:"needs"`
	Year  int                 `json:"year"`
}

type PickPositionShare struct {
	Position   string `json:"position"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// PositionsAtPick is one row of positionsByPick
type PositionsAtPick struct {
	Pick        int                 `json:"pick"`
	Round       string              `json:"round"`
	Positions   []PickPositionShare `json:"positions"`
	TotalDrafts int                 `json:"totalDrafts"`
}

type PickPlayerShare struct {
	Player     string `json:"player"`
	Position   string `json:"position"`
	School     string `json:"school"`
	Rank       int    `json:"rank"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// PlayersAtPick is one row of playersByPick
type PlayersAtPick struct {
	Pick        int               `json:"pick"`
	Players     []PickPlayerShare `json:"players"`
	TotalDrafts int               `json:"totalDrafts"`
}

// PickTable wraps by-pick rows the way they are stored ({"data": [...]})
type PickTable[T any] struct {
	Data []T `json:"data"`
}

type PlayerDeviation struct {
	Name         string  `json:"name"`
	Position     string  `json:"position"`
	AvgDeviation float64 `json:"avgDeviation"`
	SampleSize   int     `json:"sampleSize"`
	School       string  `json:"school"`
}

// PlayerDeviations is stored under playerDeviations
type PlayerDeviations struct {
	Players             []PlayerDeviation            `json:"players"`
	ByPosition          map[string][]PlayerDeviation `json:"byPosition"`
	SampleSize          int                          `json:"sampleSize"`
	PositionSampleSizes map[string]int               `json:"positionSampleSizes"`
}

type TeamMetrics struct {
	Drafts               int                      `json:"drafts"`
	AvgPickValue         float64                  `json:"avgPickValue"`
	TotalPicks           int                      `json:"totalPicks"`
	PicksByRound         map[string]int           `json:"picksByRound"`
	PositionDistribution map[string]PositionShare `json:"positionDistribution"`
	AverageRound1Pick    float64                  `json:"averageRound1Pick"`
	TradeUpFrequency     float64                  `json:"tradeUpFrequency"`
	TradeDownFrequency   float64                  `json:"tradeDownFrequency"`
}

// TeamPerformance is stored under teamPerformance
type TeamPerformance struct {
	Metrics map[string]*TeamMetrics `json:"metrics"`
}

type PlayerRef struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

type PlayerCorrelation struct {
	Player1 PlayerRef `json:"player1"`
	Player2 PlayerRef `json:"player2"`
	Count   int       `json:"count"`
}

type CorrelationExample struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Count   int    `json:"count"`
}

type PositionCorrelation struct {
	Position1 string               `json:"position1"`
	Position2 string               `json:"position2"`
	Count     int                  `json:"count"`
	Examples  []CorrelationExample `json:"examples"`
}

// PickCorrelations is stored under pickCorrelations
type PickCorrelations struct {
	PlayerCorrelations   []PlayerCorrelation   `json:"playerCorrelations"`
	PositionCorrelations []PositionCorrelation `json:"positionCorrelations"`
}

type MonthPositionShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type TrendPlayer struct {
	Name       string `json:"name"`
	Position   string `json:"position"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

type TradeTrends struct {
	TradeFrequency           map[string]float64 `json:"tradeFrequency"`
	AverageValueDifferential map[string]float64 `json:"averageValueDifferential"`
}

type Trends struct {
	PositionTrends map[string]map[string]MonthPositionShare `json:"positionTrends"`
	TradeTrends    TradeTrends                              `json:"tradeTrends"`
	Top10Players   map[string][]TrendPlayer                 `json:"top10Players"`
}

// HistoricalTrends is stored under historicalTrends
type HistoricalTrends struct {
	Trends Trends   `json:"trends"`
	Months []string `json:"months"`
}

// AggregationMetadata is the run-tracking singleton precomputedAnalytics/metadata
type AggregationMetadata struct {
	LastUpdated            time.Time
	InProgress             bool
	DocumentsProcessed     int
	Error                  string
	StartedAt              time.Time
	LastProcessedTimestamp time.Time
	JobStatus              map[string]string
}

// DecodeMetadata reads the metadata document body; missing fields stay zero
func DecodeMetadata(data map[string]any) AggregationMetadata {
	var md AggregationMetadata
	if data == nil {
		return md
	}
	md.LastUpdated, _ = ParseTime(data["lastUpdated"])
	md.StartedAt, _ = ParseTime(data["startedAt"])
	md.LastProcessedTimestamp, _ = ParseTime(data["lastProcessedTimestamp"])
	md.InProgress, _ = data["inProgress"].(bool)
	switch n := data["documentsProcessed"].(type) {
	case float64:
		md.DocumentsProcessed = int(n)
	case int:
		md.DocumentsProcessed = n
	case int64:
		md.DocumentsProcessed = int(n)
	}
	md.Error, _ = data["error"].(string)
	if js, ok := data["jobStatus"].(map[string]any); ok {
		md.JobStatus = make(map[string]string, len(js))
		for k, v := range js {
			if s, ok := v.(string); ok {
				md.JobStatus[k] = s
			}
		}
	}
	return md
}
