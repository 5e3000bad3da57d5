package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Position is a fantasy-relevant offensive position
type Position string

const (
	PositionQB Position = "QB"
	PositionRB Position = "RB"
	PositionWR Position = "WR"
	PositionTE Position = "TE"
)

// ParsePosition normalizes a position string ("wr", " WR ") to a Position
func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.ToUpper(strings.TrimSpace(s))); p {
	case PositionQB, PositionRB, PositionWR, PositionTE:
		return p, nil
	default:
		return "", fmt.Errorf("unknown position %q", s)
	}
}

// Metric names shared by record variants and weight tables
const (
	MetricTotalEPA                = "total_epa"
	MetricTargetShare             = "target_share"
	MetricRushShare               = "rush_share"
	MetricYards                   = "yards"
	MetricTouchdowns              = "touchdowns"
	MetricReceptions              = "receptions"
	MetricConversionRate          = "conversion_rate"
	MetricExplosiveRate           = "explosive_rate"
	MetricAvgSeparation           = "avg_separation"
	MetricCatchPercentage         = "catch_percentage"
	MetricAvgIntendedAirYards     = "avg_intended_air_yards"
	MetricProjectedPoints         = "projected_points"
	MetricAvgCPOE                 = "avg_cpoe"
	MetricYardsPerGame            = "yards_per_game"
	MetricTDsPerGame              = "tds_per_game"
	MetricINTsPerGame             = "ints_per_game"
	MetricThirdDownConversionRate = "third_down_conversion_rate"
	MetricPassOffenseTier         = "pass_offense_tier"
	MetricRunOffenseTier          = "run_offense_tier"
	MetricQBTier                  = "qb_tier"
	MetricEPATier                 = "epa_tier"
	MetricNYPassFreqTier          = "ny_pass_freq_tier"
)

// PlayerSeason is the identity and rank block shared by every position record
type PlayerSeason struct {
	PlayerID   string
	PlayerName string
	Team       string
	Season     int
	Position   Position

	MyRank    float64
	MyRankNum int
	Tier      int
}

// Record is one player-season of any position
type Record interface {
	Base() *PlayerSeason
	// Metric returns the named raw metric and whether the record carries it.
	Metric(name string) (float64, bool)
	// Document renders the stored document body.
	Document() map[string]any
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID returns the deterministic id {playerId}_{season}; records without
// a player id fall back to a slug of name and team.
func (p *PlayerSeason) DocumentID() string {
	key := strings.TrimSpace(p.PlayerID)
	if key == "" {
		key = strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(p.PlayerName+"-"+p.Team), "-"), "-")
	}
	return fmt.Sprintf("%s_%d", key, p.Season)
}

func (p *PlayerSeason) fields() map[string]any {
	return map[string]any{
		"player_id":   p.PlayerID,
		"player_name": p.PlayerName,
		"team":        p.Team,
		"season":      p.Season,
		"position":    string(p.Position),
		"myRank":      p.MyRank,
		"myRankNum":   p.MyRankNum,
		"tier":        p.Tier,
	}
}

// QBRecord carries quarterback efficiency metrics
type QBRecord struct {
	PlayerSeason
	Games                   *int
	PassAttempts            *int
	TotalEPA                *float64
	AvgCPOE                 *float64
	YardsPerGame            *float64
	TDsPerGame              *float64
	INTsPerGame             *float64
	ThirdDownConversionRate *float64
}

func (r *QBRecord) Base() *PlayerSeason { return &r.PlayerSeason }

func (r *QBRecord) Metric(name string) (float64, bool) {
	switch name {
	case MetricTotalEPA:
		return floatOf(r.TotalEPA)
	case MetricAvgCPOE:
		return floatOf(r.AvgCPOE)
	case MetricYardsPerGame:
		return floatOf(r.YardsPerGame)
	case MetricTDsPerGame:
		return floatOf(r.TDsPerGame)
	case MetricINTsPerGame:
		return floatOf(r.INTsPerGame)
	case MetricThirdDownConversionRate:
		return floatOf(r.ThirdDownConversionRate)
	}
	return 0, false
}

func (r *QBRecord) Document() map[string]any {
	doc := r.fields()
	putInt(doc, "games", r.Games)
	putInt(doc, "pass_attempts", r.PassAttempts)
	putFloat(doc, MetricTotalEPA, r.TotalEPA)
	putFloat(doc, MetricAvgCPOE, r.AvgCPOE)
	putFloat(doc, MetricYardsPerGame, r.YardsPerGame)
	putFloat(doc, MetricTDsPerGame, r.TDsPerGame)
	putFloat(doc, MetricINTsPerGame, r.INTsPerGame)
	putFloat(doc, MetricThirdDownConversionRate, r.ThirdDownConversionRate)
	doc["qb_tier"] = r.Tier
	return doc
}

// RBRecord carries running back usage and efficiency metrics
type RBRecord struct {
	PlayerSeason
	Games           *int
	TotalEPA        *float64
	RushShare       *float64
	TargetShare     *float64
	Yards           *float64
	Touchdowns      *int
	Receptions      *int
	ConversionRate  *float64
	ExplosiveRate   *float64
	RunOffenseTier  *int
	PassOffenseTier *int
}

func (r *RBRecord) Base() *PlayerSeason { return &r.PlayerSeason }

func (r *RBRecord) Metric(name string) (float64, bool) {
	switch name {
	case MetricTotalEPA:
		return floatOf(r.TotalEPA)
	case MetricRushShare:
		return floatOf(r.RushShare)
	case MetricTargetShare:
		return floatOf(r.TargetShare)
	case MetricYards:
		return floatOf(r.Yards)
	case MetricTouchdowns:
		return intOf(r.Touchdowns)
	case MetricReceptions:
		return intOf(r.Receptions)
	case MetricConversionRate:
		return floatOf(r.ConversionRate)
	case MetricExplosiveRate:
		return floatOf(r.ExplosiveRate)
	case MetricRunOffenseTier:
		return intOf(r.RunOffenseTier)
	case MetricPassOffenseTier:
		return intOf(r.PassOffenseTier)
	}
	return 0, false
}

func (r *RBRecord) Document() map[string]any {
	doc := r.fields()
	putInt(doc, "games", r.Games)
	putFloat(doc, MetricTotalEPA, r.TotalEPA)
	putFloat(doc, MetricRushShare, r.RushShare)
	putFloat(doc, MetricTargetShare, r.TargetShare)
	putFloat(doc, MetricYards, r.Yards)
	putInt(doc, MetricTouchdowns, r.Touchdowns)
	putInt(doc, MetricReceptions, r.Receptions)
	putFloat(doc, MetricConversionRate, r.ConversionRate)
	putFloat(doc, MetricExplosiveRate, r.ExplosiveRate)
	putInt(doc, MetricRunOffenseTier, r.RunOffenseTier)
	putInt(doc, MetricPassOffenseTier, r.PassOffenseTier)
	doc["rb_tier"] = r.Tier
	return doc
}

// ReceiverStats is shared by wide receivers and tight ends
type ReceiverStats struct {
	Games               *int
	TotalEPA            *float64
	TargetShare         *float64
	Yards               *float64
	Touchdowns          *int
	Receptions          *int
	ConversionRate      *float64
	ExplosiveRate       *float64
	AvgSeparation       *float64
	CatchPercentage     *float64
	AvgIntendedAirYards *float64
	ProjectedPoints     *float64

	// Team context tiers, 1 = best
	PassOffenseTier *int
	RunOffenseTier  *int
	QBTier          *int
	EPATier         *int
	NYTeam          string
	NYPassFreqTier  *int
}

func (s *ReceiverStats) metric(name string) (float64, bool) {
	switch name {
	case MetricTotalEPA:
		return floatOf(s.TotalEPA)
	case MetricTargetShare:
		return floatOf(s.TargetShare)
	case MetricYards:
		return floatOf(s.Yards)
	case MetricTouchdowns:
		return intOf(s.Touchdowns)
	case MetricReceptions:
		return intOf(s.Receptions)
	case MetricConversionRate:
		return floatOf(s.ConversionRate)
	case MetricExplosiveRate:
		return floatOf(s.ExplosiveRate)
	case MetricAvgSeparation:
		return floatOf(s.AvgSeparation)
	case MetricCatchPercentage:
		return floatOf(s.CatchPercentage)
	case MetricAvgIntendedAirYards:
		return floatOf(s.AvgIntendedAirYards)
	case MetricProjectedPoints:
		return floatOf(s.ProjectedPoints)
	case MetricPassOffenseTier:
		return intOf(s.PassOffenseTier)
	case MetricRunOffenseTier:
		return intOf(s.RunOffenseTier)
	case MetricQBTier:
		return intOf(s.QBTier)
	case MetricEPATier:
		return intOf(s.EPATier)
	case MetricNYPassFreqTier:
		return intOf(s.NYPassFreqTier)
	}
	return 0, false
}

func (s *ReceiverStats) fill(doc map[string]any) {
	putInt(doc, "games", s.Games)
	putFloat(doc, MetricTotalEPA, s.TotalEPA)
	putFloat(doc, MetricTargetShare, s.TargetShare)
	putFloat(doc, MetricYards, s.Yards)
	putInt(doc, MetricTouchdowns, s.Touchdowns)
	putInt(doc, MetricReceptions, s.Receptions)
	putFloat(doc, MetricConversionRate, s.ConversionRate)
	putFloat(doc, MetricExplosiveRate, s.ExplosiveRate)
	putFloat(doc, MetricAvgSeparation, s.AvgSeparation)
	putFloat(doc, MetricCatchPercentage, s.CatchPercentage)
	putFloat(doc, MetricAvgIntendedAirYards, s.AvgIntendedAirYards)
	putFloat(doc, MetricProjectedPoints, s.ProjectedPoints)
	putInt(doc, MetricPassOffenseTier, s.PassOffenseTier)
	putInt(doc, MetricRunOffenseTier, s.RunOffenseTier)
	putInt(doc, MetricQBTier, s.QBTier)
	putInt(doc, MetricEPATier, s.EPATier)
	putInt(doc, MetricNYPassFreqTier, s.NYPassFreqTier)
	if s.NYTeam != "" {
		doc["ny_team"] = s.NYTeam
	}
}

// WRRecord is a wide receiver season
type WRRecord struct {
	PlayerSeason
	ReceiverStats
}

func (r *WRRecord) Base() *PlayerSeason { return &r.PlayerSeason }

func (r *WRRecord) Metric(name string) (float64, bool) { return r.metric(name) }

func (r *WRRecord) Document() map[string]any {
	doc := r.fields()
	r.fill(doc)
	doc["wr_tier"] = r.Tier
	return doc
}

// TERecord is a tight end season
type TERecord struct {
	PlayerSeason
	ReceiverStats
}

func (r *TERecord) Base() *PlayerSeason { return &r.PlayerSeason }

func (r *TERecord) Metric(name string) (float64, bool) { return r.metric(name) }

func (r *TERecord) Document() map[string]any {
	doc := r.fields()
	r.fill(doc)
	doc["te_tier"] = r.Tier
	return doc
}

// NewRecord returns an empty record variant for the position
func NewRecord(p Position) Record {
	base := PlayerSeason{Position: p}
	switch p {
	case PositionQB:
		return &QBRecord{PlayerSeason: base}
	case PositionRB:
		return &RBRecord{PlayerSeason: base}
	case PositionTE:
		return &TERecord{PlayerSeason: base}
	default:
		return &WRRecord{PlayerSeason: base}
	}
}

func floatOf(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func intOf(v *int) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return float64(*v), true
}

func putFloat(doc map[string]any, key string, v *float64) {
	if v != nil {
		doc[key] = *v
	}
}

func putInt(doc map[string]any, key string, v *int) {
	if v != nil {
		doc[key] = *v
	}
}
