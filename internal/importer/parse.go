package importer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"draftlab/analytics/internal/models"

	"github.com/rs/zerolog/log"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindInt
	kindFloat
)

type field struct {
	key     string
	kind    fieldKind
	aliases []string
}

// fields maps source columns onto record fields. Lookup is case-insensitive;
// the canonical key is always accepted.
var fields = []field{
	{"player_id", kindText, []string{"gsis_id", "playerid", "id", "receiver_player_id", "rusher_player_id", "passer_player_id"}},
	{"player_name", kindText, []string{"player", "name", "playername", "player_display_name", "receiver_player_name", "rusher_player_name", "passer_player_name"}},
	{"team", kindText, []string{"recent_team", "posteam", "team_abbr", "tm"}},
	{"season", kindInt, []string{"year"}},
	{"games", kindInt, []string{"g", "games_played", "gp"}},
	{"pass_attempts", kindInt, []string{"attempts", "att"}},
	{models.MetricTotalEPA, kindFloat, []string{"epa", "totalepa"}},
	{models.MetricTargetShare, kindFloat, []string{"tgt_share", "targetshare"}},
	{models.MetricRushShare, kindFloat, []string{"rushshare", "carry_share"}},
	{models.MetricYards, kindFloat, []string{"receiving_yards", "rushing_yards", "yds"}},
	{models.MetricTouchdowns, kindInt, []string{"tds", "td"}},
	{models.MetricReceptions, kindInt, []string{"rec"}},
	{models.MetricConversionRate, kindFloat, []string{"conv_rate"}},
	{models.MetricExplosiveRate, kindFloat, []string{"explosive_play_rate"}},
	{models.MetricAvgSeparation, kindFloat, []string{"separation"}},
	{models.MetricCatchPercentage, kindFloat, []string{"catch_pct", "catch_rate"}},
	{models.MetricAvgIntendedAirYards, kindFloat, []string{"aiy", "intended_air_yards"}},
	{models.MetricProjectedPoints, kindFloat, []string{"proj_pts", "projection", "fantasy_points"}},
	{models.MetricAvgCPOE, kindFloat, []string{"cpoe"}},
	{models.MetricYardsPerGame, kindFloat, []string{"ypg"}},
	{models.MetricTDsPerGame, kindFloat, []string{"td_per_game"}},
	{models.MetricINTsPerGame, kindFloat, []string{"int_per_game"}},
	{models.MetricThirdDownConversionRate, kindFloat, []string{"third_down_rate", "3rd_down_conv"}},
	{models.MetricPassOffenseTier, kindInt, nil},
	{models.MetricRunOffenseTier, kindInt, nil},
	{models.MetricQBTier, kindInt, nil},
	{models.MetricEPATier, kindInt, nil},
	{models.MetricNYPassFreqTier, kindInt, nil},
	{"ny_team", kindText, nil},
}

var fieldByName = func() map[string]field {
	m := make(map[string]field)
	for _, f := range fields {
		m[f.key] = f
		for _, a := range f.aliases {
			m[a] = f
		}
	}
	return m
}()

func lookupField(header string) (field, bool) {
	h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	f, ok := fieldByName[h]
	return f, ok
}

// ParseCSV reads one position's records from a CSV file with a header row.
// Rows without a player name are skipped.
func ParseCSV(r io.Reader, position models.Position) ([]models.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv source is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make([]*field, len(header))
	for i, h := range header {
		if f, ok := lookupField(h); ok {
			columns[i] = &f
		}
	}

	var records []models.Record
	skipped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		values := make(map[string]any, len(row))
		for i, cell := range row {
			if i >= len(columns) || columns[i] == nil {
				continue
			}
			// first matching column wins when aliases collide
			if _, seen := values[columns[i].key]; seen {
				continue
			}
			values[columns[i].key] = convert(*columns[i], cell, line)
		}

		rec, ok := buildRecord(position, values)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	logParsed("csv", position, len(records), skipped)
	return records, nil
}

// ParseJSON reads one position's records from a JSON array of objects, or an
// object holding that array under "data" or "players".
func ParseJSON(r io.Reader, position models.Position) ([]models.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode json source: %w", err)
	}

	var rows []any
	switch v := raw.(type) {
	case []any:
		rows = v
	case map[string]any:
		for _, key := range []string{"data", "players"} {
			if list, ok := v[key].([]any); ok {
				rows = list
				break
			}
		}
		if rows == nil {
			return nil, fmt.Errorf("json source object has no data or players array")
		}
	default:
		return nil, fmt.Errorf("json source must be an array of objects")
	}

	var records []models.Record
	skipped := 0
	for i, item := range rows {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}

		values := make(map[string]any, len(obj))
		for k, v := range obj {
			f, ok := lookupField(k)
			if !ok {
				continue
			}
			if _, seen := values[f.key]; seen && !strings.EqualFold(k, f.key) {
				continue
			}
			values[f.key] = convert(f, jsonText(v), i+1)
		}

		rec, ok := buildRecord(position, values)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	logParsed("json", position, len(records), skipped)
	return records, nil
}

func logParsed(format string, position models.Position, parsed, skipped int) {
	log.Info().
		Str("format", format).
		Str("position", string(position)).
		Int("records", parsed).
		Int("skipped", skipped).
		Msg("Source parsed")
}

func jsonText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// convert turns a raw cell into a string, int or float64. Blank and NA cells
// and unparseable numbers become nil.
func convert(f field, cell string, line int) any {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "NA") || strings.EqualFold(cell, "N/A") {
		return nil
	}
	if f.kind == kindText {
		return cell
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(cell, "%"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		log.Debug().
			Str("field", f.key).
			Str("value", cell).
			Int("line", line).
			Msg("Ignoring unparseable number")
		return nil
	}
	if f.kind == kindInt {
		return int(math.Round(v))
	}
	return v
}

func buildRecord(position models.Position, values map[string]any) (models.Record, bool) {
	name, _ := values["player_name"].(string)
	if name == "" {
		return nil, false
	}

	rec := models.NewRecord(position)
	base := rec.Base()
	base.PlayerName = name
	base.PlayerID, _ = values["player_id"].(string)
	base.Team, _ = values["team"].(string)
	base.Season, _ = values["season"].(int)

	switch r := rec.(type) {
	case *models.QBRecord:
		r.Games = intValue(values, "games")
		r.PassAttempts = intValue(values, "pass_attempts")
		r.TotalEPA = floatValue(values, models.MetricTotalEPA)
		r.AvgCPOE = floatValue(values, models.MetricAvgCPOE)
		r.YardsPerGame = floatValue(values, models.MetricYardsPerGame)
		r.TDsPerGame = floatValue(values, models.MetricTDsPerGame)
		r.INTsPerGame = floatValue(values, models.MetricINTsPerGame)
		r.ThirdDownConversionRate = floatValue(values, models.MetricThirdDownConversionRate)
	case *models.RBRecord:
		r.Games = intValue(values, "games")
		r.TotalEPA = floatValue(values, models.MetricTotalEPA)
		r.RushShare = floatValue(values, models.MetricRushShare)
		r.TargetShare = floatValue(values, models.MetricTargetShare)
		r.Yards = floatValue(values, models.MetricYards)
		r.Touchdowns = intValue(values, models.MetricTouchdowns)
		r.Receptions = intValue(values, models.MetricReceptions)
		r.ConversionRate = floatValue(values, models.MetricConversionRate)
		r.ExplosiveRate = floatValue(values, models.MetricExplosiveRate)
		r.RunOffenseTier = intValue(values, models.MetricRunOffenseTier)
		r.PassOffenseTier = intValue(values, models.MetricPassOffenseTier)
	case *models.WRRecord:
		fillReceiver(&r.ReceiverStats, values)
	case *models.TERecord:
		fillReceiver(&r.ReceiverStats, values)
	}
	return rec, true
}

func fillReceiver(s *models.ReceiverStats, values map[string]any) {
	s.Games = intValue(values, "games")
	s.TotalEPA = floatValue(values, models.MetricTotalEPA)
	s.TargetShare = floatValue(values, models.MetricTargetShare)
	s.Yards = floatValue(values, models.MetricYards)
	s.Touchdowns = intValue(values, models.MetricTouchdowns)
	s.Receptions = intValue(values, models.MetricReceptions)
	s.ConversionRate = floatValue(values, models.MetricConversionRate)
	s.ExplosiveRate = floatValue(values, models.MetricExplosiveRate)
	s.AvgSeparation = floatValue(values, models.MetricAvgSeparation)
	s.CatchPercentage = floatValue(values, models.MetricCatchPercentage)
	s.AvgIntendedAirYards = floatValue(values, models.MetricAvgIntendedAirYards)
	s.ProjectedPoints = floatValue(values, models.MetricProjectedPoints)
	s.PassOffenseTier = intValue(values, models.MetricPassOffenseTier)
	s.RunOffenseTier = intValue(values, models.MetricRunOffenseTier)
	s.QBTier = intValue(values, models.MetricQBTier)
	s.EPATier = intValue(values, models.MetricEPATier)
	s.NYPassFreqTier = intValue(values, models.MetricNYPassFreqTier)
	s.NYTeam, _ = values["ny_team"].(string)
}

func intValue(values map[string]any, key string) *int {
	if v, ok := values[key].(int); ok {
		return &v
	}
	return nil
}

func floatValue(values map[string]any, key string) *float64 {
	if v, ok := values[key].(float64); ok {
		return &v
	}
	return nil
}
