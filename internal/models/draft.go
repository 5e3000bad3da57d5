package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DraftPick is one selection within a simulated draft
type DraftPick struct {
	PickNumber FlexInt `json:"pickNumber"`
	Round      FlexInt `json:"round"`
	Position   string  `json:"position"`
	PlayerName string  `json:"playerName"`
	School     string  `json:"school"`
	PlayerRank FlexInt `json:"playerRank"`
	ActualTeam string  `json:"actualTeam"`
}

// DraftTrade is a pick trade proposed during a simulated draft
type DraftTrade struct {
	TeamOffering  string    `json:"teamOffering"`
	TeamReceiving string    `json:"teamReceiving"`
	ValueOffered  FlexFloat `json:"valueOffered"`
	TargetValue   FlexFloat `json:"targetValue"`
}

// DraftSession is one completed mock draft as stored in draftAnalytics
type DraftSession struct {
	ID        string       `json:"-"`
	Picks     []DraftPick  `json:"picks"`
	Trades    []DraftTrade `json:"trades"`
	Timestamp *Timestamp   `json:"timestamp,omitempty"`
}

// DecodeDraftSession converts a raw stored document into a DraftSession.
// Malformed bodies yield an empty session rather than an error.
func DecodeDraftSession(id string, data map[string]any) DraftSession {
	session := DraftSession{ID: id}
	raw, err := json.Marshal(data)
	if err != nil {
		return session
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		return DraftSession{ID: id}
	}
	session.ID = id
	return session
}

// FlexInt accepts a JSON number or numeric string; anything else decodes as 0
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		*f = FlexInt(int(v))
		return nil
	}
	*f = 0
	return nil
}

// Int returns the plain int value
func (f FlexInt) Int() int { return int(f) }

// String renders the value the way round keys are stored
func (f FlexInt) String() string { return strconv.Itoa(int(f)) }

// FlexFloat accepts a JSON number or numeric string; anything else decodes as 0
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// Float returns the plain float64 value
func (f FlexFloat) Float() float64 { return float64(f) }

// Timestamp decodes RFC3339 strings, epoch milliseconds and exported
// {_seconds,_nanoseconds} objects.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed.UTC()
		}
	case '{':
		var obj struct {
			Seconds     int64 `json:"_seconds"`
			Nanoseconds int64 `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(b, &obj); err == nil && obj.Seconds > 0 {
			t.Time = time.Unix(obj.Seconds, obj.Nanoseconds).UTC()
		}
	default:
		if ms, err := strconv.ParseFloat(string(b), 64); err == nil && ms > 0 {
			t.Time = time.UnixMilli(int64(ms)).UTC()
		}
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatTime(t.Time))
}

// TimeLayout is the fixed-width UTC layout used for every stored timestamp so
// that string comparison matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp value (string or time.Time)
func ParseTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC(), !tv.IsZero()
	case *time.Time:
		if tv == nil {
			return time.Time{}, false
		}
		return tv.UTC(), !tv.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}
