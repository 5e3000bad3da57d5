package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	failed []string
}

func (n *recordingNotifier) AggregationFailed(ctx context.Context, mode string, err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, mode+": "+err.Error())
	return nil
}

func (n *recordingNotifier) IndexRequested(ctx context.Context, req models.IndexRequest) error {
	return nil
}

func ts(s string) *models.Timestamp {
	t, _ := time.Parse(time.RFC3339, s)
	return &models.Timestamp{Time: t}
}

func dp(pick, round int, pos, name, team string, rank int) models.DraftPick {
	return models.DraftPick{
		PickNumber: models.FlexInt(pick),
		Round:      models.FlexInt(round),
		Position:   pos,
		PlayerName: name,
		School:     "State",
		PlayerRank: models.FlexInt(rank),
		ActualTeam: team,
	}
}

// sampleSessions is three mock drafts where NYJ and NE alternate between the
// same two players.
func sampleSessions() []models.DraftSession {
	return []models.DraftSession{
		{ID: "s1", Timestamp: ts("2025-03-02T10:00:00Z"), Picks: []models.DraftPick{
			dp(1, 1, "WR", "Ja Smith", "NYJ", 3),
			dp(2, 1, "QB", "Cam Ward", "NE", 1),
		}},
		{ID: "s2", Timestamp: ts("2025-03-20T10:00:00Z"), Picks: []models.DraftPick{
			dp(1, 1, "QB", "Cam Ward", "NYJ", 1),
			dp(2, 1, "WR", "Ja Smith", "NE", 3),
		}},
		{ID: "s3", Timestamp: ts("2025-04-05T12:00:00Z"), Picks: []models.DraftPick{
			dp(1, 1, "WR", "Ja Smith", "NYJ", 3),
			dp(2, 1, "QB", "Cam Ward", "NE", 1),
		}, Trades: []models.DraftTrade{
			{TeamOffering: "NYJ", TeamReceiving: "NE", ValueOffered: 100, TargetValue: 90},
		}},
	}
}

func seedSessions(t *testing.T, s store.Store, sessions []models.DraftSession) {
	t.Helper()
	for _, session := range sessions {
		data, err := toDocument(session)
		require.NoError(t, err)
		require.NoError(t, s.Set(context.Background(), models.CollectionDraftAnalytics, session.ID, data))
	}
}

func decode(t *testing.T, data map[string]any, dest any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func getDoc(t *testing.T, s store.Store, collection, id string) map[string]any {
	t.Helper()
	doc, err := s.Get(context.Background(), collection, id)
	require.NoError(t, err)
	return doc.Data
}

func newMemory() *store.Memory {
	return store.NewMemory(store.WithClock(func() time.Time { return fixedNow }))
}

func parsePercent(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	require.NoError(t, err)
	return v
}

func TestPositionDistribution_TeamSharesSumToHundred(t *testing.T) {
	sessions := sampleSessions()
	sessions = append(sessions, models.DraftSession{ID: "s4", Picks: []models.DraftPick{
		dp(1, 1, "OT", "Will Campbell", "NYJ", 8),
		dp(2, 1, "EDGE", "Abdul Carter", "NYJ", 2),
		dp(3, 1, "CB", "Travis Hunter", "NYJ", 4),
	}})

	result := positionDistribution(sessions)

	assert.Equal(t, 9, result.Overall.Total)
	for team, d := range result.ByTeam {
		sum := 0.0
		for _, share := range d.Positions {
			sum += parsePercent(t, share.Percentage)
		}
		assert.InDelta(t, 100.0, sum, 0.2, team)
	}
	assert.Equal(t, models.PositionShare{Count: 2, Percentage: "33.3%"}, result.ByTeam["NYJ"].Positions["WR"])
	assert.Equal(t, 6, result.ByTeam["NYJ"].Total)
}

func TestTeamNeeds_EarlyRoundsOnly(t *testing.T) {
	sessions := []models.DraftSession{{ID: "a", Picks: []models.DraftPick{
		dp(1, 1, "WR", "A", "NYJ", 1),
		dp(40, 2, "QB", "B", "NYJ", 1),
		dp(70, 3, "RB", "C", "NYJ", 1),
		dp(71, 3, "S", "D", "NYJ", 1),
		dp(72, 3, "OT", "E", "NYJ", 1),
		dp(73, 3, "CB", "F", "NYJ", 1),
		dp(100, 4, "TE", "G", "NYJ", 1),
		dp(101, 4, "TE", "H", "NYJ", 1),
		dp(0, 0, "K", "I", "NYJ", 1),
	}}, {ID: "b", Picks: []models.DraftPick{
		dp(1, 1, "WR", "A", "NYJ", 1),
	}}}

	result := teamNeeds(sessions, 2025)

	assert.Equal(t, 2025, result.Year)
	assert.Equal(t, []string{"WR", "QB", "CB", "OT", "RB"}, result.Needs["NYJ"])
	assert.NotContains(t, result.Needs["NYJ"], "TE")
	assert.NotContains(t, result.Needs["NYJ"], "K")
}

func TestPositionsByPick(t *testing.T) {
	sessions := sampleSessions()
	sessions = append(sessions, models.DraftSession{ID: "s4", Picks: []models.DraftPick{
		dp(1, 1, "WR", "Tet McMillan", "NYJ", 9),
		dp(33, 2, "TE", "Tyler Warren", "NYJ", 12),
	}})

	all := positionsByPick(sessions, 0)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].Pick)
	assert.Equal(t, "1", all[0].Round)
	assert.Equal(t, 4, all[0].TotalDrafts)
	assert.Equal(t, models.PickPositionShare{Position: "WR", Count: 3, Percentage: "75.0%"}, all[0].Positions[0])
	assert.Equal(t, 33, all[2].Pick)

	round2 := positionsByPick(sessions, 2)
	require.Len(t, round2, 1)
	assert.Equal(t, "2", round2[0].Round)

	assert.Empty(t, positionsByPick(sessions, 7))
}

func TestPlayersByPick_TopThree(t *testing.T) {
	var sessions []models.DraftSession
	names := []string{"A", "A", "A", "B", "B", "C", "D"}
	for i, name := range names {
		sessions = append(sessions, models.DraftSession{ID: strconv.Itoa(i), Picks: []models.DraftPick{
			dp(5, 1, "WR", name, "NYJ", 5),
		}})
	}

	rows := playersByPick(sessions, 0)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].TotalDrafts)
	require.Len(t, rows[0].Players, 3)
	assert.Equal(t, "A", rows[0].Players[0].Player)
	assert.Equal(t, "42.9%", rows[0].Players[0].Percentage)
	assert.Equal(t, "B", rows[0].Players[1].Player)
	assert.Equal(t, "C", rows[0].Players[2].Player)
	assert.Equal(t, 5, rows[0].Players[0].Rank)
}

func TestPlayerDeviations_MinimumSamples(t *testing.T) {
	sessions := sampleSessions()
	sessions = append(sessions,
		models.DraftSession{ID: "s4", Picks: []models.DraftPick{dp(30, 1, "RB", "Omarion Hampton", "DEN", 20)}},
		models.DraftSession{ID: "s5", Picks: []models.DraftPick{dp(31, 1, "RB", "Omarion Hampton", "DEN", 20)}},
	)

	result := playerDeviations(sessions)

	require.Len(t, result.Players, 2)
	assert.Equal(t, "Ja Smith", result.Players[0].Name)
	assert.Equal(t, -1.7, result.Players[0].AvgDeviation)
	assert.Equal(t, 3, result.Players[0].SampleSize)
	assert.Equal(t, "Cam Ward", result.Players[1].Name)
	assert.Equal(t, 0.7, result.Players[1].AvgDeviation)

	assert.Equal(t, 5, result.SampleSize)
	assert.Equal(t, map[string]int{"WR": 1, "QB": 1}, result.PositionSampleSizes)
	assert.NotContains(t, result.ByPosition, "RB")
}

func TestTeamPerformance(t *testing.T) {
	result := teamPerformance(sampleSessions())

	nyj := result.Metrics["NYJ"]
	require.NotNil(t, nyj)
	assert.Equal(t, 3, nyj.Drafts)
	assert.Equal(t, 3, nyj.TotalPicks)
	assert.InDelta(t, -4.0/3.0, nyj.AvgPickValue, 1e-9)
	assert.Equal(t, 1.0, nyj.AverageRound1Pick)
	assert.Equal(t, map[string]int{"1": 3}, nyj.PicksByRound)
	assert.InDelta(t, 1.0/3.0, nyj.TradeUpFrequency, 1e-9)
	assert.Zero(t, nyj.TradeDownFrequency)
	assert.Equal(t, models.PositionShare{Count: 2, Percentage: "66.7%"}, nyj.PositionDistribution["WR"])

	ne := result.Metrics["NE"]
	require.NotNil(t, ne)
	assert.InDelta(t, 1.0/3.0, ne.TradeDownFrequency, 1e-9)
	assert.Equal(t, 2.0, ne.AverageRound1Pick)
}

func TestPickCorrelations(t *testing.T) {
	sessions := sampleSessions()
	sessions = append(sessions,
		models.DraftSession{ID: "s4", Picks: []models.DraftPick{dp(1, 1, "WR", "Ja Smith", "NYJ", 3), dp(2, 1, "RB", "Ashton Jeanty", "NE", 2)}},
		models.DraftSession{ID: "s5", Picks: []models.DraftPick{dp(1, 1, "WR", "Ja Smith", "NYJ", 3), dp(2, 1, "RB", "Ashton Jeanty", "NE", 2)}},
		models.DraftSession{ID: "s6", Picks: []models.DraftPick{dp(1, 1, "WR", "Ja Smith", "NYJ", 3)}},
	)

	result := pickCorrelations(sessions)

	require.Len(t, result.PlayerCorrelations, 1)
	corr := result.PlayerCorrelations[0]
	assert.Equal(t, models.PlayerRef{Name: "Cam Ward", Position: "QB"}, corr.Player1)
	assert.Equal(t, models.PlayerRef{Name: "Ja Smith", Position: "WR"}, corr.Player2)
	assert.Equal(t, 3, corr.Count)

	require.Len(t, result.PositionCorrelations, 1)
	pc := result.PositionCorrelations[0]
	assert.Equal(t, "QB", pc.Position1)
	assert.Equal(t, "WR", pc.Position2)
	assert.Equal(t, 1, pc.Count)
	assert.Equal(t, []models.CorrelationExample{{Player1: "Cam Ward", Player2: "Ja Smith", Count: 3}}, pc.Examples)
}

func TestPickCorrelations_ExampleCap(t *testing.T) {
	var picks []models.DraftPick
	for i := 0; i < 4; i++ {
		picks = append(picks, dp(i+1, 1, "WR", "W"+strconv.Itoa(i), "NYJ", i+1))
	}
	var sessions []models.DraftSession
	for i := 0; i < 3; i++ {
		sessions = append(sessions, models.DraftSession{ID: strconv.Itoa(i), Picks: picks})
	}

	result := pickCorrelations(sessions)

	assert.Len(t, result.PlayerCorrelations, 6)
	require.Len(t, result.PositionCorrelations, 1)
	assert.Equal(t, 6, result.PositionCorrelations[0].Count)
	assert.Len(t, result.PositionCorrelations[0].Examples, 5)
}

func TestHistoricalTrends(t *testing.T) {
	sessions := sampleSessions()
	sessions = append(sessions, models.DraftSession{ID: "undated", Picks: []models.DraftPick{dp(1, 1, "K", "X", "NYJ", 1)}})

	result := historicalTrends(sessions)

	assert.Equal(t, []string{"2025-03", "2025-04"}, result.Months)

	march := result.Trends.PositionTrends["2025-03"]
	assert.Equal(t, models.MonthPositionShare{Count: 2, Percentage: 50}, march["WR"])
	assert.NotContains(t, march, "K")
	assert.Zero(t, result.Trends.TradeTrends.TradeFrequency["2025-03"])
	assert.Zero(t, result.Trends.TradeTrends.AverageValueDifferential["2025-03"])

	assert.Equal(t, 1.0, result.Trends.TradeTrends.TradeFrequency["2025-04"])
	assert.Equal(t, 10.0, result.Trends.TradeTrends.AverageValueDifferential["2025-04"])

	top := result.Trends.Top10Players["2025-03"]
	require.Len(t, top, 2)
	assert.Equal(t, models.TrendPlayer{Name: "Cam Ward", Position: "QB", Count: 2, Percentage: "100.0%"}, top[0])
}

func TestRun_WritesEveryDocument(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	seedSessions(t, m, sampleSessions())

	a := New(m, WithPageSize(2), WithClock(func() time.Time { return fixedNow }))
	result, err := a.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Sessions)
	assert.Equal(t, 22, result.Documents)
	assert.NotEmpty(t, result.RunID)

	md := models.DecodeMetadata(getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata))
	assert.False(t, md.InProgress)
	assert.Equal(t, 3, md.DocumentsProcessed)
	assert.True(t, md.LastUpdated.Equal(fixedNow))
	assert.Empty(t, md.Error)

	docs, err := m.List(ctx, models.CollectionPrecomputed)
	require.NoError(t, err)
	assert.Len(t, docs, 23)

	var needs models.TeamNeeds
	decode(t, getDoc(t, m, models.CollectionPrecomputed, models.DocTeamNeeds), &needs)
	assert.Equal(t, []string{"WR", "QB"}, needs.Needs["NYJ"])
	assert.Equal(t, 2025, needs.Year)

	round3 := getDoc(t, m, models.CollectionPrecomputed, models.RoundDocID(models.DocPositionsByPick, 3))
	assert.Empty(t, round3["data"])
	assert.Equal(t, "2025-06-01T09:00:00.000Z", round3["lastUpdated"])
}

func TestRun_NoSessions(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	result, err := New(m).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Sessions)

	md := models.DecodeMetadata(getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata))
	assert.False(t, md.InProgress)
	assert.Zero(t, md.DocumentsProcessed)
	assert.True(t, md.LastUpdated.Equal(fixedNow))

	docs, err := m.List(ctx, models.CollectionPrecomputed)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRun_FailureRecordedOnMetadata(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	seedSessions(t, m, sampleSessions())
	m.FailOn("CommitBatch", errors.New("backend unavailable"))

	n := &recordingNotifier{}
	_, err := New(m, WithNotifier(n)).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")

	data := getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata)
	md := models.DecodeMetadata(data)
	assert.False(t, md.InProgress)
	assert.Contains(t, md.Error, "backend unavailable")
	assert.True(t, md.LastUpdated.IsZero())

	require.Len(t, n.failed, 1)
	assert.True(t, strings.HasPrefix(n.failed[0], ModeFull+": "))
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	a := New(newMemory())

	release, err := a.locker.Acquire(ctx)
	require.NoError(t, err)

	_, err = a.Run(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = a.RunIncremental(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, release(ctx))
	_, err = a.Run(ctx)
	assert.NoError(t, err)
}

func TestRunIncremental(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	seedSessions(t, m, sampleSessions())

	require.NoError(t, m.Set(ctx, models.CollectionPrecomputed, models.DocPositionDistribution, map[string]any{
		"overall": map[string]any{
			"total":     10,
			"positions": map[string]any{"WR": map[string]any{"count": 10, "percentage": "100.0%"}},
		},
		"byTeam": map[string]any{"NYJ": map[string]any{"total": 1}},
	}))
	require.NoError(t, m.Set(ctx, models.CollectionPrecomputed, models.DocMetadata, map[string]any{
		"lastProcessedTimestamp": "2025-03-10T00:00:00.000Z",
	}))

	a := New(m)
	result, err := a.RunIncremental(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sessions)

	var dist models.PositionDistribution
	decode(t, getDoc(t, m, models.CollectionPrecomputed, models.DocPositionDistribution), &dist)
	assert.Equal(t, 14, dist.Overall.Total)
	assert.Equal(t, models.PositionShare{Count: 12, Percentage: "85.7%"}, dist.Overall.Positions["WR"])
	assert.Equal(t, 2, dist.Overall.Positions["QB"].Count)
	assert.Contains(t, dist.ByTeam, "NYJ")

	var round1 struct {
		Positions []models.PositionsAtPick `json:"positions"`
	}
	decode(t, getDoc(t, m, models.CollectionPositionTrends, "round_1"), &round1)
	require.Len(t, round1.Positions, 2)
	assert.Equal(t, 1, round1.Positions[0].Pick)
	assert.Equal(t, 2, round1.Positions[0].TotalDrafts)
	assert.Equal(t, "1", round1.Positions[0].Round)

	md := models.DecodeMetadata(getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata))
	assert.Equal(t, JobCompleted, md.JobStatus["positions"])
	assert.Equal(t, "2025-04-05T12:00:00.000Z", models.FormatTime(md.LastProcessedTimestamp))

	again, err := a.RunIncremental(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Sessions)

	md = models.DecodeMetadata(getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata))
	assert.Equal(t, "2025-04-05T12:00:00.000Z", models.FormatTime(md.LastProcessedTimestamp))
}

func TestRunIncremental_MixedTimestampEncodings(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	stamps := map[string]any{
		"millis":  1743854400000.0, // 2025-04-05T12:00:00Z
		"object":  map[string]any{"_seconds": 1743850800, "_nanoseconds": 0},
		"offset":  "2025-04-05T12:30:00+02:00", // 10:30Z
		"nomilli": "2025-03-10T00:00:00Z",      // equal to the watermark
		"old":     "2025-03-01T08:00:00.000Z",
		"none":    nil,
	}
	for id, stamp := range stamps {
		data, err := toDocument(models.DraftSession{ID: id, Picks: []models.DraftPick{
			dp(1, 1, "WR", "Ja Smith", "NYJ", 3),
		}})
		require.NoError(t, err)
		data["timestamp"] = stamp
		require.NoError(t, m.Set(ctx, models.CollectionDraftAnalytics, id, data))
	}
	require.NoError(t, m.Set(ctx, models.CollectionPrecomputed, models.DocMetadata, map[string]any{
		"lastProcessedTimestamp": "2025-03-10T00:00:00.000Z",
	}))

	a := New(m)
	full, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, full.Sessions)

	require.NoError(t, m.Merge(ctx, models.CollectionPrecomputed, models.DocMetadata, map[string]any{
		"lastProcessedTimestamp": "2025-03-10T00:00:00.000Z",
	}))
	result, err := a.RunIncremental(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sessions)

	md := models.DecodeMetadata(getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata))
	assert.Equal(t, "2025-04-05T12:00:00.000Z", models.FormatTime(md.LastProcessedTimestamp))

	var dist models.PositionDistribution
	decode(t, getDoc(t, m, models.CollectionPrecomputed, models.DocPositionDistribution), &dist)
	assert.Equal(t, 9, dist.Overall.Positions["WR"].Count)

	again, err := a.RunIncremental(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Sessions)
	decode(t, getDoc(t, m, models.CollectionPrecomputed, models.DocPositionDistribution), &dist)
	assert.Equal(t, 9, dist.Overall.Positions["WR"].Count)
}

func TestRunIncremental_FailureMarksJob(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	seedSessions(t, m, sampleSessions())
	m.FailOn("Query", errors.New("deadline exceeded"))

	n := &recordingNotifier{}
	_, err := New(m, WithNotifier(n)).RunIncremental(ctx)
	require.Error(t, err)

	md := models.DecodeMetadata(getDoc(t, m, models.CollectionPrecomputed, models.DocMetadata))
	assert.Equal(t, JobFailed, md.JobStatus["positions"])
	assert.Contains(t, md.JobStatus["error"], "deadline exceeded")
	assert.Len(t, n.failed, 1)
}

func TestSessionPager_Resume(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	var sessions []models.DraftSession
	for i := 1; i <= 5; i++ {
		sessions = append(sessions, models.DraftSession{ID: "s" + strconv.Itoa(i)})
	}
	seedSessions(t, m, sessions)

	p := NewSessionPager(m, 2)
	page, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, `["s2"]`, p.Cursor())

	resumed := NewSessionPager(m, 2)
	require.NoError(t, resumed.Resume(p.Cursor()))

	page, err = resumed.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s3", page[0].ID)

	page, err = resumed.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, resumed.Done())

	page, err = resumed.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 3, resumed.Read())

	assert.Error(t, resumed.Resume(`["a","b"]`))
}
