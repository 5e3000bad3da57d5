package query

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingNotifier struct {
	requests []models.IndexRequest
}

func (n *capturingNotifier) AggregationFailed(ctx context.Context, mode string, err error) error {
	return nil
}

func (n *capturingNotifier) IndexRequested(ctx context.Context, req models.IndexRequest) error {
	n.requests = append(n.requests, req)
	return nil
}

type mapCache struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) GetJSON(ctx context.Context, key string, dest any) error {
	raw, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.ttls[key] = ttl
	return nil
}

var testConfig = Config{
	Collections:  []string{"wrStats", "historicalMatchups"},
	DefaultLimit: 25,
	MaxLimit:     100,
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	rows := []struct {
		id     string
		season int
		team   string
	}{
		{"a", 2024, "NYJ"}, {"b", 2024, "NYJ"}, {"c", 2024, "BUF"}, {"d", 2023, "NYJ"},
	}
	for _, r := range rows {
		require.NoError(t, s.Set(ctx, "wrStats", r.id, map[string]any{
			"player_name": "Player " + r.id,
			"season":      r.season,
			"team":        r.team,
		}))
	}
}

func TestParseQueryValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"2024", int64(2024)},
		{"-3", int64(-3)},
		{"0.25", 0.25},
		{"NYJ", "NYJ"},
		{"", ""},
		{"1.2.3", "1.2.3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseQueryValue(tt.in), tt.in)
	}
}

func TestQuery_CursorStrictlyAdvancesOverDuplicates(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)
	svc := NewService(m, testConfig)

	req := Request{
		Collection:     "wrStats",
		Filters:        map[string]any{"season": "2024"},
		OrderDirection: "asc",
		Limit:          1,
	}

	var ids []string
	for i := 0; i < 3; i++ {
		resp, err := svc.Query(ctx, req)
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, int64(3), resp.TotalRecords)
		require.NotNil(t, resp.NextCursor)

		ids = append(ids, resp.Data[0]["id"].(string))
		req.Cursor = resp.NextCursor
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	resp, err := svc.Query(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Nil(t, resp.NextCursor)
	assert.Equal(t, "No documents found for the current page/criteria.", resp.Message)
}

func TestQuery_DefaultsDescendingBySeason(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)
	svc := NewService(m, testConfig)

	resp, err := svc.Query(ctx, Request{Collection: "wrStats", Filters: map[string]any{"team": "NYJ"}})
	require.NoError(t, err)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "b", resp.Data[0]["id"])
	assert.Equal(t, "a", resp.Data[1]["id"])
	assert.Equal(t, "d", resp.Data[2]["id"])
	assert.Nil(t, resp.NextCursor, "a short page has no next cursor")
	assert.Equal(t, "Successfully fetched 3 records.", resp.Message)
}

func TestQuery_RejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory(), testConfig)

	_, err := svc.Query(ctx, Request{Collection: "users"})
	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, CodeNotFound, qErr.Code)

	_, err = svc.Query(ctx, Request{Collection: "wrStats", Cursor: []any{2024}})
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, CodeInvalidArgument, qErr.Code)

	_, err = svc.Query(ctx, Request{Collection: "wrStats", Limit: -1})
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, CodeInvalidArgument, qErr.Code)

	_, err = svc.Query(ctx, Request{Collection: "wrStats", Filters: map[string]any{"bad field": "x"}})
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, CodeInvalidArgument, qErr.Code)
}

func TestQuery_LimitCapped(t *testing.T) {
	svc := NewService(store.NewMemory(), testConfig)

	q, _, err := svc.build(Request{Collection: "wrStats", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)

	q, _, err = svc.build(Request{Collection: "wrStats"})
	require.NoError(t, err)
	assert.Equal(t, 25, q.Limit)
	assert.Equal(t, store.Desc, q.Direction)
	assert.Equal(t, DefaultOrderBy, q.OrderBy)

	q, _, err = svc.build(Request{Collection: "historicalMatchups", OrderBy: "season"})
	require.NoError(t, err)
	assert.Equal(t, "gameID", q.OrderBy)
}

func TestQuery_MissingIndexIsLogged(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(store.WithRequiredIndexes("https://draftlab.example.com"))
	seed(t, m)
	n := &capturingNotifier{}
	svc := NewService(m, testConfig, WithNotifier(n))

	req := Request{Collection: "wrStats", Filters: map[string]any{"team": "NYJ"}, Screen: "WRModelScreen"}
	_, err := svc.Query(ctx, req)

	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, CodeInternal, qErr.Code)
	var idxErr *store.IndexRequiredError
	assert.True(t, errors.As(err, &idxErr))

	requests, err := svc.IndexRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	r := requests[0]
	assert.Equal(t, "https://draftlab.example.com/admin/indexes?collection=wrStats&fields=team%2Cseason", r.IndexURL)
	assert.Equal(t, "team == NYJ", r.QueryDetails)
	assert.Equal(t, "WRModelScreen", r.Screen)
	assert.Equal(t, models.IndexRequestPending, r.Status)
	assert.Contains(t, r.ErrorDetails, "requires a composite index")

	require.Len(t, n.requests, 1)
	assert.Equal(t, r.ID, n.requests[0].ID)

	resolved, err := svc.CreateIndex(ctx, "wrStats", []string{"team", "season"})
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	requests, err = svc.IndexRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexRequestCreated, requests[0].Status)

	resp, err := svc.Query(ctx, req)
	require.NoError(t, err)
	assert.Len(t, resp.Data, 3)
}

func TestQuery_IndexLogFailureStillReturnsQueryError(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(store.WithRequiredIndexes("https://draftlab.example.com"))
	seed(t, m)
	m.FailOn("Add", errors.New("quota exceeded"))
	n := &capturingNotifier{}
	svc := NewService(m, testConfig, WithNotifier(n))

	_, err := svc.Query(ctx, Request{Collection: "wrStats", Filters: map[string]any{"team": "NYJ"}})
	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, CodeInternal, qErr.Code)
	assert.Empty(t, n.requests)
}

func TestQuery_PageCache(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)
	pages := newMapCache()
	cfg := testConfig
	cfg.CacheTTL = time.Minute
	svc := NewService(m, cfg, WithPageCache(pages))

	req := Request{Collection: "wrStats", Filters: map[string]any{"team": "NYJ"}}
	first, err := svc.Query(ctx, req)
	require.NoError(t, err)
	require.Len(t, pages.entries, 1)
	for _, ttl := range pages.ttls {
		assert.Equal(t, time.Minute, ttl)
	}

	for key := range pages.entries {
		assert.True(t, strings.HasPrefix(key, PagePrefix("wrStats")), key)
	}

	require.NoError(t, m.Set(ctx, "wrStats", "e", map[string]any{"season": 2025, "team": "NYJ"}))

	second, err := svc.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.TotalRecords, second.TotalRecords)
	assert.Len(t, second.Data, 3)
}

func TestMatchesIndex(t *testing.T) {
	u := "https://draftlab.example.com/admin/indexes?collection=wrStats&fields=team%2Cseason"
	assert.True(t, matchesIndex(u, "wrStats", []string{"team", "season"}))
	assert.False(t, matchesIndex(u, "wrStats", []string{"season", "team"}))
	assert.False(t, matchesIndex("Could not parse URL from error.", "wrStats", []string{"team"}))
}
