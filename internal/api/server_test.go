package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/query"
	"draftlab/analytics/internal/store"
	"draftlab/analytics/internal/trends"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeRunner struct {
	modes []string
	err   error
}

func (r *fakeRunner) Run(ctx context.Context) (*aggregator.Result, error) {
	return r.result(aggregator.ModeFull)
}

func (r *fakeRunner) RunIncremental(ctx context.Context) (*aggregator.Result, error) {
	return r.result(aggregator.ModeIncremental)
}

func (r *fakeRunner) result(mode string) (*aggregator.Result, error) {
	r.modes = append(r.modes, mode)
	if r.err != nil {
		return nil, r.err
	}
	return &aggregator.Result{RunID: "run-1", Mode: mode, Sessions: 4, Documents: 22}, nil
}

type failingHealth struct{}

func (failingHealth) Health(ctx context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T) (*Server, *store.Memory, *fakeRunner) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Set(ctx, "wrStats", "a", map[string]any{"season": 2024, "team": "NYJ"}))
	require.NoError(t, m.Set(ctx, "wrStats", "b", map[string]any{"season": 2023, "team": "NYJ"}))
	require.NoError(t, m.Set(ctx, models.CollectionPrecomputed, models.DocMetadata, map[string]any{
		"lastUpdated": time.Now().Add(-time.Hour),
	}))
	require.NoError(t, m.Set(ctx, models.CollectionPrecomputed, models.DocTeamNeeds, map[string]any{
		"needs": map[string]any{"NYJ": []string{"WR"}, "BUF": []string{"CB"}},
		"year":  2025,
	}))

	runner := &fakeRunner{}
	srv := &Server{
		Query: query.NewService(m, query.Config{
			Collections:  []string{"wrStats"},
			DefaultLimit: 25,
			MaxLimit:     100,
		}),
		Analytics:  cache.NewAnalyticsCache(m),
		Trends:     trends.NewService(m),
		Aggregator: runner,
		JWTSecret:  testSecret,
	}
	return srv, m, runner
}

func token(t *testing.T, role string, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub":  "ops@draftlab.local",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func adminToken(t *testing.T) string {
	return token(t, AdminRole, jwt.SigningMethodHS256, []byte(testSecret))
}

func do(t *testing.T, app *fiber.App, method, path, body, bearer string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	status, body := do(t, srv.App(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	srv.Health = failingHealth{}
	status, body = do(t, srv.App(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "connection refused", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	status, _ := do(t, srv.App(), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestQueryRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)
	app := srv.App()

	status, body := do(t, app, http.MethodPost, "/api/query/wrStats", `{"filters":{"team":"NYJ"}}`, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["totalRecords"])
	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "a", data[0].(map[string]any)["id"])

	status, body = do(t, app, http.MethodPost, "/api/query/users", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, query.CodeNotFound, body["code"])
	assert.NotEmpty(t, body["error"])

	status, body = do(t, app, http.MethodPost, "/api/query/wrStats", `{"limit":-5}`, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, query.CodeInvalidArgument, body["code"])

	status, _ = do(t, app, http.MethodPost, "/api/query/wrStats", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAnalyticsRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)
	app := srv.App()

	status, body := do(t, app, http.MethodGet, "/api/analytics?dataType=teamNeeds&team=NYJ", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, cache.StatusValid, body["cacheStatus"])
	data := body["data"].(map[string]any)
	needs := data["needs"].(map[string]any)
	assert.Contains(t, needs, "NYJ")
	assert.NotContains(t, needs, "BUF")

	status, body = do(t, app, http.MethodPost, "/api/analytics", `{"dataType":"teamNeeds"}`, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["fromCache"])

	status, body = do(t, app, http.MethodGet, "/api/analytics?dataType=nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Data type 'nope' not found", body["error"])

	status, body = do(t, app, http.MethodGet, "/api/analytics", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.NotNil(t, body["metadata"])
}

func TestTrendsRoute(t *testing.T) {
	srv, m, _ := newTestServer(t)
	require.NoError(t, m.Set(context.Background(), models.CollectionGameLogs, "p1_w01", map[string]any{
		"player_id": "p1", "position": "RB", "season": 2024, "week": 1, "carries": 10, "fantasy_points_ppr": 12.5,
	}))
	app := srv.App()

	status, body := do(t, app, http.MethodGet, "/api/trends?position=rb&weeks=2&season=2024", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = do(t, app, http.MethodGet, "/api/trends?position=rb", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, query.CodeInvalidArgument, body["code"])
}

func TestAdminRequiresToken(t *testing.T) {
	srv, _, runner := newTestServer(t)
	app := srv.App()

	status, body := do(t, app, http.MethodPost, "/admin/aggregate", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing token", body["error"])

	status, _ = do(t, app, http.MethodPost, "/admin/aggregate", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	wrongKey := token(t, AdminRole, jwt.SigningMethodHS256, []byte("other"))
	status, _ = do(t, app, http.MethodPost, "/admin/aggregate", "", wrongKey)
	assert.Equal(t, http.StatusUnauthorized, status)

	viewer := token(t, "viewer", jwt.SigningMethodHS256, []byte(testSecret))
	status, _ = do(t, app, http.MethodPost, "/admin/aggregate", "", viewer)
	assert.Equal(t, http.StatusForbidden, status)

	assert.Empty(t, runner.modes)
}

func TestAdminAggregate(t *testing.T) {
	srv, _, runner := newTestServer(t)
	app := srv.App()
	tok := adminToken(t)

	status, body := do(t, app, http.MethodPost, "/admin/aggregate", "", tok)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "run-1", body["runId"])
	assert.Equal(t, float64(22), body["documents"])

	status, body = do(t, app, http.MethodPost, "/admin/aggregate?mode=incremental", "", tok)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, aggregator.ModeIncremental, body["mode"])
	assert.Equal(t, []string{aggregator.ModeFull, aggregator.ModeIncremental}, runner.modes)

	runner.err = aggregator.ErrRunInProgress
	status, _ = do(t, app, http.MethodPost, "/admin/aggregate", "", tok)
	assert.Equal(t, http.StatusConflict, status)

	runner.err = errors.New("store unavailable")
	status, body = do(t, app, http.MethodPost, "/admin/aggregate", "", tok)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "store unavailable", body["error"])
}

func TestAdminIndexes(t *testing.T) {
	srv, m, _ := newTestServer(t)
	app := srv.App()
	tok := adminToken(t)

	_, err := m.Add(context.Background(), models.CollectionIndexRequests, map[string]any{
		"indexUrl":  "https://draftlab.example.com/admin/indexes?collection=wrStats&fields=team%2Cseason",
		"status":    models.IndexRequestPending,
		"timestamp": "2025-04-01T00:00:00.000Z",
	})
	require.NoError(t, err)

	status, body := do(t, app, http.MethodGet, "/admin/index-requests", "", tok)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = do(t, app, http.MethodPost, "/admin/indexes", `{"collection":"wrStats","fields":["team","season"]}`, tok)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(1), body["resolved"])

	status, body = do(t, app, http.MethodPost, "/admin/indexes", `{"collection":"wrStats"}`, tok)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, query.CodeInvalidArgument, body["code"])
}
