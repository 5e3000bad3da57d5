package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/config"
	"draftlab/analytics/internal/notify"
	"draftlab/analytics/internal/query"
	"draftlab/analytics/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:         "memory",
		RequireIndexes:      true,
		PublicBaseURL:       "https://draftlab.example.com",
		AggregationPageSize: 10,
		BatchWriteSize:      100,
		QueryCollections:    []string{"wrStats"},
		QueryDefaultLimit:   25,
		QueryMaxLimit:       100,
	}
}

func TestSetupLogger_Level(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	cfg := memoryConfig()
	cfg.AppEnv = "production"
	cfg.LogLevel = "warn"
	SetupLogger(cfg)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	cfg.LogLevel = "nonsense"
	SetupLogger(cfg)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestOpen_MemoryDriver(t *testing.T) {
	ctx := context.Background()
	svc, err := Open(ctx, memoryConfig())
	require.NoError(t, err)
	defer svc.Close()

	_, isMemory := svc.Store.(*store.Memory)
	assert.True(t, isMemory)
	assert.Nil(t, svc.DB)
	assert.Nil(t, svc.Redis)
	assert.IsType(t, notify.Log{}, svc.Notifier)
	assert.NoError(t, svc.Health(ctx))

	// composite queries need an index with RequireIndexes
	_, err = svc.Store.Query(ctx, store.Query{
		Collection: "wrStats",
		Filters:    []store.Filter{store.Eq("team", "NYJ")},
		OrderBy:    "season",
	})
	var idxErr *store.IndexRequiredError
	assert.ErrorAs(t, err, &idxErr)
}

func TestServices_AggregatorAndQuery(t *testing.T) {
	ctx := context.Background()
	svc, err := Open(ctx, memoryConfig())
	require.NoError(t, err)

	result, err := svc.Aggregator().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, aggregator.ModeFull, result.Mode)

	_, err = svc.QueryService().Query(ctx, query.Request{Collection: "qbStats"})
	var qErr *query.Error
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, query.CodeNotFound, qErr.Code)
}

func TestMetricsHandler(t *testing.T) {
	svc, err := Open(context.Background(), memoryConfig())
	require.NoError(t, err)
	h := svc.MetricsHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
