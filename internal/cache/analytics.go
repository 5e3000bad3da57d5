package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/store"

	"github.com/rs/zerolog/log"
)

// DefaultMaxAge bounds how long a loaded snapshot is served
const DefaultMaxAge = 24 * time.Hour

// Cache statuses reported to callers
const (
	StatusValid = "valid"
	StatusError = "error"
)

// Valid reports whether a snapshot loaded at cachedAt may still be served:
// it must not predate the last completed aggregation and must be younger
// than maxAge.
func Valid(cachedAt, metadataUpdated, now time.Time, maxAge time.Duration) bool {
	if cachedAt.IsZero() {
		return false
	}
	if cachedAt.Before(metadataUpdated) {
		return false
	}
	return now.Sub(cachedAt) <= maxAge
}

// ResponseMetadata describes the snapshot a response was served from
type ResponseMetadata struct {
	LastUpdated    string   `json:"lastUpdated,omitempty"`
	DataType       string   `json:"dataType,omitempty"`
	AvailableTypes []string `json:"availableTypes,omitempty"`
}

// Response is the analytics read result
type Response struct {
	Data           any               `json:"data"`
	Metadata       *ResponseMetadata `json:"metadata,omitempty"`
	FromCache      bool              `json:"fromCache"`
	CacheTimestamp string            `json:"cacheTimestamp,omitempty"`
	CacheStatus    string            `json:"cacheStatus"`
	Error          string            `json:"error,omitempty"`
	AvailableTypes []string          `json:"availableTypes,omitempty"`
}

type snapshot struct {
	docs        map[string]map[string]any
	types       []string
	loadedAt    time.Time
	lastUpdated time.Time
}

// AnalyticsCache serves precomputed aggregation documents from memory
type AnalyticsCache struct {
	store  store.Store
	now    func() time.Time
	maxAge time.Duration

	mu              sync.RWMutex
	snap            *snapshot
	metadataUpdated time.Time
}

// Option configures an AnalyticsCache
type Option func(*AnalyticsCache)

// WithClock replaces the cache clock
func WithClock(now func() time.Time) Option {
	return func(c *AnalyticsCache) { c.now = now }
}

// WithMaxAge overrides DefaultMaxAge
func WithMaxAge(d time.Duration) Option {
	return func(c *AnalyticsCache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// NewAnalyticsCache creates an empty cache over s
func NewAnalyticsCache(s store.Store, opts ...Option) *AnalyticsCache {
	c := &AnalyticsCache{
		store:  s,
		now:    time.Now,
		maxAge: DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached document for dataType. An empty dataType lists the
// available types. The only honored filter is "team" on teamNeeds.
// Payloads are shared between callers and must not be modified.
func (c *AnalyticsCache) Get(ctx context.Context, dataType string, filters map[string]string) *Response {
	snap, fromCache, err := c.current(ctx)
	if err != nil {
		log.Error().Err(err).Str("data_type", dataType).Msg("Failed to load analytics cache")
		return &Response{Error: "Failed to load analytics data", CacheStatus: StatusError}
	}

	stamp := ""
	if !snap.lastUpdated.IsZero() {
		stamp = models.FormatTime(snap.lastUpdated)
	}

	if dataType == "" {
		return &Response{
			Metadata:       &ResponseMetadata{LastUpdated: stamp, AvailableTypes: snap.types},
			FromCache:      fromCache,
			CacheTimestamp: models.FormatTime(snap.loadedAt),
			CacheStatus:    StatusValid,
		}
	}

	data, ok := snap.docs[dataType]
	if !ok {
		return &Response{
			Error:          "Data type '" + dataType + "' not found",
			AvailableTypes: snap.types,
			CacheStatus:    StatusValid,
		}
	}

	var payload any = data
	if dataType == models.DocTeamNeeds && filters["team"] != "" {
		payload = filterTeamNeeds(data, filters["team"])
	}

	return &Response{
		Data:           payload,
		Metadata:       &ResponseMetadata{LastUpdated: stamp, DataType: dataType},
		FromCache:      fromCache,
		CacheTimestamp: models.FormatTime(snap.loadedAt),
		CacheStatus:    StatusValid,
	}
}

func filterTeamNeeds(data map[string]any, team string) map[string]any {
	var teamNeeds any
	if needs, ok := data["needs"].(map[string]any); ok {
		teamNeeds = needs[team]
	}
	return map[string]any{
		"needs": map[string]any{team: teamNeeds},
		"year":  data["year"],
	}
}

// current returns a valid snapshot, loading one if needed. fromCache is false
// when this call loaded it.
func (c *AnalyticsCache) current(ctx context.Context) (*snapshot, bool, error) {
	c.mu.RLock()
	snap, known := c.snap, c.metadataUpdated
	c.mu.RUnlock()

	if snap != nil && Valid(snap.loadedAt, known, c.now(), c.maxAge) {
		metrics.RecordCacheHit("analytics")
		return snap, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have loaded while we waited
	if c.snap != nil && Valid(c.snap.loadedAt, c.metadataUpdated, c.now(), c.maxAge) {
		metrics.RecordCacheHit("analytics")
		return c.snap, true, nil
	}

	metrics.RecordCacheMiss("analytics")
	start := time.Now()

	snap, err := c.load(ctx)
	metrics.RecordCacheOperation("load", time.Since(start).Seconds())
	if err != nil {
		return nil, false, err
	}

	c.snap = snap
	if snap.lastUpdated.After(c.metadataUpdated) {
		c.metadataUpdated = snap.lastUpdated
	}
	return snap, false, nil
}

func (c *AnalyticsCache) load(ctx context.Context) (*snapshot, error) {
	docs, err := c.store.List(ctx, models.CollectionPrecomputed)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		docs:     make(map[string]map[string]any, len(docs)),
		types:    make([]string, 0, len(docs)),
		loadedAt: c.now(),
	}
	for _, doc := range docs {
		snap.docs[doc.ID] = doc.Data
		snap.types = append(snap.types, doc.ID)
		if doc.ID == models.DocMetadata {
			snap.lastUpdated = models.DecodeMetadata(doc.Data).LastUpdated
		}
	}
	sort.Strings(snap.types)

	log.Info().
		Int("documents", len(docs)).
		Time("last_updated", snap.lastUpdated).
		Msg("Analytics cache loaded")

	return snap, nil
}

// Invalidate drops the snapshot so the next Get reloads
func (c *AnalyticsCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
	log.Debug().Msg("Analytics cache invalidated")
}

// RefreshMetadata reads the metadata document once and records its
// lastUpdated so a newer aggregation invalidates the snapshot.
func (c *AnalyticsCache) RefreshMetadata(ctx context.Context) error {
	doc, err := c.store.Get(ctx, models.CollectionPrecomputed, models.DocMetadata)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	updated := models.DecodeMetadata(doc.Data).LastUpdated
	c.mu.Lock()
	if updated.After(c.metadataUpdated) {
		c.metadataUpdated = updated
	}
	c.mu.Unlock()
	return nil
}

// WatchMetadata polls the metadata document every interval until ctx is done
func (c *AnalyticsCache) WatchMetadata(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RefreshMetadata(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to poll analytics metadata")
			}
		}
	}
}
