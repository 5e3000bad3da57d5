package query

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/notify"
	"draftlab/analytics/internal/store"

	"github.com/rs/zerolog/log"
)

// Error codes returned to callers
const (
	CodeInvalidArgument = "invalid-argument"
	CodeNotFound        = "not-found"
	CodeInternal        = "internal"
)

// Error is a query failure with a caller-facing code
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func invalid(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// PagePrefix is the key prefix of every cached page of collection
func PagePrefix(collection string) string {
	return "query:" + collection + ":"
}

// DefaultOrderBy is the sort field when a request names none
const DefaultOrderBy = "season"

// defaultScreen is recorded on index requests from callers that do not name one
const defaultScreen = "api"

var urlPattern = regexp.MustCompile(`https://[^\s]+`)

// Request is one page request against a collection
type Request struct {
	Collection     string         `json:"-"`
	Filters        map[string]any `json:"filters"`
	OrderBy        string         `json:"orderBy"`
	OrderDirection string         `json:"orderDirection"`
	Limit          int            `json:"limit"`
	Cursor         []any          `json:"cursor"`
	Screen         string         `json:"screen"`
}

// Response is one page of results
type Response struct {
	Data         []map[string]any `json:"data"`
	TotalRecords int64            `json:"totalRecords"`
	NextCursor   []any            `json:"nextCursor"`
	Message      string           `json:"message,omitempty"`
}

// PageCache stores rendered pages; cache.RedisCache implements it
type PageCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config bounds what callers may query
type Config struct {
	Collections  []string
	DefaultLimit int
	MaxLimit     int
	CacheTTL     time.Duration
	// OrderOverrides pins the sort field for collections whose rows have no season
	OrderOverrides map[string]string
}

// Service runs keyset-paginated queries over allowed collections
type Service struct {
	store    store.Store
	notifier notify.Notifier
	pages    PageCache
	cfg      Config
	allowed  map[string]bool
}

// Option configures a Service
type Option func(*Service)

// WithNotifier reports new index requests
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPageCache caches rendered pages for cfg.CacheTTL
func WithPageCache(c PageCache) Option {
	return func(s *Service) { s.pages = c }
}

// NewService creates a query service over s
func NewService(s store.Store, cfg Config, opts ...Option) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 25
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.OrderOverrides == nil {
		cfg.OrderOverrides = map[string]string{"historicalMatchups": "gameID"}
	}

	svc := &Service{
		store:    s,
		notifier: notify.Log{},
		cfg:      cfg,
		allowed:  make(map[string]bool, len(cfg.Collections)),
	}
	for _, c := range cfg.Collections {
		svc.allowed[strings.TrimSpace(c)] = true
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ParseQueryValue coerces a filter value from its string form. "true" and
// "false" become bools, numeric strings become int64 or (with a '.') float64.
func ParseQueryValue(s string) any {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	case "":
		return s
	}
	if strings.Contains(trimmed, ".") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	return s
}

// Query returns one page of req.Collection plus the total match count
func (s *Service) Query(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordQuery(req.Collection, status, time.Since(start).Seconds())
	}()

	q, filters, err := s.build(req)
	if err != nil {
		return nil, err
	}

	key := ""
	if s.pages != nil && s.cfg.CacheTTL > 0 {
		key = cache.CacheKey(strings.TrimSuffix(PagePrefix(q.Collection), ":"), map[string]any{
			"filters": filters,
			"orderBy": q.OrderBy,
			"dir":     q.Direction,
			"limit":   q.Limit,
			"cursor":  q.StartAfter,
		})
		var cached Response
		if err := s.pages.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Debug().Err(err).Str("key", key).Msg("Page cache read failed")
		}
	}

	total, err := s.store.Count(ctx, store.Query{Collection: q.Collection, Filters: q.Filters})
	if err != nil {
		return nil, s.failure(ctx, req, filters, err)
	}

	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, s.failure(ctx, req, filters, err)
	}

	resp = &Response{Data: make([]map[string]any, 0, len(docs)), TotalRecords: total}
	if len(docs) == 0 {
		resp.Message = "No documents found for the current page/criteria."
		return resp, nil
	}

	for _, doc := range docs {
		row := make(map[string]any, len(doc.Data)+1)
		for k, v := range doc.Data {
			row[k] = v
		}
		row["id"] = doc.ID
		resp.Data = append(resp.Data, row)
	}
	if len(docs) == q.Limit {
		last := docs[len(docs)-1]
		value, _ := store.Lookup(last.Data, q.OrderBy)
		resp.NextCursor = []any{value, last.ID}
	}
	resp.Message = fmt.Sprintf("Successfully fetched %d records.", len(docs))

	log.Debug().
		Str("collection", q.Collection).
		Int("returned", len(docs)).
		Int64("total", total).
		Msg("Query page served")

	if key != "" {
		if err := s.pages.SetJSON(ctx, key, resp, s.cfg.CacheTTL); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Page cache write failed")
		}
	}
	return resp, nil
}

// build validates req and compiles it to a store query
func (s *Service) build(req Request) (store.Query, map[string]any, error) {
	if !s.allowed[req.Collection] {
		return store.Query{}, nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("collection %q is not queryable", req.Collection)}
	}

	limit := req.Limit
	switch {
	case limit < 0:
		return store.Query{}, nil, invalid("limit must not be negative")
	case limit == 0:
		limit = s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		limit = s.cfg.MaxLimit
	}

	orderBy := req.OrderBy
	if pinned, ok := s.cfg.OrderOverrides[req.Collection]; ok {
		orderBy = pinned
	}
	if orderBy == "" {
		orderBy = DefaultOrderBy
	}
	if !store.ValidField(orderBy) {
		return store.Query{}, nil, invalid("invalid orderBy field %q", orderBy)
	}

	if req.Cursor != nil && len(req.Cursor) != 2 {
		return store.Query{}, nil, invalid("cursor must be [orderValue, documentId]")
	}

	filters := map[string]any{}
	var fs []store.Filter
	for _, field := range sortedFields(req.Filters) {
		raw := req.Filters[field]
		if raw == nil {
			continue
		}
		value := raw
		if str, ok := raw.(string); ok {
			if str == "" {
				continue
			}
			value = ParseQueryValue(str)
		}
		if !store.ValidField(field) {
			return store.Query{}, nil, invalid("invalid filter field %q", field)
		}
		filters[field] = raw
		fs = append(fs, store.Eq(field, value))
	}

	return store.Query{
		Collection: req.Collection,
		Filters:    fs,
		OrderBy:    orderBy,
		Direction:  store.ParseDirection(req.OrderDirection),
		Limit:      limit,
		StartAfter: req.Cursor,
	}, filters, nil
}

// failure converts a store error. A missing composite index is logged to
// admin_index_requests before being returned as an internal error.
func (s *Service) failure(ctx context.Context, req Request, filters map[string]any, err error) error {
	log.Error().Err(err).Str("collection", req.Collection).Msg("Query failed")

	var idxErr *store.IndexRequiredError
	if errors.As(err, &idxErr) {
		s.recordIndexRequest(ctx, req, filters, err)
	}
	return &Error{
		Code:    CodeInternal,
		Message: fmt.Sprintf("Failed to fetch %s data: %v", req.Collection, err),
		Err:     err,
	}
}

func (s *Service) recordIndexRequest(ctx context.Context, req Request, filters map[string]any, cause error) {
	ctx = context.WithoutCancel(ctx)

	indexURL := urlPattern.FindString(cause.Error())
	if indexURL == "" {
		indexURL = "Could not parse URL from error."
	}

	details := make([]string, 0, len(filters))
	for _, field := range sortedFields(filters) {
		details = append(details, fmt.Sprintf("%s == %v", field, filters[field]))
	}

	screen := req.Screen
	if screen == "" {
		screen = defaultScreen
	}

	ir := models.IndexRequest{
		IndexURL:     indexURL,
		QueryDetails: strings.Join(details, ", "),
		Screen:       screen,
		Timestamp:    models.FormatTime(time.Now()),
		Status:       models.IndexRequestPending,
		ErrorDetails: cause.Error(),
	}

	id, err := s.store.Add(ctx, models.CollectionIndexRequests, map[string]any{
		"indexUrl":     ir.IndexURL,
		"queryDetails": ir.QueryDetails,
		"screen":       ir.Screen,
		"timestamp":    store.ServerTimestamp,
		"status":       ir.Status,
		"errorDetails": ir.ErrorDetails,
	})
	if err != nil {
		log.Error().Err(err).Str("index_url", indexURL).Msg("Failed to log index request")
		return
	}
	ir.ID = id
	metrics.RecordIndexRequest()

	log.Warn().
		Str("id", id).
		Str("index_url", indexURL).
		Str("screen", screen).
		Msg("Logged index request")

	if err := s.notifier.IndexRequested(ctx, ir); err != nil {
		log.Warn().Err(err).Msg("Failed to send index request alert")
	}
}

// IndexRequests lists logged index requests, newest first
func (s *Service) IndexRequests(ctx context.Context) ([]models.IndexRequest, error) {
	docs, err := s.store.List(ctx, models.CollectionIndexRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to list index requests: %w", err)
	}
	out := make([]models.IndexRequest, len(docs))
	for i, doc := range docs {
		out[i] = models.DecodeIndexRequest(doc.ID, doc.Data)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// CreateIndex builds a composite index and marks matching pending requests
// created. It returns how many requests were resolved.
func (s *Service) CreateIndex(ctx context.Context, collection string, fields []string) (int, error) {
	im, ok := s.store.(store.IndexManager)
	if !ok {
		return 0, &Error{Code: CodeInternal, Message: "store does not manage indexes"}
	}
	if collection == "" || len(fields) == 0 {
		return 0, invalid("collection and fields are required")
	}
	if err := im.CreateIndex(ctx, collection, fields); err != nil {
		return 0, fmt.Errorf("failed to create index: %w", err)
	}

	requests, err := s.IndexRequests(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, r := range requests {
		if r.Status != models.IndexRequestPending || !matchesIndex(r.IndexURL, collection, fields) {
			continue
		}
		if err := s.store.Merge(ctx, models.CollectionIndexRequests, r.ID, map[string]any{
			"status":     models.IndexRequestCreated,
			"resolvedAt": store.ServerTimestamp,
		}); err != nil {
			return resolved, fmt.Errorf("failed to resolve index request %s: %w", r.ID, err)
		}
		resolved++
	}

	log.Info().
		Str("collection", collection).
		Strs("fields", fields).
		Int("resolved", resolved).
		Msg("Index created")
	return resolved, nil
}

// matchesIndex reports whether an index request URL asks for this index
func matchesIndex(raw, collection string, fields []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	v := u.Query()
	return v.Get("collection") == collection && v.Get("fields") == strings.Join(fields, ",")
}

func sortedFields(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
