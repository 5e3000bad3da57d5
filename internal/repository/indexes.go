package repository

import (
	"context"
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"
	"sync"

	"draftlab/analytics/internal/store"

	"github.com/rs/zerolog/log"
)

var collectionPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// IndexRepository creates composite expression indexes over document fields
// and remembers which ones exist.
type IndexRepository struct {
	db      *Database
	baseURL string

	mu     sync.RWMutex
	known  map[string]bool
	loaded bool
}

// Create builds the expression index for (collection, fields) and registers it
func (r *IndexRepository) Create(ctx context.Context, collection string, fields []string) error {
	if !collectionPattern.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	if len(fields) == 0 {
		return fmt.Errorf("at least one index field is required")
	}

	exprs := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if !store.ValidField(f) {
			return fmt.Errorf("invalid index field %q", f)
		}
		exprs = append(exprs, pathExpr(f))
	}
	exprs = append(exprs, "id")

	key := store.IndexKey(fields)
	name := IndexName(collection, fields)

	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON documents (%s) WHERE collection = '%s'",
		name, strings.Join(exprs, ", "), collection,
	)
	if _, err := r.db.Pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}

	query := `
		INSERT INTO document_indexes (collection, fields, index_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, fields) DO NOTHING
	`
	if _, err := r.db.Pool.Exec(ctx, query, collection, key, name); err != nil {
		return fmt.Errorf("failed to register index %s: %w", name, err)
	}

	r.mu.Lock()
	r.known[collection+"|"+key] = true
	r.mu.Unlock()

	log.Info().
		Str("collection", collection).
		Str("fields", key).
		Str("index", name).
		Msg("Composite index created")

	return nil
}

// Check returns an IndexRequiredError when q needs an index that is not registered
func (r *IndexRepository) Check(ctx context.Context, q store.Query) error {
	fields := store.IndexFields(q)
	if fields == nil {
		return nil
	}
	if err := r.load(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	ok := r.known[q.Collection+"|"+store.IndexKey(fields)]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	return &store.IndexRequiredError{
		Collection: q.Collection,
		Fields:     fields,
		URL:        store.IndexURL(r.baseURL, q.Collection, fields),
	}
}

func (r *IndexRepository) load(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT collection, fields FROM document_indexes`)
	if err != nil {
		return fmt.Errorf("failed to load index registry: %w", err)
	}
	defer rows.Close()

	known := map[string]bool{}
	for rows.Next() {
		var collection, fields string
		if err := rows.Scan(&collection, &fields); err != nil {
			return fmt.Errorf("failed to scan index registry: %w", err)
		}
		known[collection+"|"+fields] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating index registry: %w", err)
	}

	r.mu.Lock()
	for k := range known {
		r.known[k] = true
	}
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// IndexName derives a stable, length-safe Postgres index name
func IndexName(collection string, fields []string) string {
	sum := crc32.ChecksumIEEE([]byte(collection + "|" + store.IndexKey(fields)))
	return fmt.Sprintf("docidx_%s_%08x", strings.ToLower(truncate(collection, 40)), sum)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
