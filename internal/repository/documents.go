package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"draftlab/analytics/internal/metrics"
	"draftlab/analytics/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// DocumentRepository stores JSON documents in the documents table.
// It implements store.Store and store.IndexManager.
type DocumentRepository struct {
	db             *Database
	indexes        *IndexRepository
	requireIndexes bool
	now            func() time.Time
}

var (
	_ store.Store        = (*DocumentRepository)(nil)
	_ store.IndexManager = (*DocumentRepository)(nil)
)

func observe(operation, collection string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDBQuery(operation, collection, status, time.Since(start).Seconds())
}

// Get retrieves one document
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (doc *store.Document, err error) {
	defer func(start time.Time) { observe("get", collection, start, err) }(time.Now())

	query := `SELECT data, updated_at FROM documents WHERE collection = $1 AND id = $2`

	d := &store.Document{ID: id}
	err = r.db.Pool.QueryRow(ctx, query, collection, id).Scan(&d.Data, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return d, nil
}

// Set overwrites a document
func (r *DocumentRepository) Set(ctx context.Context, collection, id string, data map[string]any) (err error) {
	defer func(start time.Time) { observe("set", collection, start, err) }(time.Now())

	raw, err := r.encode(data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`
	if _, err = r.db.Pool.Exec(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}

	log.Debug().Str("collection", collection).Str("id", id).Msg("Document set")
	return nil
}

// Merge overwrites the given top-level fields, creating the document if absent
func (r *DocumentRepository) Merge(ctx context.Context, collection, id string, data map[string]any) (err error) {
	defer func(start time.Time) { observe("merge", collection, start, err) }(time.Now())

	raw, err := r.encode(data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = documents.data || EXCLUDED.data,
			updated_at = NOW()
	`
	if _, err = r.db.Pool.Exec(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("failed to merge document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add inserts a document under a generated id
func (r *DocumentRepository) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := r.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// List returns every document in a collection ordered by id
func (r *DocumentRepository) List(ctx context.Context, collection string) (docs []store.Document, err error) {
	defer func(start time.Time) { observe("list", collection, start, err) }(time.Now())

	query := `SELECT id, data, updated_at FROM documents WHERE collection = $1 ORDER BY id`
	return r.scan(ctx, query, collection)
}

// Query runs a filtered, ordered, keyset-paginated read
func (r *DocumentRepository) Query(ctx context.Context, q store.Query) (docs []store.Document, err error) {
	defer func(start time.Time) { observe("query", q.Collection, start, err) }(time.Now())

	if err = store.ValidateQuery(q); err != nil {
		return nil, err
	}
	if r.requireIndexes {
		if err = r.indexes.Check(ctx, q); err != nil {
			return nil, err
		}
	}

	where, args, err := buildWhere(q)
	if err != nil {
		return nil, err
	}

	dir := "ASC"
	cmp := ">"
	if q.Direction == store.Desc {
		dir = "DESC"
		cmp = "<"
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, data, updated_at FROM documents WHERE ")
	sb.WriteString(where)

	if q.OrderBy != "" {
		path := pathExpr(q.OrderBy)
		fmt.Fprintf(&sb, " AND %s IS NOT NULL", path)

		if len(q.StartAfter) == 2 {
			key, err := jsonParam(q.StartAfter[0])
			if err != nil {
				return nil, err
			}
			args = append(args, key, fmt.Sprint(q.StartAfter[1]))
			fmt.Fprintf(&sb, " AND (%s, id) %s ($%d::jsonb, $%d)", path, cmp, len(args)-1, len(args))
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s, id %s", path, dir, dir)
	} else {
		if len(q.StartAfter) == 1 {
			args = append(args, fmt.Sprint(q.StartAfter[0]))
			fmt.Fprintf(&sb, " AND id %s $%d", cmp, len(args))
		}
		fmt.Fprintf(&sb, " ORDER BY id %s", dir)
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	return r.scan(ctx, sb.String(), args...)
}

// Count returns the number of documents matching the query's filters
func (r *DocumentRepository) Count(ctx context.Context, q store.Query) (n int64, err error) {
	defer func(start time.Time) { observe("count", q.Collection, start, err) }(time.Now())

	if err = store.ValidateQuery(store.Query{Collection: q.Collection, Filters: q.Filters}); err != nil {
		return 0, err
	}

	where, args, err := buildWhere(q)
	if err != nil {
		return 0, err
	}

	if err = r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Collection, err)
	}
	return n, nil
}

// CommitBatch applies ops in a single transaction
func (r *DocumentRepository) CommitBatch(ctx context.Context, ops []store.Op) (err error) {
	defer func(start time.Time) { observe("batch", "", start, err) }(time.Now())

	if len(ops) > store.MaxBatchSize {
		return fmt.Errorf("batch of %d operations exceeds limit of %d", len(ops), store.MaxBatchSize)
	}
	if len(ops) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, op := range ops {
		switch op.Kind {
		case store.OpSet:
			raw, err := r.encode(op.Data)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO documents (collection, id, data)
				VALUES ($1, $2, $3::jsonb)
				ON CONFLICT (collection, id) DO UPDATE SET
					data = EXCLUDED.data,
					updated_at = NOW()
			`, op.Collection, op.ID, raw)
		case store.OpDelete:
			batch.Queue(`DELETE FROM documents WHERE collection = $1 AND id = $2`, op.Collection, op.ID)
		default:
			return fmt.Errorf("unknown batch operation %d", op.Kind)
		}
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := range ops {
		if _, err = br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to apply batch operation %d (%s/%s): %w", i, ops[i].Collection, ops[i].ID, err)
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// CreateIndex builds and registers a composite index
func (r *DocumentRepository) CreateIndex(ctx context.Context, collection string, fields []string) error {
	return r.indexes.Create(ctx, collection, fields)
}

func (r *DocumentRepository) encode(data map[string]any) ([]byte, error) {
	prepared, err := store.Prepare(data, r.now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return raw, nil
}

func (r *DocumentRepository) scan(ctx context.Context, query string, args ...any) ([]store.Document, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var d store.Document
		if err := rows.Scan(&d.ID, &d.Data, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// buildWhere compiles the collection and filter predicates. Field paths are
// validated before being inlined so expression indexes can match them.
func buildWhere(q store.Query) (string, []any, error) {
	args := []any{q.Collection}
	clauses := []string{"collection = $1"}

	for _, f := range q.Filters {
		if !store.ValidField(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		val, err := jsonParam(f.Value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, val)
		path := pathExpr(f.Field)
		n := len(args)

		switch f.Op {
		case store.OpEqual:
			clauses = append(clauses, fmt.Sprintf("%s = $%d::jsonb", path, n))
		case store.OpGreater:
			clauses = append(clauses, fmt.Sprintf("(%s > $%d::jsonb AND jsonb_typeof(%s) = jsonb_typeof($%d::jsonb))", path, n, path, n))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

func pathExpr(field string) string {
	return fmt.Sprintf("(data #> '{%s}')", strings.ReplaceAll(field, ".", ","))
}

func jsonParam(v any) ([]byte, error) {
	normalized, err := store.NormalizeValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}
