package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"draftlab/analytics/internal/models"
)

// ErrNotFound is returned by Get when the document does not exist
var ErrNotFound = errors.New("document not found")

// Document is one stored JSON document
type Document struct {
	ID        string
	Data      map[string]any
	UpdatedAt time.Time
}

// Operator is a filter comparison
type Operator string

const (
	OpEqual   Operator = "=="
	OpGreater Operator = ">"
)

// Filter restricts a query to documents whose field compares to Value
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Eq builds an equality filter
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection maps "asc" (any case) to Asc and everything else to Desc
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Asc)) {
		return Asc
	}
	return Desc
}

// Query describes a filtered, ordered, paginated read of one collection.
// Results are always ordered by OrderBy and then by document id in the same
// direction. An empty OrderBy orders by id only. Documents missing the
// OrderBy field are not returned.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	// Limit of 0 means unlimited
	Limit int
	// StartAfter is the cursor [orderValue, id], or [id] when OrderBy is empty
	StartAfter []any
}

// OpKind is a batched write kind
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
)

// Op is one write inside an atomic batch
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       map[string]any
}

// SetOp builds a full-overwrite write
func SetOp(collection, id string, data map[string]any) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Data: data}
}

// DeleteOp builds a delete
func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// Store is the document store every analytics component reads and writes
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set overwrites the whole document
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Merge overwrites only the given top-level fields, creating the document if absent
	Merge(ctx context.Context, collection, id string, data map[string]any) error
	// Add inserts a document under a generated id
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Count applies only the query's filters
	Count(ctx context.Context, q Query) (int64, error)
	// CommitBatch applies ops atomically
	CommitBatch(ctx context.Context, ops []Op) error
}

// IndexManager is implemented by stores that track composite indexes
type IndexManager interface {
	CreateIndex(ctx context.Context, collection string, fields []string) error
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the store's clock when a document is written
var ServerTimestamp any = serverTimestamp{}

// IndexRequiredError reports a query that needs a composite index the store
// does not have. Its message embeds the URL where the index can be created.
type IndexRequiredError struct {
	Collection string
	Fields     []string
	URL        string
}

func (e *IndexRequiredError) Error() string {
	return fmt.Sprintf("the query on %s requires a composite index on (%s). You can create it here: %s",
		e.Collection, strings.Join(e.Fields, ", "), e.URL)
}

// IndexURL builds the admin link for creating an index
func IndexURL(baseURL, collection string, fields []string) string {
	v := url.Values{}
	v.Set("collection", collection)
	v.Set("fields", strings.Join(fields, ","))
	return strings.TrimRight(baseURL, "/") + "/admin/indexes?" + v.Encode()
}

// IndexFields returns the composite index a query needs, or nil when single
// field indexes suffice. Equality fields come first in sorted order, followed
// by the order field.
func IndexFields(q Query) []string {
	if q.OrderBy == "" {
		return nil
	}

	seen := map[string]bool{}
	var eq []string
	needed := false
	for _, f := range q.Filters {
		if f.Field != q.OrderBy {
			needed = true
		}
		if f.Field == q.OrderBy || seen[f.Field] {
			continue
		}
		seen[f.Field] = true
		eq = append(eq, f.Field)
	}
	if !needed {
		return nil
	}

	sort.Strings(eq)
	return append(eq, q.OrderBy)
}

// IndexKey is the canonical registry key for a field list
func IndexKey(fields []string) string {
	return strings.Join(fields, ",")
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidField reports whether name is a usable field path (dot separated)
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// ValidateQuery checks field names and operators
func ValidateQuery(q Query) error {
	if q.Collection == "" {
		return errors.New("collection is required")
	}
	for _, f := range q.Filters {
		if !ValidField(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
		if f.Op != OpEqual && f.Op != OpGreater {
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	if q.OrderBy != "" && !ValidField(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid limit %d", q.Limit)
	}
	want := 2
	if q.OrderBy == "" {
		want = 1
	}
	if len(q.StartAfter) != 0 && len(q.StartAfter) != want {
		return fmt.Errorf("cursor must have %d elements, got %d", want, len(q.StartAfter))
	}
	return nil
}

// Prepare resolves ServerTimestamp sentinels and time values against now and
// normalizes data into plain JSON values (maps, slices, strings, float64,
// bool and nil).
func Prepare(data map[string]any, now time.Time) (map[string]any, error) {
	resolved := resolve(data, now)
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

// NormalizeValue converts a single filter or cursor value to its stored form
func NormalizeValue(v any) (any, error) {
	raw, err := json.Marshal(resolve(v, time.Time{}))
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

func resolve(v any, now time.Time) any {
	switch tv := v.(type) {
	case serverTimestamp:
		return models.FormatTime(now)
	case time.Time:
		return models.FormatTime(tv)
	case *time.Time:
		if tv == nil {
			return nil
		}
		return models.FormatTime(*tv)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = resolve(val, now)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = resolve(val, now)
		}
		return out
	}
	return v
}

// Lookup reads a dot separated field path from data
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Compare orders two normalized JSON values the way the relational backend
// orders jsonb: null < string < number < boolean < array < object.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case string:
		return strings.Compare(av, b.(string))
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return strings.Compare(string(ja), string(jb))
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case float64:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	}
	return 5
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
