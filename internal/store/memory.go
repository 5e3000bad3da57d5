package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and STORE_DRIVER=memory.
// It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Document
	indexes     map[string]map[string]bool
	failures    map[string]error

	requireIndexes bool
	baseURL        string
	now            func() time.Time
}

// MemoryOption configures a Memory store
type MemoryOption func(*Memory)

// WithClock replaces the clock used for server timestamps
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithRequiredIndexes rejects composite queries without a created index.
// baseURL prefixes the index creation link.
func WithRequiredIndexes(baseURL string) MemoryOption {
	return func(m *Memory) {
		m.requireIndexes = true
		m.baseURL = baseURL
	}
}

// NewMemory creates an empty store
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: map[string]map[string]*Document{},
		indexes:     map[string]map[string]bool{},
		failures:    map[string]error{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailOn makes every later call of method ("Get", "Set", "Merge", "Add",
// "List", "Query", "Count", "CommitBatch") return err. A nil err clears it.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *Memory) failure(method string) error {
	return m.failures[method]
}

func (m *Memory) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("Get"); err != nil {
		return nil, err
	}

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyDoc(doc)
	return &c, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Set"); err != nil {
		return err
	}
	return m.setLocked(collection, id, data)
}

func (m *Memory) Merge(ctx context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Merge"); err != nil {
		return err
	}

	now := m.now()
	prepared, err := Prepare(data, now)
	if err != nil {
		return err
	}

	docs := m.collection(collection)
	doc, ok := docs[id]
	if !ok {
		docs[id] = &Document{ID: id, Data: prepared, UpdatedAt: now}
		return nil
	}
	for k, v := range prepared {
		doc.Data[k] = v
	}
	doc.UpdatedAt = now
	return nil
}

func (m *Memory) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Add"); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := m.setLocked(collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("List"); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(m.collections[collection]))
	for _, doc := range m.collections[collection] {
		docs = append(docs, copyDoc(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("Query"); err != nil {
		return nil, err
	}
	if err := m.checkIndex(q); err != nil {
		return nil, err
	}

	matched, err := m.match(q)
	if err != nil {
		return nil, err
	}

	type row struct {
		doc *Document
		key any
	}
	rows := make([]row, 0, len(matched))
	for _, doc := range matched {
		var key any
		if q.OrderBy != "" {
			v, ok := Lookup(doc.Data, q.OrderBy)
			if !ok {
				continue
			}
			key = v
		}
		rows = append(rows, row{doc: doc, key: key})
	}

	desc := q.Direction == Desc
	less := func(ka any, ida string, kb any, idb string) bool {
		c := 0
		if q.OrderBy != "" {
			c = Compare(ka, kb)
		}
		if c == 0 {
			c = cmpString(ida, idb)
		}
		if desc {
			return c > 0
		}
		return c < 0
	}
	sort.Slice(rows, func(i, j int) bool {
		return less(rows[i].key, rows[i].doc.ID, rows[j].key, rows[j].doc.ID)
	})

	if len(q.StartAfter) > 0 {
		var cursorKey any
		cursorID := fmt.Sprint(q.StartAfter[len(q.StartAfter)-1])
		if q.OrderBy != "" {
			cursorKey, err = NormalizeValue(q.StartAfter[0])
			if err != nil {
				return nil, err
			}
		}
		skip := 0
		for skip < len(rows) && !less(cursorKey, cursorID, rows[skip].key, rows[skip].doc.ID) {
			skip++
		}
		rows = rows[skip:]
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = copyDoc(r.doc)
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, q Query) (int64, error) {
	if err := ValidateQuery(Query{Collection: q.Collection, Filters: q.Filters}); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("Count"); err != nil {
		return 0, err
	}

	matched, err := m.match(q)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (m *Memory) CommitBatch(ctx context.Context, ops []Op) error {
	if len(ops) > MaxBatchSize {
		return fmt.Errorf("batch of %d operations exceeds limit of %d", len(ops), MaxBatchSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CommitBatch"); err != nil {
		return err
	}

	// prepare everything first so a bad op leaves the store untouched
	now := m.now()
	prepared := make([]map[string]any, len(ops))
	for i, op := range ops {
		if op.Kind != OpSet {
			continue
		}
		data, err := Prepare(op.Data, now)
		if err != nil {
			return err
		}
		prepared[i] = data
	}

	for i, op := range ops {
		switch op.Kind {
		case OpSet:
			m.collection(op.Collection)[op.ID] = &Document{ID: op.ID, Data: prepared[i], UpdatedAt: now}
		case OpDelete:
			delete(m.collections[op.Collection], op.ID)
		}
	}
	return nil
}

// CreateIndex registers a composite index so matching queries are allowed
func (m *Memory) CreateIndex(ctx context.Context, collection string, fields []string) error {
	if collection == "" || len(fields) == 0 {
		return fmt.Errorf("collection and fields are required")
	}
	for _, f := range fields {
		if !ValidField(f) {
			return fmt.Errorf("invalid index field %q", f)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[collection] == nil {
		m.indexes[collection] = map[string]bool{}
	}
	m.indexes[collection][IndexKey(fields)] = true
	return nil
}

func (m *Memory) checkIndex(q Query) error {
	if !m.requireIndexes {
		return nil
	}
	fields := IndexFields(q)
	if fields == nil || m.indexes[q.Collection][IndexKey(fields)] {
		return nil
	}
	return &IndexRequiredError{
		Collection: q.Collection,
		Fields:     fields,
		URL:        IndexURL(m.baseURL, q.Collection, fields),
	}
}

func (m *Memory) match(q Query) ([]*Document, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := NormalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	var out []*Document
	for _, doc := range m.collections[q.Collection] {
		if matches(doc.Data, filters) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := Lookup(data, f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if Compare(v, f.Value) != 0 {
				return false
			}
		case OpGreater:
			// range comparisons only hold between values of the same type
			if typeRank(v) != typeRank(f.Value) || Compare(v, f.Value) <= 0 {
				return false
			}
		}
	}
	return true
}

func (m *Memory) setLocked(collection, id string, data map[string]any) error {
	now := m.now()
	prepared, err := Prepare(data, now)
	if err != nil {
		return err
	}
	m.collection(collection)[id] = &Document{ID: id, Data: prepared, UpdatedAt: now}
	return nil
}

func (m *Memory) collection(name string) map[string]*Document {
	docs, ok := m.collections[name]
	if !ok {
		docs = map[string]*Document{}
		m.collections[name] = docs
	}
	return docs
}

func copyDoc(doc *Document) Document {
	data, _ := Prepare(doc.Data, time.Time{})
	return Document{ID: doc.ID, Data: data, UpdatedAt: doc.UpdatedAt}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
