package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"draftlab/analytics/internal/models"
	"draftlab/analytics/internal/store"
)

// DefaultPageSize is the number of sessions read per page in a full run
const DefaultPageSize = 50

// incrementalPageSize is the page size for incremental reads
const incrementalPageSize = 100

// SessionPager iterates draft sessions one page at a time. Each page is read
// only after the previous one because the cursor comes from its last document.
type SessionPager struct {
	store store.Store
	query store.Query
	last  []any
	done  bool
	read  int
	pages int
}

// NewSessionPager pages through every session in document id order
func NewSessionPager(s store.Store, size int) *SessionPager {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &SessionPager{
		store: s,
		query: store.Query{
			Collection: models.CollectionDraftAnalytics,
			Direction:  store.Asc,
			Limit:      size,
		},
	}
}

// Resume continues after a cursor previously returned by Cursor
func (p *SessionPager) Resume(cursor string) error {
	if cursor == "" {
		p.last = nil
		return nil
	}
	var last []any
	if err := json.Unmarshal([]byte(cursor), &last); err != nil {
		return fmt.Errorf("invalid pager cursor: %w", err)
	}
	want := 1
	if p.query.OrderBy != "" {
		want = 2
	}
	if len(last) != want {
		return fmt.Errorf("invalid pager cursor: expected %d values, got %d", want, len(last))
	}
	p.last = last
	p.done = false
	return nil
}

// Cursor returns the serialized position after the last page read, or "" at
// the start.
func (p *SessionPager) Cursor() string {
	if len(p.last) == 0 {
		return ""
	}
	raw, _ := json.Marshal(p.last)
	return string(raw)
}

// Done reports whether the last page has been read
func (p *SessionPager) Done() bool { return p.done }

// Read returns the number of sessions read so far
func (p *SessionPager) Read() int { return p.read }

// Pages returns the number of non-empty pages read so far
func (p *SessionPager) Pages() int { return p.pages }

// Next returns the next page. An empty page means the iteration is complete.
func (p *SessionPager) Next(ctx context.Context) ([]models.DraftSession, error) {
	if p.done {
		return nil, nil
	}

	q := p.query
	q.StartAfter = p.last
	docs, err := p.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions page %d: %w", p.pages+1, err)
	}

	if len(docs) < q.Limit {
		p.done = true
	}
	if len(docs) == 0 {
		return nil, nil
	}

	sessions := make([]models.DraftSession, len(docs))
	for i, doc := range docs {
		sessions[i] = models.DecodeDraftSession(doc.ID, doc.Data)
	}

	tail := docs[len(docs)-1]
	if q.OrderBy == "" {
		p.last = []any{tail.ID}
	} else {
		key, _ := store.Lookup(tail.Data, q.OrderBy)
		p.last = []any{key, tail.ID}
	}
	p.read += len(docs)
	p.pages++
	return sessions, nil
}
