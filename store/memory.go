package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lvillar/pdfstamp"
)

// Memory is an in-process Store. It serves development and tests; records
// are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record), now: time.Now}
}

func (m *Memory) Create(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	Prepare(r, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.records[r.ID]; dup {
		return fmt.Errorf("store: duplicate id %s", r.ID)
	}
	c := *r
	c.Fields = maps.Clone(r.Fields)
	m.records[r.ID] = c
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, pdfstamp.Errorf("store get", "%w: record %s", pdfstamp.ErrNotFound, id)
	}
	return r, nil
}

func (m *Memory) List(ctx context.Context, owner string, q Query) ([]Record, Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}
	q = q.Normalize()
	less, err := comparator(q.Sort)
	if err != nil {
		return nil, Meta{}, err
	}

	m.mu.RLock()
	var match []Record
	for _, r := range m.records {
		if r.OwnerID == owner && matches(r, q) {
			match = append(match, r)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(match, less)
	meta := NewMeta(q, int64(len(match)))
	lo := min(q.Offset(), len(match))
	hi := min(lo+q.Limit, len(match))
	return match[lo:hi], meta, nil
}

func (m *Memory) Stats(ctx context.Context, owner string, now time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	month, year := periodStarts(now)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, r := range m.records {
		if r.OwnerID != owner {
			continue
		}
		s.Total++
		if !r.CreatedAt.Before(month) {
			s.ThisMonth++
		}
		if !r.CreatedAt.Before(year) {
			s.ThisYear++
		}
	}
	return s, nil
}

func (m *Memory) Close() error { return nil }

func matches(r Record, q Query) bool {
	for k, v := range q.Filters {
		if _, ok := filterable[k]; ok && field(r, k) != v {
			return false
		}
	}
	if q.SearchTerm == "" {
		return true
	}
	term := strings.ToLower(q.SearchTerm)
	for _, s := range []string{r.FirstName, r.LastName, r.FileName} {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func field(r Record, name string) string {
	switch name {
	case "fileName":
		return r.FileName
	case "firstName":
		return r.FirstName
	case "lastName":
		return r.LastName
	}
	return ""
}

// comparator mirrors orderBy for in-memory slices.
func comparator(sort string) (func(a, b Record) int, error) {
	var keys []func(a, b Record) int
	for _, f := range strings.Split(sort, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		desc := false
		if name, ok := strings.CutPrefix(f, "-"); ok {
			f, desc = name, true
		}
		if _, ok := sortable[f]; !ok {
			return nil, fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, f)
		}
		key := byField(f)
		if desc {
			asc := key
			key = func(a, b Record) int { return asc(b, a) }
		}
		keys = append(keys, key)
	}
	return func(a, b Record) int {
		for _, k := range keys {
			if c := k(a, b); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	}, nil
}

func byField(name string) func(a, b Record) int {
	switch name {
	case "createdAt":
		return func(a, b Record) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case "updatedAt":
		return func(a, b Record) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case "fileSizeBytes":
		return func(a, b Record) int { return cmp.Compare(a.SizeBytes, b.SizeBytes) }
	}
	return func(a, b Record) int { return cmp.Compare(field(a, name), field(b, name)) }
}
