// Package store persists metadata about rendered documents and the rendered
// files themselves.
//
// Metadata lives behind the Store interface, with PostgreSQL (pgstore),
// MySQL (mysqlstore) and in-memory implementations. Files live in a
// Blobs directory.
package store

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidQuery is returned by List for a sort on an unknown field.
var ErrInvalidQuery = errors.New("store: invalid query")

// Record describes one rendered document.
type Record struct {
	ID        string            `json:"_id"`
	OwnerID   string            `json:"user"`
	FileName  string            `json:"fileName"`
	FilePath  string            `json:"filePath,omitempty"`
	SizeBytes int64             `json:"fileSizeBytes"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Query selects a page of an owner's records.
type Query struct {
	Page       int
	Limit      int
	Sort       string            // comma list of fields, "-" prefix for descending
	SearchTerm string            // matched against first name, last name and file name
	Filters    map[string]string // equality on filterable fields
}

// Meta describes the page returned by List.
type Meta struct {
	Page      int   `json:"page"`
	Limit     int   `json:"limit"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"totalPage"`
}

// Stats counts an owner's records.
type Stats struct {
	Total     int64 `json:"totalCount"`
	ThisMonth int64 `json:"currentMonthCount"`
	ThisYear  int64 `json:"currentYearCount"`
}

// Store persists records. Implementations are safe for concurrent use.
type Store interface {
	// Create inserts r, assigning ID and timestamps when they are unset.
	Create(ctx context.Context, r *Record) error
	// Get returns the record with id or an error wrapping
	// pdfstamp.ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, owner string, q Query) ([]Record, Meta, error)
	// Stats counts records created in total, since the start of now's
	// month and since the start of now's year, in UTC.
	Stats(ctx context.Context, owner string, now time.Time) (Stats, error)
	Close() error
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "-createdAt"
)

// NewID returns a fresh record id.
func NewID() string { return uuid.NewString() }

// Prepare fills the id and timestamps of r when they are unset.
func Prepare(r *Record, now time.Time) {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
}

// queryKeys are the parameters ParseQuery does not treat as filters.
var queryKeys = map[string]bool{"page": true, "limit": true, "sort": true, "searchTerm": true, "fields": true}

// ParseQuery reads page, limit, sort and searchTerm from v; any other
// parameter naming a filterable field becomes an equality filter.
func ParseQuery(v url.Values) Query {
	q := Query{
		Page:       atoiOr(v.Get("page"), DefaultPage),
		Limit:      atoiOr(v.Get("limit"), DefaultLimit),
		Sort:       v.Get("sort"),
		SearchTerm: strings.TrimSpace(v.Get("searchTerm")),
	}
	for k := range v {
		if queryKeys[k] {
			continue
		}
		if _, ok := filterable[k]; ok {
			if q.Filters == nil {
				q.Filters = make(map[string]string)
			}
			q.Filters[k] = v.Get(k)
		}
	}
	return q.Normalize()
}

// Normalize clamps the page and limit and applies the default sort.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if strings.TrimSpace(q.Sort) == "" {
		q.Sort = DefaultSort
	}
	return q
}

// Offset is the number of records before the page.
func (q Query) Offset() int { return (q.Page - 1) * q.Limit }

// NewMeta builds page metadata for total matching records.
func NewMeta(q Query, total int64) Meta {
	pages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return Meta{Page: q.Page, Limit: q.Limit, Total: total, TotalPage: pages}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// periodStarts returns the UTC start of now's month and year.
func periodStarts(now time.Time) (month, year time.Time) {
	now = now.UTC()
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	year = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return month, year
}
