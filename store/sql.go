package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Table is the name of the records table.
const Table = "pdf_records"

// column maps API field names to columns.
type column string

var sortable = map[string]column{
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"fileName":      "file_name",
	"firstName":     "first_name",
	"lastName":      "last_name",
	"fileSizeBytes": "size_bytes",
}

var filterable = map[string]column{
	"fileName":  "file_name",
	"firstName": "first_name",
	"lastName":  "last_name",
}

var searchable = []column{"first_name", "last_name", "file_name"}

const recordColumns = "id, owner_id, file_name, file_path, size_bytes, first_name, last_name, fields, created_at, updated_at"

// Dialect renders the statements for one SQL database.
type Dialect struct {
	Name        string
	Placeholder byte     // '?' for anonymous, '$' for ordinal placeholders
	Like        string   // case-insensitive match operator
	Schema      []string // statements creating the table, run in order
}

// Postgres is the dialect for pgstore.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: '$',
	Like:        "ILIKE",
	Schema: []string{`CREATE TABLE IF NOT EXISTS ` + Table + ` (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	fields      TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS ` + Table + `_owner_created ON ` + Table + ` (owner_id, created_at)`,
	},
}

// MySQL is the dialect for mysqlstore. Its default collations compare
// case-insensitively, so LIKE suffices.
var MySQL = Dialect{
	Name:        "mysql",
	Placeholder: '?',
	Like:        "LIKE",
	Schema: []string{`CREATE TABLE IF NOT EXISTS ` + Table + ` (
	id          VARCHAR(36) PRIMARY KEY,
	owner_id    VARCHAR(64) NOT NULL,
	file_name   VARCHAR(255) NOT NULL,
	file_path   VARCHAR(255) NOT NULL,
	size_bytes  BIGINT NOT NULL,
	first_name  VARCHAR(255) NOT NULL DEFAULT '',
	last_name   VARCHAR(255) NOT NULL DEFAULT '',
	fields      MEDIUMTEXT NOT NULL,
	created_at  DATETIME(3) NOT NULL,
	updated_at  DATETIME(3) NOT NULL,
	INDEX ` + Table + `_owner_created (owner_id, created_at)
)`},
}

// Statement is SQL text with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

// rebind rewrites '?' placeholders into the dialect's form.
func (d Dialect) rebind(sql string) string {
	if d.Placeholder == '?' || d.Placeholder == 0 {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 1
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			b.WriteByte(sql[i])
			continue
		}
		b.WriteByte(d.Placeholder)
		b.WriteString(strconv.Itoa(n))
		n++
	}
	return b.String()
}

func (d Dialect) stmt(sql string, args ...any) Statement {
	return Statement{SQL: d.rebind(sql), Args: args}
}

// Insert returns the statement inserting r.
func (d Dialect) Insert(r Record) (Statement, error) {
	fields, err := encodeFields(r.Fields)
	if err != nil {
		return Statement{}, err
	}
	return d.stmt(
		"INSERT INTO "+Table+" ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.OwnerID, r.FileName, r.FilePath, r.SizeBytes, r.FirstName, r.LastName, fields, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	), nil
}

// ByID returns the statement selecting one record.
func (d Dialect) ByID(id string) Statement {
	return d.stmt("SELECT "+recordColumns+" FROM "+Table+" WHERE id = ?", id)
}

// List returns the statements selecting one page of an owner's records and
// counting all of the owner's matching records. Unknown sort fields are an
// error; unknown filter fields are ignored.
func (d Dialect) List(owner string, q Query) (page, count Statement, err error) {
	q = q.Normalize()
	where, args := d.where(owner, q)
	order, err := orderBy(q.Sort)
	if err != nil {
		return Statement{}, Statement{}, err
	}

	count = d.stmt("SELECT COUNT(*) FROM "+Table+where, args...)
	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
	page = d.stmt("SELECT "+recordColumns+" FROM "+Table+where+order+" LIMIT ? OFFSET ?", pageArgs...)
	return page, count, nil
}

func (d Dialect) where(owner string, q Query) (string, []any) {
	var b strings.Builder
	args := []any{owner}
	b.WriteString(" WHERE owner_id = ?")

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		if _, ok := filterable[k]; ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " AND %s = ?", filterable[k])
		args = append(args, q.Filters[k])
	}

	if q.SearchTerm != "" {
		pattern := "%" + escapeLike(q.SearchTerm) + "%"
		b.WriteString(" AND (")
		for i, c := range searchable {
			if i > 0 {
				b.WriteString(" OR ")
			}
			fmt.Fprintf(&b, "%s %s ?", c, d.Like)
			args = append(args, pattern)
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func orderBy(sort string) (string, error) {
	var parts []string
	for _, f := range strings.Split(sort, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		dir := " ASC"
		if name, ok := strings.CutPrefix(f, "-"); ok {
			f, dir = name, " DESC"
		}
		c, ok := sortable[f]
		if !ok {
			return "", fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, f)
		}
		parts = append(parts, string(c)+dir)
	}
	if len(parts) == 0 {
		return "", nil
	}
	// id breaks ties so pages are stable.
	return " ORDER BY " + strings.Join(parts, ", ") + ", id ASC", nil
}

// Stats returns the statement counting an owner's records in total, this
// month and this year.
func (d Dialect) Stats(owner string, now time.Time) Statement {
	month, year := periodStarts(now)
	return d.stmt(
		"SELECT COUNT(*),"+
			" COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),"+
			" COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)"+
			" FROM "+Table+" WHERE owner_id = ?",
		month, year, owner,
	)
}

// Scanner is a single result row: pgx.Row, *sql.Row and *sql.Rows all
// satisfy it.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRecord reads a row selected with the record columns.
func ScanRecord(s Scanner) (Record, error) {
	var (
		r      Record
		fields string
	)
	if err := s.Scan(&r.ID, &r.OwnerID, &r.FileName, &r.FilePath, &r.SizeBytes, &r.FirstName, &r.LastName, &fields, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Record{}, err
	}
	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return Record{}, fmt.Errorf("store: decoding fields of %s: %w", r.ID, err)
		}
	}
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return r, nil
}

func encodeFields(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: encoding fields: %w", err)
	}
	return string(b), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
