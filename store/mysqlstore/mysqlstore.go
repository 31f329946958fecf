// Package mysqlstore implements store.Store on MySQL through database/sql and
// go-sql-driver/mysql.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/store"
)

var dialect = store.MySQL

// Store is a MySQL-backed store.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Config parses dsn and forces the settings the store relies on: DATETIME
// columns scan into time.Time and are read and written in UTC.
func Config(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: parsing dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// Open connects to dsn, pings the server and creates the records table when
// missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := Config(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlstore: ping failed: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	pdfstamp.Logger().Info("mysql store initialized", "addr", cfg.Addr, "database", cfg.DBName)
	return s, nil
}

// Migrate creates the records table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, q := range dialect.Schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mysqlstore: migrating: %w", err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, r *store.Record) error {
	store.Prepare(r, s.now())
	st, err := dialect.Insert(*r)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return fmt.Errorf("mysqlstore: inserting %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	st := dialect.ByID(id)
	r, err := store.ScanRecord(s.db.QueryRowContext(ctx, st.SQL, st.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, pdfstamp.Errorf("store get", "%w: record %s", pdfstamp.ErrNotFound, id)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("mysqlstore: reading %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, owner string, q store.Query) ([]store.Record, store.Meta, error) {
	q = q.Normalize()
	page, count, err := dialect.List(owner, q)
	if err != nil {
		return nil, store.Meta{}, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, count.SQL, count.Args...).Scan(&total); err != nil {
		return nil, store.Meta{}, fmt.Errorf("mysqlstore: counting: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, page.SQL, page.Args...)
	if err != nil {
		return nil, store.Meta{}, fmt.Errorf("mysqlstore: listing: %w", err)
	}
	defer rows.Close()
	var out []store.Record
	for rows.Next() {
		r, err := store.ScanRecord(rows)
		if err != nil {
			return nil, store.Meta{}, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Meta{}, fmt.Errorf("mysqlstore: listing: %w", err)
	}
	return out, store.NewMeta(q, total), nil
}

func (s *Store) Stats(ctx context.Context, owner string, now time.Time) (store.Stats, error) {
	st := dialect.Stats(owner, now)
	var out store.Stats
	if err := s.db.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&out.Total, &out.ThisMonth, &out.ThisYear); err != nil {
		return store.Stats{}, fmt.Errorf("mysqlstore: stats: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	pdfstamp.Logger().Info("closing mysql store")
	return s.db.Close()
}
