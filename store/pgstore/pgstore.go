// Package pgstore implements store.Store on PostgreSQL through a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/store"
)

var dialect = store.Postgres

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn, pings the server and creates the records table when
// missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parsing dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 3 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping failed: %w", err)
	}
	s := &Store{pool: pool, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	pdfstamp.Logger().Info("pgsql store initialized", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return s, nil
}

// Migrate creates the records table and its index.
func (s *Store) Migrate(ctx context.Context) error {
	for _, q := range dialect.Schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("pgstore: migrating: %w", err)
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
	if _, err := s.pool.Exec(ctx, st.SQL, st.Args...); err != nil {
		return fmt.Errorf("pgstore: inserting %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	st := dialect.ByID(id)
	r, err := store.ScanRecord(s.pool.QueryRow(ctx, st.SQL, st.Args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, pdfstamp.Errorf("store get", "%w: record %s", pdfstamp.ErrNotFound, id)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("pgstore: reading %s: %w", id, err)
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
	if err := s.pool.QueryRow(ctx, count.SQL, count.Args...).Scan(&total); err != nil {
		return nil, store.Meta{}, fmt.Errorf("pgstore: counting: %w", err)
	}

	rows, err := s.pool.Query(ctx, page.SQL, page.Args...)
	if err != nil {
		return nil, store.Meta{}, fmt.Errorf("pgstore: listing: %w", err)
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
		return nil, store.Meta{}, fmt.Errorf("pgstore: listing: %w", err)
	}
	return out, store.NewMeta(q, total), nil
}

func (s *Store) Stats(ctx context.Context, owner string, now time.Time) (store.Stats, error) {
	st := dialect.Stats(owner, now)
	var out store.Stats
	if err := s.pool.QueryRow(ctx, st.SQL, st.Args...).Scan(&out.Total, &out.ThisMonth, &out.ThisYear); err != nil {
		return store.Stats{}, fmt.Errorf("pgstore: stats: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.pool == nil {
		return nil
	}
	pdfstamp.Logger().Info("closing pgsql store")
	s.pool.Close()
	return nil
}
