// Package db is the SQL query layer over the sqlite store, one file
// per aggregate.
package db

import (
	"context"
	"database/sql"

	"studiobron/internal/database"
)

const dateLayout = "2006-01-02"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs queries against the database or, inside WithTx, against
// one transaction.
type Store struct {
	db *database.DB
	q  queryer
}

func New(db *database.DB) *Store {
	return &Store{db: db, q: db.DB}
}

// WithTx runs fn with a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&Store{db: s.db, q: tx})
	})
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
