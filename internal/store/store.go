package store

import (
	"context"
	"database/sql"
)

// dbtx is the subset of *sql.DB / *sql.Tx the repositories need, so the
// same statements run standalone or inside the migration transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
