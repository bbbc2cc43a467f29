package core

import (
	"context"
	"database/sql"
)

// DB is the subset of *sql.DB the services need. Queries use $n
// placeholders numbered in order of first use, which both the sqlite3 and
// pgx drivers accept.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
