package database

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx. Store types accept
// a Querier rather than a *Database so that the orchestrator can run a
// whole request's worth of topic/idea/edge writes inside one
// transaction (per the per-request isolation model), while read-only
// callers may pass the pooled *sql.DB directly.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// NullString returns sql.NullString for s, treating "" as NULL — the
// teacher's convention for optional text columns.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
