package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// queryable abstracts over a connection pool and a transaction so the
// same repository code can run standalone or inside WithTransaction.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// quoteIdent quotes a dynamic identifier (per-snapshot table names,
// bucket column names) for direct inclusion in SQL text.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// parseDecimal converts a numeric value selected as text. Amounts cross
// the wire as text so no binary float ever touches them.
func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse numeric value %q: %w", s, err)
	}
	return d, nil
}
