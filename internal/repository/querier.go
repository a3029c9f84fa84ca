package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk-crm/internal/persistence"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// letting repositories join an ambient transaction when one is open.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func querierFrom(ctx context.Context, fallback Querier) Querier {
	if tx, ok := persistence.TxFrom(ctx); ok {
		return tx
	}
	return fallback
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
