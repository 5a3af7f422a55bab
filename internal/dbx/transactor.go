package dbx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transactor runs fn as one atomic unit of work. Repositories obtained from
// tx see the work in progress; everything is discarded if fn fails.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLTransactor is a Transactor over *sql.DB. Serialization failures and
// deadlocks reported by PostgreSQL are retried up to MaxRetries times.
type SQLTransactor struct {
	db         *sql.DB
	opts       *sql.TxOptions
	MaxRetries int
}

func NewSQLTransactor(db *sql.DB, opts *sql.TxOptions) *SQLTransactor {
	return &SQLTransactor{db: db, opts: opts, MaxRetries: 3}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	for attempt := 0; ; attempt++ {
		err := WithTx(ctx, t.db, t.opts, fn)
		if err == nil || !IsRetryable(err) || attempt >= t.MaxRetries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
}

// IsRetryable reports whether err is a PostgreSQL serialization_failure
// (40001) or deadlock_detected (40P01).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
