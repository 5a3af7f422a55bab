package passwordresets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, p *models.PasswordReset) error {
	query := `
		INSERT INTO password_resets (email, otp_code, otp_expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET otp_code = EXCLUDED.otp_code,
			otp_expires_at = EXCLUDED.otp_expires_at,
			created_at = EXCLUDED.created_at
	`
	if _, err := r.db.ExecContext(ctx, query, p.Email, p.OTPCode, p.OTPExpiresAt, p.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, email string) (*models.PasswordReset, error) {
	query := `
		SELECT email, otp_code, otp_expires_at, created_at
		FROM password_resets
		WHERE email = $1
	`
	return scanReset(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) Consume(ctx context.Context, email, code string, now time.Time) (*models.PasswordReset, error) {
	query := `
		DELETE FROM password_resets
		WHERE email = $1 AND otp_code = $2 AND otp_expires_at >= $3
		RETURNING email, otp_code, otp_expires_at, created_at
	`
	p, err := scanReset(r.db.QueryRowContext(ctx, query, email, code, now))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	current, err := r.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if current.Expired(now) {
		stale := `
			DELETE FROM password_resets
			WHERE email = $1 AND otp_expires_at < $2
		`
		if _, err := r.db.ExecContext(ctx, stale, email, now); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		return nil, common.ErrOTPExpired
	}
	return nil, common.ErrOTPMismatch
}

func (r *PostgresRepository) Delete(ctx context.Context, email string) error {
	query := `
		DELETE FROM password_resets
		WHERE email = $1
	`
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM password_resets
		WHERE otp_expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func scanReset(row *sql.Row) (*models.PasswordReset, error) {
	p := &models.PasswordReset{}
	if err := row.Scan(&p.Email, &p.OTPCode, &p.OTPExpiresAt, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}
