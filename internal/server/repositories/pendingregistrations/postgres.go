package pendingregistrations

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

func (r *PostgresRepository) Upsert(ctx context.Context, p *models.PendingRegistration) error {
	query := `
		INSERT INTO pending_registrations (email, display_name, password_hash, otp_code, otp_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			password_hash = EXCLUDED.password_hash,
			otp_code = EXCLUDED.otp_code,
			otp_expires_at = EXCLUDED.otp_expires_at,
			created_at = EXCLUDED.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.Email, p.DisplayName, p.PasswordHash, p.OTPCode, p.OTPExpiresAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, email string) (*models.PendingRegistration, error) {
	query := `
		SELECT email, display_name, password_hash, otp_code, otp_expires_at, created_at
		FROM pending_registrations
		WHERE email = $1
	`
	return scanPending(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) Consume(ctx context.Context, email, code string, now time.Time) (*models.PendingRegistration, error) {
	query := `
		DELETE FROM pending_registrations
		WHERE email = $1 AND otp_code = $2 AND otp_expires_at >= $3
		RETURNING email, display_name, password_hash, otp_code, otp_expires_at, created_at
	`
	p, err := scanPending(r.db.QueryRowContext(ctx, query, email, code, now))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	// Nothing consumed; work out why.
	current, err := r.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if current.Expired(now) {
		stale := `
			DELETE FROM pending_registrations
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
		DELETE FROM pending_registrations
		WHERE email = $1
	`
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM pending_registrations
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

func scanPending(row *sql.Row) (*models.PendingRegistration, error) {
	p := &models.PendingRegistration{}
	err := row.Scan(&p.Email, &p.DisplayName, &p.PasswordHash, &p.OTPCode, &p.OTPExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}
