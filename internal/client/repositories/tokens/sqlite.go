package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Load(ctx context.Context) (*Tokens, error) {
	var (
		t                 Tokens
		accessAt, refresh int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT email, access_token, refresh_token, access_expires_at, refresh_expires_at
		FROM session WHERE id = 1`,
	).Scan(&t.Email, &t.AccessToken, &t.RefreshToken, &accessAt, &refresh)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	t.AccessExpiresAt = time.Unix(accessAt, 0).UTC()
	t.RefreshExpiresAt = time.Unix(refresh, 0).UTC()
	return &t, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, t *Tokens) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session (id, email, access_token, refresh_token, access_expires_at, refresh_expires_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			access_expires_at = excluded.access_expires_at,
			refresh_expires_at = excluded.refresh_expires_at
	`, t.Email, t.AccessToken, t.RefreshToken, t.AccessExpiresAt.Unix(), t.RefreshExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
