// Package passwordresets stores outstanding forgot-password requests.
package passwordresets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository mirrors pendingregistrations.Repository for reset requests.
type Repository interface {
	// Upsert replaces any earlier request for the same email.
	Upsert(ctx context.Context, p *models.PasswordReset) error
	Get(ctx context.Context, email string) (*models.PasswordReset, error)
	// Consume atomically deletes the request if code matches and is still
	// valid at now. Errors: common.ErrorNotFound, common.ErrOTPExpired (stale
	// record removed), common.ErrOTPMismatch.
	Consume(ctx context.Context, email, code string, now time.Time) (*models.PasswordReset, error)
	Delete(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Restorer mirrors pendingregistrations.Restorer.
type Restorer interface {
	Restore(ctx context.Context, p *models.PasswordReset) error
}
