// Package pendingregistrations stores sign-ups awaiting OTP verification.
// PostgreSQL and Redis implementations are provided.
package pendingregistrations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// Upsert creates the pending registration for p.Email or replaces the
	// existing one, which invalidates any previously issued code.
	Upsert(ctx context.Context, p *models.PendingRegistration) error

	// Get returns common.ErrorNotFound when there is no record for email.
	Get(ctx context.Context, email string) (*models.PendingRegistration, error)

	// Consume deletes and returns the record in one atomic step, provided the
	// code matches exactly and has not expired at now. Otherwise it returns
	// common.ErrorNotFound, common.ErrOTPExpired (after deleting the stale
	// record) or common.ErrOTPMismatch. Expiry is checked before the code.
	Consume(ctx context.Context, email, code string, now time.Time) (*models.PendingRegistration, error)

	Delete(ctx context.Context, email string) error

	// DeleteExpired purges records whose code expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Restorer is implemented by stores that do not take part in the SQL
// transaction. Restore undoes a Consume when the unit of work around it fails.
type Restorer interface {
	Restore(ctx context.Context, p *models.PendingRegistration) error
}
