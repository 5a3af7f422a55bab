// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for issuing, rotating, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token record. An ID is generated when empty.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find looks up a refresh token by its token string and returns its metadata.
	// Implementations return common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Take removes the record and returns it in one atomic step. Of several
	// concurrent callers for the same token exactly one gets the record; the
	// others get common.ErrorNotFound.
	Take(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a non-existent
	// token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByUser revokes every session of userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired purges records whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
