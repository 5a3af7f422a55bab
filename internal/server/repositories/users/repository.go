// Package users declares the repository contract for verified accounts and
// its PostgreSQL implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts user. An ID is generated when empty. A duplicate email
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByEmail returns common.ErrorNotFound when no user has that email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// UpdatePassword replaces the stored hash.
	UpdatePassword(ctx context.Context, id string, passwordHash string, updatedAt time.Time) error
}
