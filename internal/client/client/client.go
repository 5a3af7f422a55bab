package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/repositories/tokens"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client is the API surface the CLI uses. Methods returning a string pass
// through the server's confirmation message.
type Client interface {
	Register(ctx context.Context, name, email, password string) (string, error)
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	Login(ctx context.Context, email, password string) (*tokens.Tokens, error)
	Refresh(ctx context.Context) (*tokens.Tokens, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, email, otp, newPassword string) (string, error)
	Me(ctx context.Context) (*User, error)
	Session(ctx context.Context) (*tokens.Tokens, error)
}
