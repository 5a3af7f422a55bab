// Package tokens keeps the CLI's current session (one access/refresh token
// pair) between runs.
package tokens

import (
	"context"
	"time"
)

type Tokens struct {
	Email            string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Store persists at most one token pair. Load returns (nil, nil) when no
// session is stored.
type Store interface {
	Load(ctx context.Context) (*Tokens, error)
	Save(ctx context.Context, t *Tokens) error
	Clear(ctx context.Context) error
}
