package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type refreshTokenRepo struct {
	m  *Manager
	tx bool
}

func (r *refreshTokenRepo) Create(_ context.Context, token *models.RefreshToken) error {
	defer r.m.lock(r.tx)()

	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if _, ok := r.m.refreshTokens[token.Token]; ok {
		return common.ErrorAlreadyExists
	}
	r.m.refreshTokens[token.Token] = *token
	return nil
}

func (r *refreshTokenRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	defer r.m.lock(r.tx)()

	t, ok := r.m.refreshTokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *refreshTokenRepo) Take(_ context.Context, token string) (*models.RefreshToken, error) {
	defer r.m.lock(r.tx)()

	t, ok := r.m.refreshTokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.m.refreshTokens, token)
	return &t, nil
}

func (r *refreshTokenRepo) Delete(_ context.Context, token string) error {
	defer r.m.lock(r.tx)()

	delete(r.m.refreshTokens, token)
	return nil
}

func (r *refreshTokenRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	defer r.m.lock(r.tx)()

	var n int64
	for k, t := range r.m.refreshTokens {
		if t.UserID == userID {
			delete(r.m.refreshTokens, k)
			n++
		}
	}
	return n, nil
}

func (r *refreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.m.lock(r.tx)()

	var n int64
	for k, t := range r.m.refreshTokens {
		if t.ExpiresAt.Before(now) {
			delete(r.m.refreshTokens, k)
			n++
		}
	}
	return n, nil
}
