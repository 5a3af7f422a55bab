package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

type userRepo struct {
	m  *Manager
	tx bool
}

func (r *userRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	defer r.m.lock(r.tx)()

	if _, ok := r.m.usersByEmail[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.m.users[user.ID] = *user
	r.m.usersByEmail[user.Email] = user.ID
	return user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.m.lock(r.tx)()

	id, ok := r.m.usersByEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := r.m.users[id]
	return &u, nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	defer r.m.lock(r.tx)()

	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *userRepo) UpdatePassword(_ context.Context, id string, passwordHash string, updatedAt time.Time) error {
	defer r.m.lock(r.tx)()

	u, ok := r.m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt
	r.m.users[id] = u
	return nil
}
