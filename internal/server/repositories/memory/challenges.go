package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type pendingRepo struct {
	m  *Manager
	tx bool
}

func (r *pendingRepo) Upsert(_ context.Context, p *models.PendingRegistration) error {
	defer r.m.lock(r.tx)()
	r.m.pending[p.Email] = *p
	return nil
}

func (r *pendingRepo) Get(_ context.Context, email string) (*models.PendingRegistration, error) {
	defer r.m.lock(r.tx)()

	p, ok := r.m.pending[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *pendingRepo) Consume(_ context.Context, email, code string, now time.Time) (*models.PendingRegistration, error) {
	defer r.m.lock(r.tx)()

	p, ok := r.m.pending[email]
	switch {
	case !ok:
		return nil, common.ErrorNotFound
	case p.Expired(now):
		delete(r.m.pending, email)
		return nil, common.ErrOTPExpired
	case p.OTPCode != code:
		return nil, common.ErrOTPMismatch
	}
	delete(r.m.pending, email)
	return &p, nil
}

func (r *pendingRepo) Delete(_ context.Context, email string) error {
	defer r.m.lock(r.tx)()
	delete(r.m.pending, email)
	return nil
}

func (r *pendingRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.m.lock(r.tx)()

	var n int64
	for k, p := range r.m.pending {
		if p.OTPExpiresAt.Before(now) {
			delete(r.m.pending, k)
			n++
		}
	}
	return n, nil
}

type resetRepo struct {
	m  *Manager
	tx bool
}

func (r *resetRepo) Upsert(_ context.Context, p *models.PasswordReset) error {
	defer r.m.lock(r.tx)()
	r.m.resets[p.Email] = *p
	return nil
}

func (r *resetRepo) Get(_ context.Context, email string) (*models.PasswordReset, error) {
	defer r.m.lock(r.tx)()

	p, ok := r.m.resets[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *resetRepo) Consume(_ context.Context, email, code string, now time.Time) (*models.PasswordReset, error) {
	defer r.m.lock(r.tx)()

	p, ok := r.m.resets[email]
	switch {
	case !ok:
		return nil, common.ErrorNotFound
	case p.Expired(now):
		delete(r.m.resets, email)
		return nil, common.ErrOTPExpired
	case p.OTPCode != code:
		return nil, common.ErrOTPMismatch
	}
	delete(r.m.resets, email)
	return &p, nil
}

func (r *resetRepo) Delete(_ context.Context, email string) error {
	defer r.m.lock(r.tx)()
	delete(r.m.resets, email)
	return nil
}

func (r *resetRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.m.lock(r.tx)()

	var n int64
	for k, p := range r.m.resets {
		if p.OTPExpiresAt.Before(now) {
			delete(r.m.resets, k)
			n++
		}
	}
	return n, nil
}
