// Package memory is an in-process implementation of every repository, for
// local development and tests. All state is lost on exit.
package memory

import (
	"context"
	"database/sql"
	"maps"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordresets"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/pendingregistrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// Manager implements repomanager.RepositoryManager and dbx.Transactor.
//
// A single mutex guards all data. Repositories vended outside WithinTx take
// it per call; those vended from the handle passed to fn run under the lock
// already held by the transaction, which is rolled back from a snapshot if
// fn fails.
type Manager struct {
	mu sync.Mutex

	users         map[string]models.User
	usersByEmail  map[string]string
	refreshTokens map[string]models.RefreshToken
	pending       map[string]models.PendingRegistration
	resets        map[string]models.PasswordReset
}

func NewManager() *Manager {
	return &Manager{
		users:         map[string]models.User{},
		usersByEmail:  map[string]string{},
		refreshTokens: map[string]models.RefreshToken{},
		pending:       map[string]models.PendingRegistration{},
		resets:        map[string]models.PasswordReset{},
	}
}

// txHandle marks repositories vended inside WithinTx. It must never be used
// as a real database handle.
type txHandle struct {
	dbx.DBTX
}

func inTx(db dbx.DBTX) bool {
	_, ok := db.(txHandle)
	return ok
}

type snapshot struct {
	users         map[string]models.User
	usersByEmail  map[string]string
	refreshTokens map[string]models.RefreshToken
	pending       map[string]models.PendingRegistration
	resets        map[string]models.PasswordReset
}

func (m *Manager) snapshot() snapshot {
	return snapshot{
		users:         maps.Clone(m.users),
		usersByEmail:  maps.Clone(m.usersByEmail),
		refreshTokens: maps.Clone(m.refreshTokens),
		pending:       maps.Clone(m.pending),
		resets:        maps.Clone(m.resets),
	}
}

func (m *Manager) restore(s snapshot) {
	m.users = s.users
	m.usersByEmail = s.usersByEmail
	m.refreshTokens = s.refreshTokens
	m.pending = s.pending
	m.resets = s.resets
}

func (m *Manager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
		if err != nil {
			m.restore(snap)
		}
	}()

	return fn(ctx, txHandle{})
}

// lock acquires the data mutex unless the caller already runs inside WithinTx.
func (m *Manager) lock(tx bool) func() {
	if tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(db dbx.DBTX) users.Repository {
	return &userRepo{m: m, tx: inTx(db)}
}

func (m *Manager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return &refreshTokenRepo{m: m, tx: inTx(db)}
}

func (m *Manager) PendingRegistrations(db dbx.DBTX) pendingregistrations.Repository {
	return &pendingRepo{m: m, tx: inTx(db)}
}

func (m *Manager) PasswordResets(db dbx.DBTX) passwordresets.Repository {
	return &resetRepo{m: m, tx: inTx(db)}
}
