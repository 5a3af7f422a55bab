// Package repomanager vends repositories bound to a database handle, so a
// service can use the same repositories with *sql.DB or inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordresets"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/pendingregistrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	PendingRegistrations(db dbx.DBTX) pendingregistrations.Repository
	PasswordResets(db dbx.DBTX) passwordresets.Repository
}
