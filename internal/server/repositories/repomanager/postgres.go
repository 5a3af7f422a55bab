package repomanager

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordresets"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/pendingregistrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook. OTP challenges (pending registrations
// and password resets) can be moved to Redis with WithRedisChallenges.
type PostgresRepositoryManager struct {
	redis     redis.UniversalClient
	retention time.Duration
}

type Option func(*PostgresRepositoryManager)

// WithRedisChallenges stores pending registrations and password resets in
// Redis. Records are kept for retention after their code expires.
func WithRedisChallenges(client redis.UniversalClient, retention time.Duration) Option {
	return func(m *PostgresRepositoryManager) {
		m.redis = client
		m.retention = retention
	}
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...Option) *PostgresRepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// PendingRegistrations ignores db when challenges live in Redis.
func (m *PostgresRepositoryManager) PendingRegistrations(db dbx.DBTX) pendingregistrations.Repository {
	if m.redis != nil {
		return pendingregistrations.NewRedisRepository(m.redis, "", m.retention)
	}
	return pendingregistrations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) PasswordResets(db dbx.DBTX) passwordresets.Repository {
	if m.redis != nil {
		return passwordresets.NewRedisRepository(m.redis, "", m.retention)
	}
	return passwordresets.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
