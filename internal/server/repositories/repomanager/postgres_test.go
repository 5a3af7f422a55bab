package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordresets"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/pendingregistrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	if _, ok := m.Users(db).(*users.PostgresRepository); !ok {
		t.Fatal("Users() is not postgres")
	}
	if _, ok := m.RefreshTokens(db).(*refreshtokens.PostgresRepository); !ok {
		t.Fatal("RefreshTokens() is not postgres")
	}
	if _, ok := m.PendingRegistrations(db).(*pendingregistrations.PostgresRepository); !ok {
		t.Fatal("PendingRegistrations() is not postgres")
	}
	if _, ok := m.PasswordResets(db).(*passwordresets.PostgresRepository); !ok {
		t.Fatal("PasswordResets() is not postgres")
	}
}

func TestFactories_RedisChallenges(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewPostgresRepositoryManager(WithRedisChallenges(client, time.Hour))

	if _, ok := m.PendingRegistrations(db).(*pendingregistrations.RedisRepository); !ok {
		t.Fatal("PendingRegistrations() is not redis")
	}
	if _, ok := m.PasswordResets(db).(*passwordresets.RedisRepository); !ok {
		t.Fatal("PasswordResets() is not redis")
	}
	if _, ok := m.Users(db).(*users.PostgresRepository); !ok {
		t.Fatal("Users() must stay on postgres")
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
