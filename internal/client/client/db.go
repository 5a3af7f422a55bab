package client

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/client/repositories/tokens"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the local SQLite file and brings
// its schema up to date.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenTokenStore is InitDatabase plus the session repository on top of it.
func OpenTokenStore(ctx context.Context, dsn string) (*tokens.SQLiteRepository, *sql.DB, error) {
	db, err := InitDatabase(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return tokens.NewSQLiteRepository(db), db, nil
}
