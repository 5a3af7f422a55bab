package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var tokenCols = []string{"id", "user_id", "token", "expires_at", "created_at"}

const (
	insertQ  = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`
	findQ    = `(?s)^\s*SELECT\s+id,\s*user_id,\s*token,\s*expires_at,\s*created_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	takeQ    = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s+RETURNING\s+id,\s*user_id,\s*token,\s*expires_at,\s*created_at\s*$`
	deleteQ  = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	byUserQ  = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s*$`
	expiredQ = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<\s*\$1\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(insertQ).
		WithArgs(sqlmock.AnyArg(), "u1", "tok123", exp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rt := &models.RefreshToken{UserID: "u1", Token: "tok123", ExpiresAt: exp}
	if err := repo.Create(context.Background(), rt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.ID == "" {
		t.Fatal("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.RefreshToken{ID: "id", UserID: "u1", Token: "tok123"})
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFind_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(10 * time.Minute)
	rows := sqlmock.NewRows(tokenCols).AddRow("id1", "u1", "tok123", expires, time.Now())

	mock.ExpectQuery(findQ).
		WithArgs("tok123").
		WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "tok123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "u1" || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestFind_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(findQ).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFind_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(findQ).
		WithArgs("tok123").
		WillReturnError(errors.New("db err"))

	_, err := repo.Find(context.Background(), "tok123")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestTake_ReturnsDeletedRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(takeQ).
		WithArgs("tok123").
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("id1", "u1", "tok123", expires, time.Now()))

	got, err := repo.Take(context.Background(), "tok123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "id1" || got.Token != "tok123" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestTake_AlreadyConsumed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(takeQ).
		WithArgs("tok123").
		WillReturnRows(sqlmock.NewRows(tokenCols))

	_, err := repo.Take(context.Background(), "tok123")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQ).
		WithArgs("tok123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "tok123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQ).
		WithArgs("tok123").
		WillReturnError(errors.New("db err"))

	err := repo.Delete(context.Background(), "tok123")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(byUserQ).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 rows, got %d", n)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(expiredQ).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 rows, got %d", n)
	}
}
