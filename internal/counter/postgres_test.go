package counter

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, "hits", 0), mock
}

func TestPostgresStoreIncrement(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "hits" (path, hits) VALUES ($1, 1) ON CONFLICT (path) DO UPDATE SET hits = "hits".hits + 1 RETURNING hits`,
	)).WithArgs("/hello").WillReturnRows(sqlmock.NewRows([]string{"hits"}).AddRow(1))

	n, err := s.Increment(context.Background(), "/hello")
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n != 1 {
		t.Errorf("Increment = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStoreIncrementError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	boom := errors.New("connection refused")

	mock.ExpectQuery("INSERT INTO").WithArgs("/hello").WillReturnError(boom)

	_, err := s.Increment(context.Background(), "/hello")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestPostgresStoreGet(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hits FROM "hits" WHERE path = $1`)).
		WithArgs("/test").
		WillReturnRows(sqlmock.NewRows([]string{"hits"}).AddRow(6))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hits FROM "hits" WHERE path = $1`)).
		WithArgs("/unseen").
		WillReturnError(sql.ErrNoRows)

	if n, err := s.Get(context.Background(), "/test"); err != nil || n != 6 {
		t.Errorf("Get(/test) = %d, %v", n, err)
	}
	if n, err := s.Get(context.Background(), "/unseen"); err != nil || n != 0 {
		t.Errorf("Get(/unseen) = %d, %v", n, err)
	}
}

func TestPostgresStoreList(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT path, hits FROM "hits" ORDER BY hits DESC, path LIMIT $1`)).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"path", "hits"}).AddRow("/b", 9).AddRow("/a", 3))

	got, err := s.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0] != (Record{"/b", 9}) || got[1] != (Record{"/a", 3}) {
		t.Errorf("List = %v", got)
	}
}

func TestPostgresStoreEnsureSchema(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "hits"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStoreQuotesTable(t *testing.T) {
	s := NewPostgresStore(nil, `hits"; DROP TABLE x; --`, 0)
	want := `SELECT hits FROM "hits""; DROP TABLE x; --" WHERE path = $1`
	if s.getSQL != want {
		t.Errorf("getSQL = %s", s.getSQL)
	}
}
