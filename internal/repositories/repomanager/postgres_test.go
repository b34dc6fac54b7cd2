package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func stubOpen(t *testing.T, db *sql.DB, err error) {
	t.Helper()
	orig := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" {
			t.Fatalf("unexpected driver %q", driver)
		}
		return db, err
	}
	t.Cleanup(func() { sqlOpen = orig })
}

func stubGoose(t *testing.T, err error) *int {
	t.Helper()
	calls := 0
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		calls++
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return err
	}
	t.Cleanup(func() { gooseUpContext = orig })
	return &calls
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &PostgresRepositoryManager{}
	if r := m.Messages(db); r == nil {
		t.Fatal("Messages() nil")
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()
	calls := stubGoose(t, nil)

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected one goose call, got %d", *calls)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()
	stubGoose(t, errors.New("boom"))

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestOpen_Success(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()
	mock.ExpectPing()
	stubOpen(t, db, nil)
	stubGoose(t, nil)

	gotDB, repo, err := Open(context.Background(), "postgres://x")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if gotDB != db || repo == nil {
		t.Fatal("unexpected results from Open")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpen_OpenError(t *testing.T) {
	stubOpen(t, nil, errors.New("bad dsn"))

	if _, _, err := Open(context.Background(), "::"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpen_PingError(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()
	stubOpen(t, db, nil)
	calls := stubGoose(t, nil)

	_, _, err := Open(context.Background(), "postgres://x")
	if err == nil {
		t.Fatal("expected ping error")
	}
	if *calls != 0 {
		t.Fatal("migrations must not run when ping fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpen_MigrationError(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing()
	mock.ExpectClose()
	stubOpen(t, db, nil)
	stubGoose(t, errors.New("boom"))

	_, _, err := Open(context.Background(), "postgres://x")
	if err == nil {
		t.Fatal("expected migration error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
