package dbx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE preferences (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countPrefs(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM preferences`).Scan(&n))
	return n
}

func insertPair(ctx context.Context, tx DBTX) error {
	for _, k := range []string{"password_hash", "salt"} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO preferences(key, value) VALUES (?, ?)`, k, []byte(k)); err != nil {
			return err
		}
	}
	return nil
}

func TestWithTx_SQLite(t *testing.T) {
	ctx := context.Background()

	t.Run("commits both rows", func(t *testing.T) {
		db := openSQLite(t)
		require.NoError(t, WithTx(ctx, db, nil, insertPair))
		assert.Equal(t, 2, countPrefs(t, db))
	})

	t.Run("error keeps neither row", func(t *testing.T) {
		db := openSQLite(t)
		boom := errors.New("boom")
		err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insertPair(ctx, tx))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countPrefs(t, db))
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		db := openSQLite(t)
		assert.PanicsWithValue(t, "kaput", func() {
			_ = WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
				require.NoError(t, insertPair(ctx, tx))
				panic("kaput")
			})
		})
		assert.Equal(t, 0, countPrefs(t, db))
	})

	t.Run("works on a single connection", func(t *testing.T) {
		db := openSQLite(t)
		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, WithTx(ctx, conn, nil, insertPair))
		assert.Equal(t, 2, countPrefs(t, db))
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackErrorIsJoined(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	fnErr := errors.New("constraint failed")
	err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return fnErr })
	require.Error(t, err)
	assert.ErrorIs(t, err, fnErr)
	assert.Contains(t, err.Error(), "rollback: connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
