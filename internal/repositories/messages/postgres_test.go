package messages

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock, db
}

var (
	selectConversation = `(?s)^SELECT\s+id,\s*participants,\s*created_at\s+FROM\s+conversations\s+WHERE\s+id\s*=\s*\$1$`
	insertConversation = `(?s)^\s*INSERT\s+INTO\s+conversations\b.*ON\s+CONFLICT\s*\(id\)\s*DO\s+NOTHING\s*$`
	selectMessages     = `(?s)^\s*SELECT\s+id,\s*conversation_id.*FROM\s+messages\s+WHERE\s+conversation_id\s*=\s*\$1.*LIMIT\s+\$2.*ORDER\s+BY\s+created_at\s+ASC\s*$`
	insertMessage      = `(?s)^\s*INSERT\s+INTO\s+messages\b.*ON\s+CONFLICT\s*\(id\)\s*DO\s+UPDATE\s+SET\b.*$`
	updateViewed       = `^UPDATE\s+messages\s+SET\s+viewed\s*=\s*true\s+WHERE\s+id\s*=\s*\$1$`
	deleteConversation = `^DELETE\s+FROM\s+conversations\s+WHERE\s+id\s*=\s*\$1$`
)

var msgColumns = []string{"id", "conversation_id", "sender_id", "encrypted_content", "iv", "message_type",
	"created_at", "edited_at", "expires_at", "view_once", "viewed"}

func TestGetConversation_Found(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectConversation).WithArgs("a:b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "participants", "created_at"}).
			AddRow("a:b", []byte(`["a","b"]`), created))

	c, err := repo.GetConversation(context.Background(), "a:b")
	require.NoError(t, err)
	assert.Equal(t, &models.Conversation{ID: "a:b", ParticipantIDs: []string{"a", "b"}, CreatedAt: created}, c)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversation_NotFound(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(selectConversation).WithArgs("x").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetConversation(context.Background(), "x")
	require.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversation_BadParticipants(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(selectConversation).WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"id", "participants", "created_at"}).
			AddRow("x", []byte(`{`), time.Now()))

	_, err := repo.GetConversation(context.Background(), "x")
	require.ErrorContains(t, err, "decode participants")
}

func TestCreateConversation(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(insertConversation).
		WithArgs("a:b", []byte(`["a","b"]`), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateConversation(context.Background(), models.Conversation{
		ID: "a:b", ParticipantIDs: []string{"a", "b"}, CreatedAt: created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConversation_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(insertConversation).WillReturnError(errors.New("down"))

	err := repo.CreateConversation(context.Background(), models.Conversation{ID: "a:b"})
	require.ErrorContains(t, err, "db error")
}

func TestGetMessages_ScansNullableColumns(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	t0 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	exp := t0.Add(time.Hour)

	mock.ExpectQuery(selectMessages).
		WithArgs("c", sql.NullInt64{Int64: 50, Valid: true}).
		WillReturnRows(sqlmock.NewRows(msgColumns).
			AddRow("m1", "c", "alice", "Y3Q=", "aXY=", "TEXT", t0, nil, exp, false, false).
			AddRow("m2", "c", "bob", "s3://b/k", "aXY=", "IMAGE", t0.Add(time.Minute), t0.Add(2*time.Minute), nil, true, true))

	msgs, err := repo.GetMessages(context.Background(), "c", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, models.TypeText, msgs[0].Type)
	assert.Nil(t, msgs[0].EditedAt)
	require.NotNil(t, msgs[0].ExpiresAt)
	assert.True(t, msgs[0].ExpiresAt.Equal(exp))

	assert.Equal(t, models.TypeImage, msgs[1].Type)
	assert.Equal(t, "s3://b/k", msgs[1].EncryptedContent)
	require.NotNil(t, msgs[1].EditedAt)
	assert.Nil(t, msgs[1].ExpiresAt)
	assert.True(t, msgs[1].ViewOnce)
	assert.True(t, msgs[1].Viewed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessages_NoLimitPassesNull(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(selectMessages).
		WithArgs("c", sql.NullInt64{}).
		WillReturnRows(sqlmock.NewRows(msgColumns))

	msgs, err := repo.GetMessages(context.Background(), "c", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessages_Errors(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(selectMessages).WillReturnError(errors.New("down"))
	_, err := repo.GetMessages(context.Background(), "c", 1)
	require.ErrorContains(t, err, "db error")

	mock.ExpectQuery(selectMessages).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))
	_, err = repo.GetMessages(context.Background(), "c", 1)
	require.ErrorContains(t, err, "scan error")

	mock.ExpectQuery(selectMessages).
		WillReturnRows(sqlmock.NewRows(msgColumns).
			AddRow("m1", "c", "a", "x", "y", "TEXT", time.Now(), nil, nil, false, false).
			RowError(0, errors.New("row boom")))
	_, err = repo.GetMessages(context.Background(), "c", 1)
	require.ErrorContains(t, err, "rows error")
}

func TestSaveMessage(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	t0 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	exp := t0.Add(time.Hour)

	mock.ExpectExec(insertMessage).
		WithArgs("m1", "c", "alice", "Y3Q=", "aXY=", "TEXT", t0,
			sql.NullTime{}, sql.NullTime{Time: exp, Valid: true}, true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveMessage(context.Background(), models.Message{
		ID: "m1", ConversationID: "c", SenderID: "alice", EncryptedContent: "Y3Q=", IV: "aXY=",
		Type: models.TypeText, CreatedAt: t0, ExpiresAt: &exp, ViewOnce: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMessage_UnknownConversation(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(insertMessage).WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.SaveMessage(context.Background(), models.Message{ID: "m1", ConversationID: "nope"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveMessage_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(insertMessage).WillReturnError(errors.New("down"))

	err := repo.SaveMessage(context.Background(), models.Message{ID: "m1"})
	require.ErrorContains(t, err, "db error")
	require.False(t, errors.Is(err, common.ErrNotFound))
}

func TestMarkViewed(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(updateViewed).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkViewed(context.Background(), "m1"))

	mock.ExpectExec(updateViewed).WithArgs("m2").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkViewed(context.Background(), "m2"), common.ErrNotFound)

	mock.ExpectExec(updateViewed).WithArgs("m3").WillReturnError(errors.New("down"))
	require.ErrorContains(t, repo.MarkViewed(context.Background(), "m3"), "db error")

	mock.ExpectExec(updateViewed).WithArgs("m4").WillReturnResult(sqlmock.NewErrorResult(errors.New("ra")))
	require.ErrorContains(t, repo.MarkViewed(context.Background(), "m4"), "rows affected error")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteConversation(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(deleteConversation).WithArgs("c").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.DeleteConversation(context.Background(), "c"))

	mock.ExpectExec(deleteConversation).WithArgs("c").WillReturnError(errors.New("down"))
	require.ErrorContains(t, repo.DeleteConversation(context.Background(), "c"), "db error")

	require.NoError(t, mock.ExpectationsWereMet())
}

const purgeExpired = `(?s)^\s*DELETE\s+FROM\s+messages\s+WHERE\s+\(expires_at\s+IS\s+NOT\s+NULL\s+AND\s+expires_at\s*<=\s*\$1\)\s+OR\s+\(view_once\s+AND\s+viewed\)\s*$`

func TestPurgeExpired(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(purgeExpired).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpired_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(purgeExpired).WithArgs(now).WillReturnError(errors.New("boom"))

	_, err := repo.PurgeExpired(context.Background(), now)
	require.ErrorContains(t, err, "db error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpired_RowsAffectedError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(purgeExpired).WithArgs(now).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("no count")))

	_, err := repo.PurgeExpired(context.Background(), now)
	require.ErrorContains(t, err, "rows affected error")
}
