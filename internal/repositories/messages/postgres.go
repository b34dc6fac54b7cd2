// Package messages is the PostgreSQL implementation of the conversation and
// message repository used by the messaging service. Rows carry ciphertext and
// references only.
package messages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/dbx"
	"github.com/dmitrijs2005/cryptchat/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgForeignKeyViolation = "23503"

var _ models.Repository = (*PostgresRepository)(nil)

// PostgresRepository implements models.Repository over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT id, participants, created_at FROM conversations WHERE id = $1`

	var (
		c   models.Conversation
		raw []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &raw, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(raw, &c.ParticipantIDs); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return &c, nil
}

// CreateConversation inserts c; an existing conversation with the same id
// is left untouched.
func (r *PostgresRepository) CreateConversation(ctx context.Context, c models.Conversation) error {
	participants, err := json.Marshal(c.ParticipantIDs)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO conversations (id, participants, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, c.ID, participants, c.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetMessages returns the newest limit messages, oldest first. limit <= 0
// returns all of them.
func (r *PostgresRepository) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, encrypted_content, iv, message_type,
		       created_at, edited_at, expires_at, view_once, viewed
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	rows, err := r.db.QueryContext(ctx, query, conversationID, lim)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var (
			m               models.Message
			msgType         string
			edited, expires sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.EncryptedContent, &m.IV, &msgType,
			&m.CreatedAt, &edited, &expires, &m.ViewOnce, &m.Viewed); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		m.Type = models.MessageType(msgType)
		m.EditedAt = timePtr(edited)
		m.ExpiresAt = timePtr(expires)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// SaveMessage inserts m, or updates the mutable fields of an existing
// message with the same id (edit). Saving into an unknown conversation
// returns common.ErrNotFound.
func (r *PostgresRepository) SaveMessage(ctx context.Context, m models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, encrypted_content, iv, message_type,
		                      created_at, edited_at, expires_at, view_once, viewed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			encrypted_content = EXCLUDED.encrypted_content,
			iv = EXCLUDED.iv,
			edited_at = EXCLUDED.edited_at,
			viewed = EXCLUDED.viewed
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.EncryptedContent, m.IV, string(m.Type),
		m.CreatedAt, nullTime(m.EditedAt), nullTime(m.ExpiresAt), m.ViewOnce, m.Viewed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("conversation %s: %w", m.ConversationID, common.ErrNotFound)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkViewed(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET viewed = true WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	return nil
}

// DeleteConversation removes the conversation and, by cascade, its
// messages. Deleting an unknown conversation is not an error.
func (r *PostgresRepository) DeleteConversation(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// PurgeExpired deletes messages whose expiry is at or before now and
// view-once messages that have been viewed. It returns the number removed.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM messages
		WHERE (expires_at IS NOT NULL AND expires_at <= $1)
		   OR (view_once AND viewed)
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
