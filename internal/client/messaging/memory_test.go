package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Basics(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	_, err := r.GetConversation(ctx, "c")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.ErrorIs(t, r.SaveMessage(ctx, Message{ConversationID: "c"}), common.ErrNotFound)

	require.NoError(t, r.CreateConversation(ctx, Conversation{ID: "c", ParticipantIDs: []string{"a", "b"}}))
	t0 := time.Unix(100, 0)
	require.NoError(t, r.SaveMessage(ctx, Message{ID: "2", ConversationID: "c", CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, r.SaveMessage(ctx, Message{ID: "1", ConversationID: "c", CreatedAt: t0}))
	require.NoError(t, r.SaveMessage(ctx, Message{ConversationID: "c", CreatedAt: t0.Add(2 * time.Second)}))

	msgs, err := r.GetMessages(ctx, "c", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "2", msgs[1].ID)
	assert.NotEmpty(t, msgs[2].ID)

	require.NoError(t, r.MarkViewed(ctx, "1"))
	msgs, err = r.GetMessages(ctx, "c", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotEqual(t, "1", msgs[0].ID)

	require.ErrorIs(t, r.MarkViewed(ctx, "missing"), common.ErrNotFound)

	require.NoError(t, r.DeleteConversation(ctx, "c"))
	msgs, err = r.GetMessages(ctx, "c", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
