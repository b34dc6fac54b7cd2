package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Expired(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Second), now.Add(time.Second)

	assert.False(t, Message{}.Expired(now))
	assert.True(t, Message{ExpiresAt: &past}.Expired(now))
	assert.True(t, Message{ExpiresAt: &now}.Expired(now))
	assert.False(t, Message{ExpiresAt: &future}.Expired(now))
}

func TestMessage_JSONFieldNames(t *testing.T) {
	m := Message{ID: "m1", ConversationID: "a:b", Type: TypeImage, ViewOnce: true}
	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "IMAGE", fields["message_type"])
	assert.Equal(t, "a:b", fields["conversation_id"])
	assert.Equal(t, true, fields["view_once"])
	assert.NotContains(t, fields, "expires_at")
	assert.NotContains(t, fields, "edited_at")
}
