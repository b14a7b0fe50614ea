package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestChatReturnsResponse(t *testing.T) {
	h := NewChatHandler(newTestContainer(t))

	rec := invoke(t, h.Chat, http.MethodPost, "/api/chat", map[string]any{
		"message": "hello",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.Bytes()
	assert.Equal(t, "hi there", gjson.GetBytes(body, "data.response").String())

	conversationID := gjson.GetBytes(body, "data.conversation_id").String()
	require.NotEmpty(t, conversationID)

	rec = invoke(t, h.GetConversation, http.MethodGet, "/api/chat/conversations/"+conversationID, nil,
		map[string]string{"id": conversationID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.GetBytes(rec.Body.Bytes(), "data.messages.#").Int())
}

func TestChatRequiresMessage(t *testing.T) {
	h := NewChatHandler(newTestContainer(t))

	rec := invoke(t, h.Chat, http.MethodPost, "/api/chat", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChatStreamEmitsEvents(t *testing.T) {
	h := NewChatHandler(newTestContainer(t))

	rec := invoke(t, h.ChatStream, http.MethodPost, "/api/chat/stream", map[string]any{
		"message": "hello",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "hi there")
	assert.Contains(t, body, `"done":true`)
	assert.Contains(t, body, `"complete":true`)
}

func TestGetStreamBufferMissing(t *testing.T) {
	h := NewChatHandler(newTestContainer(t))

	rec := invoke(t, h.GetStreamBuffer, http.MethodGet, "/api/chat/stream/ghost", nil,
		map[string]string{"response_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
