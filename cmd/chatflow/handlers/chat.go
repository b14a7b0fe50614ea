package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/common/response"
	"github.com/lyzr/chatflow/common/stream"
)

// streamPollInterval is how often the SSE loop drains new buffer chunks
const streamPollInterval = 50 * time.Millisecond

// ChatHandler handles chat requests over plain HTTP, SSE, and websockets
type ChatHandler struct {
	container *container.Container
	upgrader  websocket.Upgrader
}

// NewChatHandler creates a new chat handler
func NewChatHandler(c *container.Container) *ChatHandler {
	return &ChatHandler{
		container: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced by the CORS middleware
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Chat handles a single chat turn
// POST /api/chat
func (h *ChatHandler) Chat(c echo.Context) error {
	var req models.ChatRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid chat payload")
	}
	if req.Message == "" {
		return response.ValidationError(c, "message is required")
	}

	resp, err := h.container.ChatAgent.Chat(c.Request().Context(), &req)
	if err != nil {
		h.container.Components.Logger.WithContext(c.Request().Context()).
			Error("chat failed", "error", err)
		return response.Internal(c, "chat failed")
	}
	return response.Success(c, resp)
}

// ChatStream handles a chat turn streamed as server-sent events. Chunks are
// drained from the response buffer while the agent runs, so a dropped client
// can replay the partial via the buffer registry.
// POST /api/chat/stream
func (h *ChatHandler) ChatStream(c echo.Context) error {
	var req models.ChatRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid chat payload")
	}
	if req.Message == "" {
		return response.ValidationError(c, "message is required")
	}

	ctx := c.Request().Context()
	responseID := uuid.New().String()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Response-Id", responseID)
	w.WriteHeader(http.StatusOK)

	type outcome struct {
		resp *models.ChatResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h.container.ChatAgent.ChatStream(ctx, &req, responseID)
		done <- outcome{resp: resp, err: err}
	}()

	registry := h.container.Components.Streams
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			sent = h.flushChunks(c, registry, responseID, sent)

		case result := <-done:
			sent = h.flushChunks(c, registry, responseID, sent)
			return h.writeFinalEvent(c, registry, responseID, result.resp, result.err)
		}
	}
}

// flushChunks writes any buffer chunks the client has not seen yet
func (h *ChatHandler) flushChunks(c echo.Context, registry *stream.Registry, responseID string, sent int) int {
	buf, err := registry.Get(responseID)
	if err != nil {
		return sent
	}
	chunks := buf.Chunks()
	for ; sent < len(chunks); sent++ {
		h.writeEvent(c, models.StreamEvent{
			Chunk:      chunks[sent],
			ResponseID: responseID,
		})
	}
	return sent
}

func (h *ChatHandler) writeFinalEvent(c echo.Context, registry *stream.Registry, responseID string, resp *models.ChatResponse, chatErr error) error {
	event := models.StreamEvent{
		ResponseID: responseID,
		Done:       true,
	}
	if buf, err := registry.Get(responseID); err == nil {
		event.Complete = buf.Complete()
		event.Partial = !buf.Complete() && buf.Content() != ""
		event.Error = buf.Err()
	}
	if chatErr != nil && event.Error == "" {
		event.Error = chatErr.Error()
	}

	h.writeEvent(c, event)

	if resp != nil {
		h.writeNamedEvent(c, "response", resp)
	}
	return nil
}

func (h *ChatHandler) writeEvent(c echo.Context, event models.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()
}

func (h *ChatHandler) writeNamedEvent(c echo.Context, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", name, data)
	c.Response().Flush()
}

type wsError struct {
	Error string `json:"error"`
}

// ChatWS runs a chat session over a websocket. Each inbound frame is one
// chat request; the connection closes after the configured idle timeout.
// GET /api/ws/chat
func (h *ChatHandler) ChatWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	log := h.container.Components.Logger.WithContext(ctx)
	idleTimeout := h.container.Components.Config.WebSocket.IdleTimeout

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return nil
		}

		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket closed unexpectedly", "error", err)
			}
			return nil
		}

		if req.Message == "" {
			if err := conn.WriteJSON(wsError{Error: "message is required"}); err != nil {
				return nil
			}
			continue
		}

		resp, err := h.container.ChatAgent.Chat(ctx, &req)
		if err != nil {
			log.Error("websocket chat failed", "error", err)
			if err := conn.WriteJSON(wsError{Error: "chat failed"}); err != nil {
				return nil
			}
			continue
		}

		if err := conn.WriteJSON(resp); err != nil {
			return nil
		}
	}
}

// GetConversation returns a conversation by id
// GET /api/chat/conversations/:id
func (h *ChatHandler) GetConversation(c echo.Context) error {
	conv, err := h.container.ChatAgent.Conversation(c.Param("id"))
	if err != nil {
		return response.NotFound(c, "conversation")
	}
	return response.Success(c, conv)
}

// GetAgentState returns the workflow activity bound to a conversation
// GET /api/chat/conversations/:id/state
func (h *ChatHandler) GetAgentState(c echo.Context) error {
	state, ok := h.container.ChatAgent.State(c.Param("id"))
	if !ok {
		return response.NotFound(c, "agent state")
	}
	return response.Success(c, state)
}

// GetStreamBuffer returns the buffered content of a streaming response,
// complete or partial, for retry after a dropped connection.
// GET /api/chat/stream/:response_id
func (h *ChatHandler) GetStreamBuffer(c echo.Context) error {
	buf, err := h.container.Components.Streams.Get(c.Param("response_id"))
	if err != nil {
		return response.NotFound(c, "stream buffer")
	}
	return response.Success(c, map[string]any{
		"response_id": c.Param("response_id"),
		"content":     buf.Content(),
		"complete":    buf.Complete(),
		"error":       buf.Err(),
	})
}
