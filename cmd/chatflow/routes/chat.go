package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/handlers"
)

// RegisterChatRoutes registers all chat-related routes
func RegisterChatRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewChatHandler(c)

	chat := e.Group("/api/chat")
	{
		chat.POST("", h.Chat)                                  // POST /api/chat
		chat.POST("/stream", h.ChatStream)                     // POST /api/chat/stream (SSE)
		chat.GET("/stream/:response_id", h.GetStreamBuffer)    // GET /api/chat/stream/{response_id}
		chat.GET("/conversations/:id", h.GetConversation)      // GET /api/chat/conversations/{id}
		chat.GET("/conversations/:id/state", h.GetAgentState)  // GET /api/chat/conversations/{id}/state
	}

	e.GET("/api/ws/chat", h.ChatWS) // websocket chat session
}
