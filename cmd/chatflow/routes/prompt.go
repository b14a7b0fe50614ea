package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/handlers"
)

// RegisterPromptRoutes registers all prompt template routes
func RegisterPromptRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPromptHandler(c)

	prompts := e.Group("/api/prompts")
	{
		prompts.POST("", h.CreatePrompt)        // POST /api/prompts
		prompts.GET("", h.ListPrompts)          // GET /api/prompts
		prompts.GET("/:id", h.GetPrompt)        // GET /api/prompts/{id}
		prompts.PATCH("/:id", h.PatchPrompt)    // PATCH /api/prompts/{id} (json merge patch)
		prompts.DELETE("/:id", h.DeletePrompt)  // DELETE /api/prompts/{id}
	}
}
