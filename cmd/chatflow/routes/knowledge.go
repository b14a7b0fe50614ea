package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/handlers"
)

// RegisterKnowledgeRoutes registers all knowledge-base routes
func RegisterKnowledgeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewKnowledgeHandler(c)

	kbs := e.Group("/api/knowledge-bases")
	{
		kbs.POST("", h.CreateKnowledgeBase)            // POST /api/knowledge-bases
		kbs.GET("", h.ListKnowledgeBases)              // GET /api/knowledge-bases
		kbs.GET("/:id", h.GetKnowledgeBase)            // GET /api/knowledge-bases/{id}
		kbs.DELETE("/:id", h.DeleteKnowledgeBase)      // DELETE /api/knowledge-bases/{id}
		kbs.POST("/:id/documents", h.AddDocument)      // POST /api/knowledge-bases/{id}/documents
		kbs.POST("/:id/search", h.SearchKnowledgeBase) // POST /api/knowledge-bases/{id}/search
	}
}
