package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/handlers"
)

// RegisterWorkflowRoutes registers all workflow-related routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	workflows := e.Group("/api/workflows")
	{
		workflows.POST("", h.CreateWorkflow)                       // POST /api/workflows
		workflows.POST("/upload", h.UploadWorkflow)                // POST /api/workflows/upload (yaml or json)
		workflows.GET("", h.ListWorkflows)                         // GET /api/workflows
		workflows.GET("/search/:keyword", h.SearchWorkflows)       // GET /api/workflows/search/{keyword}
		workflows.GET("/queue/stats", h.QueueStats)                // GET /api/workflows/queue/stats
		workflows.GET("/tasks/:task_id", h.GetTask)                // GET /api/workflows/tasks/{task_id}
		workflows.POST("/tasks/:task_id/cancel", h.CancelTask)     // POST /api/workflows/tasks/{task_id}/cancel
		workflows.GET("/:id", h.GetWorkflow)                       // GET /api/workflows/{id}
		workflows.POST("/:id/execute", h.ExecuteWorkflow)          // POST /api/workflows/{id}/execute?async_execute=true
		workflows.GET("/:id/runs", h.ListRuns)                     // GET /api/workflows/{id}/runs
	}
}
