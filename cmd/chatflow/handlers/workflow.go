package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/workflow"
	"github.com/lyzr/chatflow/common/queue"
	"github.com/lyzr/chatflow/common/response"
	"github.com/lyzr/chatflow/common/trace"

	"github.com/google/uuid"
)

// maxDefinitionSize bounds uploaded workflow definitions
const maxDefinitionSize = 1 << 20

// WorkflowHandler handles workflow registration and execution requests
type WorkflowHandler struct {
	container *container.Container
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{container: c}
}

// CreateWorkflow registers a workflow from a JSON body
// POST /api/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var w workflow.Workflow
	if err := c.Bind(&w); err != nil {
		return response.BadRequest(c, "invalid workflow payload")
	}
	return h.register(c, &w)
}

// UploadWorkflow registers a workflow from an uploaded YAML or JSON file
// POST /api/workflows/upload
func (h *WorkflowHandler) UploadWorkflow(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "file form field is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "failed to open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDefinitionSize))
	if err != nil {
		return response.BadRequest(c, "failed to read uploaded file")
	}

	w, err := decodeDefinition(fileHeader.Filename, data)
	if err != nil {
		return response.ValidationError(c, err.Error())
	}
	return h.register(c, w)
}

func (h *WorkflowHandler) register(c echo.Context, w *workflow.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	if err := h.container.Engine.Registry().Register(w); err != nil {
		if errors.Is(err, workflow.ErrWorkflowExists) {
			return response.Conflict(c, err.Error())
		}
		return response.ValidationError(c, err.Error())
	}

	if err := h.container.Stores.Workflows.Save(w.ID, w); err != nil {
		h.container.Components.Logger.WithContext(c.Request().Context()).
			Error("failed to persist workflow", "workflow_id", w.ID, "error", err)
		return response.Internal(c, "failed to persist workflow")
	}

	return response.Created(c, w)
}

// ListWorkflows lists all registered workflows
// GET /api/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	return response.Success(c, map[string]any{
		"workflows": h.container.Engine.Registry().List(),
	})
}

// GetWorkflow retrieves one workflow by id
// GET /api/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	w, err := h.container.Engine.Registry().Get(c.Param("id"))
	if err != nil {
		return response.NotFound(c, "workflow")
	}
	return response.Success(c, w)
}

// SearchWorkflows finds workflows whose name or description match a keyword
// GET /api/workflows/search/:keyword
func (h *WorkflowHandler) SearchWorkflows(c echo.Context) error {
	keyword := c.Param("keyword")
	return response.Success(c, map[string]any{
		"keyword":   keyword,
		"workflows": h.container.Engine.Registry().Search(keyword),
	})
}

type executeRequest struct {
	Variables map[string]any `json:"variables"`
}

// ExecuteWorkflow runs a workflow, inline or via the task queue
// POST /api/workflows/:id/execute?async_execute=true
func (h *WorkflowHandler) ExecuteWorkflow(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.container.Engine.Registry().Get(id); err != nil {
		return response.NotFound(c, "workflow")
	}

	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid execute payload")
	}

	async, _ := strconv.ParseBool(c.QueryParam("async_execute"))
	if async {
		return h.executeAsync(c, id, req.Variables)
	}
	return h.executeSync(c, id, req.Variables)
}

func (h *WorkflowHandler) executeSync(c echo.Context, id string, variables map[string]any) error {
	ctx := c.Request().Context()

	run, err := h.container.Engine.Execute(ctx, id, variables)
	if run != nil && h.container.RunRepo != nil {
		if recErr := h.container.RunRepo.Record(ctx, run); recErr != nil {
			h.container.Components.Logger.WithContext(ctx).
				Error("failed to record run", "workflow_id", id, "error", recErr)
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return response.Error(c, response.CodeTimeout, "workflow execution timed out")
		}
		return response.Success(c, map[string]any{
			"status":   string(run.Status),
			"error":    run.Error,
			"workflow": run,
		})
	}

	return response.Success(c, map[string]any{
		"status":   string(run.Status),
		"workflow": run,
	})
}

func (h *WorkflowHandler) executeAsync(c echo.Context, id string, variables map[string]any) error {
	if h.container.Components.Queue == nil {
		return response.Error(c, response.CodeServiceUnavailable, "task queue is not enabled")
	}

	ctx := c.Request().Context()
	task := queue.NewTask(queue.KindWorkflowExecute, map[string]any{
		"workflow_id": id,
		"variables":   variables,
	})
	task.SetTraceID(trace.TraceID(ctx))

	taskID, err := h.container.Components.Queue.Enqueue(ctx, task)
	if err != nil {
		return response.Internal(c, "failed to enqueue workflow")
	}
	h.container.Orchestrator.Track(taskID, id)

	return response.Success(c, map[string]any{
		"task_id":     taskID,
		"workflow_id": id,
		"status":      string(queue.StatusQueued),
	})
}

// GetTask returns the state of a queued or finished task
// GET /api/workflows/tasks/:task_id
func (h *WorkflowHandler) GetTask(c echo.Context) error {
	if h.container.Components.Queue == nil {
		return response.Error(c, response.CodeServiceUnavailable, "task queue is not enabled")
	}

	task, err := h.container.Components.Queue.Get(c.Request().Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return response.NotFound(c, "task")
		}
		return response.Internal(c, "failed to load task")
	}
	return response.Success(c, task)
}

// CancelTask cancels a task that has not started running
// POST /api/workflows/tasks/:task_id/cancel
func (h *WorkflowHandler) CancelTask(c echo.Context) error {
	if h.container.Components.Queue == nil {
		return response.Error(c, response.CodeServiceUnavailable, "task queue is not enabled")
	}

	taskID := c.Param("task_id")
	cancelled, err := h.container.Components.Queue.Cancel(c.Request().Context(), taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return response.NotFound(c, "task")
		}
		return response.Internal(c, "failed to cancel task")
	}
	if !cancelled {
		return response.Conflict(c, "task is already running or finished")
	}

	h.container.Orchestrator.Untrack(taskID)
	return response.Success(c, map[string]any{
		"task_id": taskID,
		"status":  string(queue.StatusCancelled),
	})
}

// QueueStats reports the pending depth of each task queue
// GET /api/workflows/queue/stats
func (h *WorkflowHandler) QueueStats(c echo.Context) error {
	if h.container.Components.Queue == nil {
		return response.Error(c, response.CodeServiceUnavailable, "task queue is not enabled")
	}

	ctx := c.Request().Context()
	stats := make(map[string]int64)
	for _, kind := range []queue.Kind{queue.KindWorkflowExecute, queue.KindChatProcess, queue.KindKnowledgeSearch} {
		length, err := h.container.Components.Queue.QueueLength(ctx, kind)
		if err != nil {
			return response.Internal(c, "failed to read queue stats")
		}
		stats[string(kind)] = length
	}
	return response.Success(c, map[string]any{"queues": stats})
}

// ListRuns returns the recorded run history for a workflow
// GET /api/workflows/:id/runs?limit=50
func (h *WorkflowHandler) ListRuns(c echo.Context) error {
	if h.container.RunRepo == nil {
		return response.Error(c, response.CodeServiceUnavailable, "run history is not enabled")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	runs, err := h.container.RunRepo.ListByWorkflow(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return response.Internal(c, "failed to list runs")
	}
	return response.Success(c, map[string]any{"runs": runs})
}

// decodeDefinition parses a workflow definition from YAML or JSON bytes
func decodeDefinition(filename string, data []byte) (*workflow.Workflow, error) {
	var w workflow.Workflow

	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.New("invalid yaml workflow definition")
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, errors.New("invalid yaml workflow definition")
		}
		data = encoded
	}

	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.New("invalid workflow definition")
	}
	return &w, nil
}
