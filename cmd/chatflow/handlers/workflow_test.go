package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lyzr/chatflow/cmd/chatflow/workflow"
)

func linearWorkflow(id string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:   id,
		Name: "greeting",
		Nodes: []*workflow.Node{
			{ID: "start", Kind: workflow.KindStart, Status: workflow.NodePending},
			{
				ID:         "greet",
				Kind:       workflow.KindTask,
				ToolName:   "echo",
				ToolParams: map[string]any{"message": "hello"},
				Status:     workflow.NodePending,
			},
			{ID: "end", Kind: workflow.KindEnd, Status: workflow.NodePending},
		},
		Edges: []workflow.Edge{
			{Source: "start", Target: "greet"},
			{Source: "greet", Target: "end"},
		},
	}
}

func TestCreateWorkflowAndGet(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	rec := invoke(t, h.CreateWorkflow, http.MethodPost, "/api/workflows", linearWorkflow("wf-1"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = invoke(t, h.GetWorkflow, http.MethodGet, "/api/workflows/wf-1", nil, map[string]string{"id": "wf-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "greeting", gjson.GetBytes(rec.Body.Bytes(), "data.name").String())
}

func TestCreateWorkflowRejectsInvalidGraph(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	bad := linearWorkflow("wf-bad")
	bad.Name = ""
	rec := invoke(t, h.CreateWorkflow, http.MethodPost, "/api/workflows", bad, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateWorkflowDuplicate(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	rec := invoke(t, h.CreateWorkflow, http.MethodPost, "/api/workflows", linearWorkflow("wf-dup"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = invoke(t, h.CreateWorkflow, http.MethodPost, "/api/workflows", linearWorkflow("wf-dup"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExecuteWorkflowSync(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	rec := invoke(t, h.CreateWorkflow, http.MethodPost, "/api/workflows", linearWorkflow("wf-run"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = invoke(t, h.ExecuteWorkflow, http.MethodPost, "/api/workflows/wf-run/execute",
		map[string]any{"variables": map[string]any{"who": "world"}},
		map[string]string{"id": "wf-run"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.Bytes()
	assert.Equal(t, "completed", gjson.GetBytes(body, "data.status").String())
	assert.Equal(t, "hello", gjson.GetBytes(body, "data.workflow.variables.greet.message").String())
}

func TestExecuteWorkflowUnknown(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	rec := invoke(t, h.ExecuteWorkflow, http.MethodPost, "/api/workflows/ghost/execute",
		map[string]any{}, map[string]string{"id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchWorkflows(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	rec := invoke(t, h.CreateWorkflow, http.MethodPost, "/api/workflows", linearWorkflow("wf-s"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = invoke(t, h.SearchWorkflows, http.MethodGet, "/api/workflows/search/greet", nil,
		map[string]string{"keyword": "greet"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(rec.Body.Bytes(), "data.workflows.#").Int())
}

func TestUploadWorkflowYAML(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	definition := `
name: uploaded
nodes:
  - id: start
    kind: START
  - id: greet
    kind: TASK
    tool_name: echo
    tool_params:
      message: hi
  - id: end
    kind: END
edges:
  - source: start
    target: greet
  - source: greet
    target: end
`

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "workflow.yaml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(definition))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/workflows/upload", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())

	rec := invokeRaw(t, h.UploadWorkflow, req, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "uploaded", gjson.GetBytes(rec.Body.Bytes(), "data.name").String())
}

func TestQueueEndpointsUnavailableWithoutQueue(t *testing.T) {
	h := NewWorkflowHandler(newTestContainer(t))

	rec := invoke(t, h.QueueStats, http.MethodGet, "/api/workflows/queue/stats", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = invoke(t, h.GetTask, http.MethodGet, "/api/workflows/tasks/t1", nil, map[string]string{"task_id": "t1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
