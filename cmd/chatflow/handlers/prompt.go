package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/cmd/chatflow/storage"
	"github.com/lyzr/chatflow/common/response"
)

// PromptHandler handles prompt template requests
type PromptHandler struct {
	container *container.Container
}

// NewPromptHandler creates a new prompt handler
func NewPromptHandler(c *container.Container) *PromptHandler {
	return &PromptHandler{container: c}
}

type createPromptRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Template    string         `json:"template"`
	Variables   map[string]any `json:"variables"`
}

// CreatePrompt stores a prompt template
// POST /api/prompts
func (h *PromptHandler) CreatePrompt(c echo.Context) error {
	var req createPromptRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid prompt payload")
	}
	if req.Name == "" || req.Template == "" {
		return response.ValidationError(c, "name and template are required")
	}

	prompt := models.NewPromptTemplate(req.Name, req.Description, req.Template)
	prompt.Variables = req.Variables
	if err := h.container.Stores.Prompts.Save(prompt.ID, prompt); err != nil {
		return response.Internal(c, "failed to persist prompt")
	}
	return response.Created(c, prompt)
}

// ListPrompts lists all prompt templates
// GET /api/prompts
func (h *PromptHandler) ListPrompts(c echo.Context) error {
	all, err := h.container.Stores.Prompts.LoadAll()
	if err != nil {
		return response.Internal(c, "failed to list prompts")
	}

	prompts := make([]*models.PromptTemplate, 0, len(all))
	for _, p := range all {
		prompts = append(prompts, p)
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].CreatedAt.Before(prompts[j].CreatedAt) })
	return response.Success(c, map[string]any{"prompts": prompts})
}

// GetPrompt retrieves one prompt template
// GET /api/prompts/:id
func (h *PromptHandler) GetPrompt(c echo.Context) error {
	prompt, err := h.container.Stores.Prompts.Load(c.Param("id"))
	if err != nil {
		return response.NotFound(c, "prompt")
	}
	return response.Success(c, prompt)
}

// PatchPrompt applies a JSON merge patch to a prompt template
// PATCH /api/prompts/:id
func (h *PromptHandler) PatchPrompt(c echo.Context) error {
	id := c.Param("id")
	prompt, err := h.container.Stores.Prompts.Load(id)
	if err != nil {
		return response.NotFound(c, "prompt")
	}

	patch, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDefinitionSize))
	if err != nil || len(patch) == 0 {
		return response.BadRequest(c, "patch body is required")
	}

	original, err := json.Marshal(prompt)
	if err != nil {
		return response.Internal(c, "failed to encode prompt")
	}
	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return response.ValidationError(c, "invalid merge patch")
	}

	var updated models.PromptTemplate
	if err := json.Unmarshal(merged, &updated); err != nil {
		return response.ValidationError(c, "patch produced an invalid prompt")
	}

	// Identity and creation time are immutable
	updated.ID = prompt.ID
	updated.CreatedAt = prompt.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	if updated.Name == "" || updated.Template == "" {
		return response.ValidationError(c, "name and template are required")
	}

	if err := h.container.Stores.Prompts.Save(id, &updated); err != nil {
		return response.Internal(c, "failed to persist prompt")
	}
	return response.Success(c, &updated)
}

// DeletePrompt removes a prompt template
// DELETE /api/prompts/:id
func (h *PromptHandler) DeletePrompt(c echo.Context) error {
	if err := h.container.Stores.Prompts.Delete(c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return response.NotFound(c, "prompt")
		}
		return response.Internal(c, "failed to delete prompt")
	}
	return response.Success(c, map[string]any{"deleted": true})
}
