package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/storage"
	"github.com/lyzr/chatflow/common/response"
)

// KnowledgeHandler handles knowledge-base requests
type KnowledgeHandler struct {
	container *container.Container
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(c *container.Container) *KnowledgeHandler {
	return &KnowledgeHandler{container: c}
}

type createKnowledgeBaseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateKnowledgeBase registers a knowledge base
// POST /api/knowledge-bases
func (h *KnowledgeHandler) CreateKnowledgeBase(c echo.Context) error {
	var req createKnowledgeBaseRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid knowledge base payload")
	}

	kb, err := h.container.Knowledge.Create(req.Name, req.Description)
	if err != nil {
		return response.ValidationError(c, err.Error())
	}
	return response.Created(c, kb)
}

// ListKnowledgeBases lists all knowledge bases
// GET /api/knowledge-bases
func (h *KnowledgeHandler) ListKnowledgeBases(c echo.Context) error {
	all, err := h.container.Knowledge.List(c.Request().Context())
	if err != nil {
		return response.Internal(c, "failed to list knowledge bases")
	}
	return response.Success(c, map[string]any{"knowledge_bases": all})
}

// GetKnowledgeBase retrieves one knowledge base
// GET /api/knowledge-bases/:id
func (h *KnowledgeHandler) GetKnowledgeBase(c echo.Context) error {
	kb, err := h.container.Knowledge.Get(c.Param("id"))
	if err != nil {
		return response.NotFound(c, "knowledge base")
	}
	return response.Success(c, kb)
}

// DeleteKnowledgeBase removes a knowledge base and its documents
// DELETE /api/knowledge-bases/:id
func (h *KnowledgeHandler) DeleteKnowledgeBase(c echo.Context) error {
	if err := h.container.Knowledge.Delete(c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return response.NotFound(c, "knowledge base")
		}
		return response.Internal(c, "failed to delete knowledge base")
	}
	return response.Success(c, map[string]any{"deleted": true})
}

type addDocumentRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// AddDocument stores a document in a knowledge base
// POST /api/knowledge-bases/:id/documents
func (h *KnowledgeHandler) AddDocument(c echo.Context) error {
	var req addDocumentRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid document payload")
	}
	if req.Content == "" {
		return response.ValidationError(c, "content is required")
	}

	kb, err := h.container.Knowledge.AddDocument(c.Param("id"), req.Name, req.Content)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return response.NotFound(c, "knowledge base")
		}
		return response.Internal(c, "failed to add document")
	}
	return response.Created(c, kb)
}

type searchKnowledgeRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchKnowledgeBase retrieves the best matching passages for a query
// POST /api/knowledge-bases/:id/search
func (h *KnowledgeHandler) SearchKnowledgeBase(c echo.Context) error {
	var req searchKnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid search payload")
	}
	if req.Query == "" {
		return response.ValidationError(c, "query is required")
	}

	passages, err := h.container.Knowledge.Search(c.Request().Context(), req.Query, c.Param("id"), req.TopK)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return response.NotFound(c, "knowledge base")
		}
		return response.Internal(c, "search failed")
	}
	return response.Success(c, map[string]any{
		"query":    req.Query,
		"passages": passages,
	})
}
