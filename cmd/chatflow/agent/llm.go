package agent

import (
	"context"

	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/common/stream"
)

// ToolSchema describes one tool to the language model
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is one tool invocation requested by the model
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Completion is the model's reply to one generation request. Either Content
// is the final answer or ToolCalls lists the tools to run next.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatModel is an opaque language model client
type ChatModel interface {
	// Generate produces a completion, optionally requesting tool calls
	Generate(ctx context.Context, messages []models.Message, tools []ToolSchema) (*Completion, error)
	// Stream produces the assistant reply as a chunk stream
	Stream(ctx context.Context, messages []models.Message) (stream.ChunkStream, error)
}

// KnowledgeProvider is an opaque retrieval backend
type KnowledgeProvider interface {
	Search(ctx context.Context, query, kbID string, topK int) ([]string, error)
	List(ctx context.Context) ([]*models.KnowledgeBase, error)
}
