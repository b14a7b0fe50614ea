package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation turn
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is an ordered message history
type Conversation struct {
	ID        string         `json:"id"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewConversation creates an empty conversation
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.New().String(),
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message and refreshes the conversation timestamp
func (c *Conversation) Append(role Role, content string) {
	now := time.Now().UTC()
	c.Messages = append(c.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	c.UpdatedAt = now
}

// Recent returns the last n messages in order
func (c *Conversation) Recent(n int) []Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// ToolCallRecord captures one tool invocation made by the agent
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AgentState binds a conversation to its workflow activity
type AgentState struct {
	ConversationID    string           `json:"conversation_id"`
	CurrentWorkflowID string           `json:"current_workflow_id,omitempty"`
	WorkflowHistory   []string         `json:"workflow_history,omitempty"`
	ToolCalls         []ToolCallRecord `json:"tool_calls,omitempty"`
}

// ChatRequest is the inbound chat payload
type ChatRequest struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id,omitempty"`
	PromptID       string         `json:"prompt_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
}

// ChatResponse is the outbound chat payload
type ChatResponse struct {
	Response       string           `json:"response"`
	ConversationID string           `json:"conversation_id"`
	WorkflowID     string           `json:"workflow_id,omitempty"`
	WorkflowStatus string           `json:"workflow_status,omitempty"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}

// StreamEvent is one server-sent chunk of a streaming chat response
type StreamEvent struct {
	Chunk      string `json:"chunk,omitempty"`
	ResponseID string `json:"response_id"`
	Done       bool   `json:"done"`
	Complete   bool   `json:"complete"`
	Partial    bool   `json:"partial,omitempty"`
	Error      string `json:"error,omitempty"`
}
