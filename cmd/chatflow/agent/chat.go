package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/cmd/chatflow/storage"
	"github.com/lyzr/chatflow/common/cache"
	"github.com/lyzr/chatflow/common/logger"
)

const defaultSystemPrompt = "You are a helpful assistant that can search and execute workflows and consult knowledge bases on behalf of the user."

const defaultHistoryTurns = 10

// ChatAgentOptions bounds the conversation caches
type ChatAgentOptions struct {
	MaxConversations int
	ConversationTTL  time.Duration
	HistoryTurns     int
	SystemPrompt     string
}

// ChatAgent binds conversations and agent state to the orchestrator. Hot
// conversations live in a bounded LRU+TTL cache backed by the blob store.
type ChatAgent struct {
	orchestrator  *Orchestrator
	conversations *cache.LRUTTL[*models.Conversation]
	states        *cache.LRUTTL[*models.AgentState]
	stores        *storage.Stores
	log           *logger.Logger
	historyTurns  int
	systemPrompt  string
}

// NewChatAgent creates a chat agent
func NewChatAgent(orchestrator *Orchestrator, stores *storage.Stores, log *logger.Logger, opts ChatAgentOptions) *ChatAgent {
	if opts.MaxConversations <= 0 {
		opts.MaxConversations = 1000
	}
	if opts.ConversationTTL <= 0 {
		opts.ConversationTTL = time.Hour
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = defaultHistoryTurns
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &ChatAgent{
		orchestrator:  orchestrator,
		conversations: cache.NewLRUTTL[*models.Conversation](opts.MaxConversations, opts.ConversationTTL),
		states:        cache.NewLRUTTL[*models.AgentState](opts.MaxConversations, opts.ConversationTTL),
		stores:        stores,
		log:           log,
		historyTurns:  opts.HistoryTurns,
		systemPrompt:  opts.SystemPrompt,
	}
}

// Chat processes one conversational turn
func (a *ChatAgent) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}

	conv := a.resolveConversation(req.ConversationID)
	conv.Append(models.RoleUser, req.Message)

	messages, promptID, err := a.buildMessages(conv, req)
	if err != nil {
		return nil, err
	}

	content, records, runErr := a.orchestrator.Run(ctx, messages)
	if runErr != nil {
		a.saveConversation(conv)
		return nil, runErr
	}

	conv.Append(models.RoleAssistant, content)
	a.saveConversation(conv)

	workflowID, workflowStatus := workflowFromRecords(records)
	a.updateState(conv.ID, workflowID, records)

	resp := &models.ChatResponse{
		Response:       content,
		ConversationID: conv.ID,
		WorkflowID:     workflowID,
		WorkflowStatus: workflowStatus,
		ToolCalls:      records,
		Metadata:       map[string]any{},
	}
	if promptID != "" {
		resp.Metadata["prompt_id"] = promptID
	}
	return resp, nil
}

// ChatStream processes one turn with the final reply streamed into the
// buffer registry under responseID. A partial reply still lands in the
// conversation, flagged in the response metadata.
func (a *ChatAgent) ChatStream(ctx context.Context, req *models.ChatRequest, responseID string) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	if responseID == "" {
		responseID = uuid.New().String()
	}

	conv := a.resolveConversation(req.ConversationID)
	conv.Append(models.RoleUser, req.Message)

	messages, promptID, err := a.buildMessages(conv, req)
	if err != nil {
		return nil, err
	}

	result, records, runErr := a.orchestrator.RunStream(ctx, responseID, conv.ID, messages)

	content := ""
	partial := false
	if result != nil {
		content = result.Content
		partial = !result.Complete
	}
	if content != "" {
		conv.Append(models.RoleAssistant, content)
	}
	a.saveConversation(conv)

	if runErr != nil && content == "" {
		return nil, runErr
	}

	workflowID, workflowStatus := workflowFromRecords(records)
	a.updateState(conv.ID, workflowID, records)

	resp := &models.ChatResponse{
		Response:       content,
		ConversationID: conv.ID,
		WorkflowID:     workflowID,
		WorkflowStatus: workflowStatus,
		ToolCalls:      records,
		Metadata: map[string]any{
			"response_id": responseID,
		},
	}
	if partial {
		resp.Metadata["partial"] = true
	}
	if promptID != "" {
		resp.Metadata["prompt_id"] = promptID
	}
	return resp, nil
}

// Conversation returns a conversation from cache or the blob store
func (a *ChatAgent) Conversation(id string) (*models.Conversation, error) {
	if conv, ok := a.conversations.Get(id); ok {
		return conv, nil
	}
	if a.stores != nil {
		conv, err := a.stores.Conversations.Load(id)
		if err == nil {
			a.conversations.Set(id, conv)
			return conv, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
}

// State returns the agent state bound to a conversation
func (a *ChatAgent) State(conversationID string) (*models.AgentState, bool) {
	return a.states.Get(conversationID)
}

func (a *ChatAgent) resolveConversation(id string) *models.Conversation {
	if id != "" {
		if conv, err := a.Conversation(id); err == nil {
			return conv
		}
	}

	conv := models.NewConversation()
	if id != "" {
		conv.ID = id
	}
	a.conversations.Set(conv.ID, conv)
	return conv
}

func (a *ChatAgent) saveConversation(conv *models.Conversation) {
	a.conversations.Set(conv.ID, conv)
	if a.stores == nil {
		return
	}
	if err := a.stores.Conversations.Save(conv.ID, conv); err != nil {
		a.log.Error("failed to persist conversation", "conversation_id", conv.ID, "error", err)
	}
}

// buildMessages assembles system prompt, recent history, and context
func (a *ChatAgent) buildMessages(conv *models.Conversation, req *models.ChatRequest) ([]models.Message, string, error) {
	prompt := a.systemPrompt
	promptID := ""

	if req.PromptID != "" {
		if a.stores == nil {
			return nil, "", fmt.Errorf("%w: prompt %s", storage.ErrNotFound, req.PromptID)
		}
		template, err := a.stores.Prompts.Load(req.PromptID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load prompt %s: %w", req.PromptID, err)
		}
		prompt = renderPrompt(template, req.Context)
		promptID = template.ID

		template.RecordUsage()
		if err := a.stores.Prompts.Save(template.ID, template); err != nil {
			a.log.Warn("failed to record prompt usage", "prompt_id", template.ID, "error", err)
		}
	}

	if len(req.Context) > 0 {
		var b strings.Builder
		b.WriteString(prompt)
		b.WriteString("\n\nContext:\n")
		for k, v := range req.Context {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
		prompt = b.String()
	}

	messages := []models.Message{{
		Role:      models.RoleSystem,
		Content:   prompt,
		Timestamp: time.Now().UTC(),
	}}
	messages = append(messages, conv.Recent(a.historyTurns)...)
	return messages, promptID, nil
}

func (a *ChatAgent) updateState(conversationID, workflowID string, records []models.ToolCallRecord) {
	state, ok := a.states.Get(conversationID)
	if !ok {
		state = &models.AgentState{ConversationID: conversationID}
	}
	if workflowID != "" {
		state.CurrentWorkflowID = workflowID
		state.WorkflowHistory = append(state.WorkflowHistory, workflowID)
	}
	state.ToolCalls = append(state.ToolCalls, records...)
	a.states.Set(conversationID, state)
}

// renderPrompt substitutes {name} placeholders from template defaults and
// the request context, context winning.
func renderPrompt(template *models.PromptTemplate, context map[string]any) string {
	rendered := template.Template
	for k, v := range template.Variables {
		rendered = strings.ReplaceAll(rendered, "{"+k+"}", fmt.Sprint(v))
	}
	for k, v := range context {
		rendered = strings.ReplaceAll(rendered, "{"+k+"}", fmt.Sprint(v))
	}
	return rendered
}

// workflowFromRecords extracts the last triggered workflow id and status
func workflowFromRecords(records []models.ToolCallRecord) (string, string) {
	var id, status string
	for _, record := range records {
		if record.Name != "execute_workflow" || record.Result == "" {
			continue
		}
		if v := gjson.Get(record.Result, "workflow_id"); v.Exists() {
			id = v.String()
		}
		if v := gjson.Get(record.Result, "status"); v.Exists() {
			status = v.String()
		}
	}
	return id, status
}
