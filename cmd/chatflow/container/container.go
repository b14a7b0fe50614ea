package container

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lyzr/chatflow/cmd/chatflow/agent"
	"github.com/lyzr/chatflow/cmd/chatflow/knowledge"
	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/cmd/chatflow/repository"
	"github.com/lyzr/chatflow/cmd/chatflow/storage"
	"github.com/lyzr/chatflow/cmd/chatflow/tools"
	"github.com/lyzr/chatflow/cmd/chatflow/workflow"
	"github.com/lyzr/chatflow/common/bootstrap"
	"github.com/lyzr/chatflow/common/queue"
	"github.com/lyzr/chatflow/common/stream"
	"github.com/lyzr/chatflow/common/worker"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	Components    *bootstrap.Components
	Stores        *storage.Stores
	ToolRegistry  *tools.Registry
	Engine        *workflow.Engine
	StreamHandler *stream.Handler
	Knowledge     *knowledge.Service
	Orchestrator  *agent.Orchestrator
	ChatAgent     *agent.ChatAgent
	Workers       *worker.Pool
	RunRepo       *repository.RunRepository
}

// NewContainer initializes all services once
func NewContainer(ctx context.Context, components *bootstrap.Components, model agent.ChatModel) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	stores, err := storage.NewStores(cfg.Storage.Dir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	knowledgeService := knowledge.NewService(stores, log)

	toolRegistry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		&tools.EchoTool{},
		tools.NewHTTPRequestTool(30 * time.Second),
		tools.NewFileTool(filepath.Join(cfg.Storage.Dir, "files")),
		&tools.TransformTool{},
	} {
		if err := toolRegistry.Register(tool); err != nil {
			return nil, err
		}
	}

	engine := workflow.NewEngine(workflow.NewRegistry(), toolRegistry, log, cfg.Workflow.Timeout)

	// Re-register workflows persisted by earlier runs
	persisted, err := stores.Workflows.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted workflows: %w", err)
	}
	for id, w := range persisted {
		if err := engine.Registry().Register(w); err != nil {
			log.Warn("skipping persisted workflow", "workflow_id", id, "error", err)
		}
	}

	streamHandler := stream.NewHandler(components.Streams, log, stream.HandlerOptions{
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	})

	orchestrator := agent.NewOrchestrator(model, toolRegistry, streamHandler, log)
	if err := agent.RegisterAgentTools(toolRegistry, engine, components.Queue, knowledgeService, orchestrator); err != nil {
		return nil, err
	}

	chatAgent := agent.NewChatAgent(orchestrator, stores, log, agent.ChatAgentOptions{
		MaxConversations: cfg.Cache.MaxConversations,
		ConversationTTL:  cfg.Cache.ConversationTTL,
	})

	c := &Container{
		Components:    components,
		Stores:        stores,
		ToolRegistry:  toolRegistry,
		Engine:        engine,
		StreamHandler: streamHandler,
		Knowledge:     knowledgeService,
		Orchestrator:  orchestrator,
		ChatAgent:     chatAgent,
	}

	if components.DB != nil {
		c.RunRepo = repository.NewRunRepository(components.DB, log)
		if err := c.RunRepo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	if components.Queue != nil {
		c.Workers = worker.New(components.Queue, log, worker.Options{
			TaskTimeout: cfg.Queue.TaskTimeout,
		})
		c.registerTaskHandlers()
	}

	return c, nil
}

// StartWorkers launches the task consumers. No-op when the queue is disabled.
func (c *Container) StartWorkers(ctx context.Context) error {
	if c.Workers == nil {
		return nil
	}
	return c.Workers.Start(ctx)
}

// StopWorkers drains the task consumers
func (c *Container) StopWorkers() {
	if c.Workers != nil {
		c.Workers.Stop()
	}
}

func (c *Container) registerTaskHandlers() {
	c.Workers.Register(queue.KindWorkflowExecute, c.handleWorkflowTask)
	c.Workers.Register(queue.KindChatProcess, c.handleChatTask)
	c.Workers.Register(queue.KindKnowledgeSearch, c.handleKnowledgeTask)
}

func (c *Container) handleWorkflowTask(ctx context.Context, task *queue.Task) (any, error) {
	workflowID, _ := task.Params["workflow_id"].(string)
	if workflowID == "" {
		return nil, errors.New("workflow_id param is required")
	}
	variables, _ := task.Params["variables"].(map[string]any)

	defer c.Orchestrator.Untrack(task.ID)

	run, err := c.Engine.Execute(ctx, workflowID, variables)
	if run != nil && c.RunRepo != nil {
		if recErr := c.RunRepo.Record(ctx, run); recErr != nil {
			c.Components.Logger.Error("failed to record run", "workflow_id", workflowID, "error", recErr)
		}
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"workflow_id": workflowID,
		"status":      string(run.Status),
		"variables":   run.Variables,
	}, nil
}

func (c *Container) handleChatTask(ctx context.Context, task *queue.Task) (any, error) {
	message, _ := task.Params["message"].(string)
	conversationID, _ := task.Params["conversation_id"].(string)

	resp, err := c.ChatAgent.Chat(ctx, &models.ChatRequest{
		Message:        message,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Container) handleKnowledgeTask(ctx context.Context, task *queue.Task) (any, error) {
	query, _ := task.Params["query"].(string)
	kbID, _ := task.Params["kb_id"].(string)
	topK := 5
	if raw, ok := task.Params["top_k"].(float64); ok && raw > 0 {
		topK = int(raw)
	}

	passages, err := c.Knowledge.Search(ctx, query, kbID, topK)
	if err != nil {
		return nil, err
	}
	return map[string]any{"passages": passages}, nil
}
