package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lyzr/chatflow/cmd/chatflow/tools"
	"github.com/lyzr/chatflow/cmd/chatflow/workflow"
	"github.com/lyzr/chatflow/common/queue"
	"github.com/lyzr/chatflow/common/trace"
)

// RegisterAgentTools adds the workflow and knowledge tools the model can
// call. The queue client may be nil, which disables async execution.
func RegisterAgentTools(registry *tools.Registry, engine *workflow.Engine, queueClient *queue.Client, knowledge KnowledgeProvider, orchestrator *Orchestrator) error {
	agentTools := []tools.Tool{
		searchWorkflowsTool(engine),
		executeWorkflowTool(engine, queueClient, orchestrator),
	}
	if knowledge != nil {
		agentTools = append(agentTools,
			searchKnowledgeTool(knowledge),
			listKnowledgeTool(knowledge),
		)
	}

	for _, tool := range agentTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func searchWorkflowsTool(engine *workflow.Engine) tools.Tool {
	return &tools.FuncTool{
		ToolName:        "search_workflows",
		ToolDescription: "Search registered workflows by keyword over name and description",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"keyword": map[string]any{"type": "string"},
			},
			"required": []string{"keyword"},
		},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			keyword, _ := params["keyword"].(string)
			matches := engine.Registry().Search(keyword)
			if len(matches) == 0 {
				return "no workflows matched", nil
			}

			var b strings.Builder
			for _, w := range matches {
				fmt.Fprintf(&b, "%s: %s - %s\n", w.ID, w.Name, w.Description)
			}
			return b.String(), nil
		},
	}
}

// executeWorkflowTool runs a workflow synchronously, or submits it to the
// task queue when async is requested; async runs return a task handle and
// stay in the orchestrator's tracked map until completion.
func executeWorkflowTool(engine *workflow.Engine, queueClient *queue.Client, orchestrator *Orchestrator) tools.Tool {
	return &tools.FuncTool{
		ToolName:        "execute_workflow",
		ToolDescription: "Execute a registered workflow with the given variables",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"workflow_id": map[string]any{"type": "string"},
				"variables":   map[string]any{"type": "object"},
				"async":       map[string]any{"type": "boolean"},
			},
			"required": []string{"workflow_id"},
		},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			workflowID, _ := params["workflow_id"].(string)
			if workflowID == "" {
				return nil, fmt.Errorf("workflow_id is required")
			}
			variables, _ := params["variables"].(map[string]any)
			async, _ := params["async"].(bool)

			if async && queueClient != nil {
				task := queue.NewTask(queue.KindWorkflowExecute, map[string]any{
					"workflow_id": workflowID,
					"variables":   variables,
				})
				task.SetTraceID(trace.TraceID(ctx))
				taskID, err := queueClient.Enqueue(ctx, task)
				if err != nil {
					return nil, fmt.Errorf("failed to submit workflow: %w", err)
				}
				orchestrator.Track(taskID, workflowID)
				return map[string]any{
					"task_id":     taskID,
					"workflow_id": workflowID,
					"status":      string(queue.StatusQueued),
				}, nil
			}

			run, err := engine.Execute(ctx, workflowID, variables)
			if err != nil && run == nil {
				return nil, err
			}
			result := map[string]any{
				"workflow_id": workflowID,
				"status":      string(run.Status),
				"variables":   run.Variables,
			}
			if run.Error != "" {
				result["error"] = run.Error
			}
			return result, nil
		},
	}
}

func searchKnowledgeTool(knowledge KnowledgeProvider) tools.Tool {
	return &tools.FuncTool{
		ToolName:        "search_knowledge_base",
		ToolDescription: "Search a knowledge base and return the top matching passages",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"kb_id": map[string]any{"type": "string"},
				"top_k": map[string]any{"type": "integer"},
			},
			"required": []string{"query", "kb_id"},
		},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			query, _ := params["query"].(string)
			kbID, _ := params["kb_id"].(string)
			topK := 5
			if raw, ok := params["top_k"].(float64); ok && raw > 0 {
				topK = int(raw)
			}

			passages, err := knowledge.Search(ctx, query, kbID, topK)
			if err != nil {
				return nil, fmt.Errorf("knowledge search failed: %w", err)
			}
			if len(passages) == 0 {
				return "no passages matched", nil
			}
			return strings.Join(passages, "\n---\n"), nil
		},
	}
}

func listKnowledgeTool(knowledge KnowledgeProvider) tools.Tool {
	return &tools.FuncTool{
		ToolName:        "list_knowledge_bases",
		ToolDescription: "List the available knowledge bases",
		ToolSchema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			kbs, err := knowledge.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
			}
			if len(kbs) == 0 {
				return "no knowledge bases available", nil
			}

			var b strings.Builder
			for _, kb := range kbs {
				fmt.Fprintf(&b, "%s: %s - %s\n", kb.ID, kb.Name, kb.Description)
			}
			return b.String(), nil
		},
	}
}
