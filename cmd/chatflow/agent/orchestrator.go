package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/cmd/chatflow/tools"
	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/stream"
)

// MaxIterationsMessage is returned when the tool loop hits its bound
const MaxIterationsMessage = "max iterations reached"

const defaultMaxIterations = 15

// Orchestrator runs a tool-calling loop against a language model
type Orchestrator struct {
	model         ChatModel
	tools         *tools.Registry
	streams       *stream.Handler
	log           *logger.Logger
	maxIterations int

	mu      sync.Mutex
	tracked map[string]string // task id -> workflow id for async runs
}

// NewOrchestrator creates an orchestrator over the given model and tools
func NewOrchestrator(model ChatModel, toolRegistry *tools.Registry, streams *stream.Handler, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		model:         model,
		tools:         toolRegistry,
		streams:       streams,
		log:           log,
		maxIterations: defaultMaxIterations,
		tracked:       make(map[string]string),
	}
}

// Run executes the tool loop and returns the final assistant content plus
// the record of every tool call made along the way.
func (o *Orchestrator) Run(ctx context.Context, messages []models.Message) (string, []models.ToolCallRecord, error) {
	scratch := append([]models.Message(nil), messages...)
	schemas := o.schemas()
	var records []models.ToolCallRecord

	for i := 0; i < o.maxIterations; i++ {
		completion, err := o.model.Generate(ctx, scratch, schemas)
		if err != nil {
			return "", records, fmt.Errorf("model generation failed: %w", err)
		}

		if len(completion.ToolCalls) == 0 {
			return completion.Content, records, nil
		}

		for _, call := range completion.ToolCalls {
			record := o.invoke(ctx, call)
			records = append(records, record)
			scratch = append(scratch, models.Message{
				Role:      models.RoleTool,
				Content:   toolResultMessage(record),
				Timestamp: time.Now().UTC(),
			})
		}
	}

	o.log.WithContext(ctx).Warn("tool loop exhausted", "iterations", o.maxIterations)
	return MaxIterationsMessage, records, nil
}

// RunStream is Run with the final answer streamed into a buffer keyed by
// responseID. Tool iterations still use plain generation; only the closing
// assistant reply streams.
func (o *Orchestrator) RunStream(ctx context.Context, responseID, conversationID string, messages []models.Message) (*stream.Result, []models.ToolCallRecord, error) {
	scratch := append([]models.Message(nil), messages...)
	schemas := o.schemas()
	var records []models.ToolCallRecord

	for i := 0; i < o.maxIterations; i++ {
		completion, err := o.model.Generate(ctx, scratch, schemas)
		if err != nil {
			return nil, records, fmt.Errorf("model generation failed: %w", err)
		}
		if len(completion.ToolCalls) == 0 {
			break
		}
		for _, call := range completion.ToolCalls {
			record := o.invoke(ctx, call)
			records = append(records, record)
			scratch = append(scratch, models.Message{
				Role:      models.RoleTool,
				Content:   toolResultMessage(record),
				Timestamp: time.Now().UTC(),
			})
		}
	}

	result, err := o.streams.Consume(ctx, responseID, conversationID, func(ctx context.Context) (stream.ChunkStream, error) {
		return o.model.Stream(ctx, scratch)
	})
	return result, records, err
}

// invoke resolves and executes one tool call, never propagating tool errors
// into the loop; failures are reported back to the model as tool output.
func (o *Orchestrator) invoke(ctx context.Context, call ToolCall) models.ToolCallRecord {
	record := models.ToolCallRecord{
		Name:      call.Name,
		Arguments: call.Arguments,
		Timestamp: time.Now().UTC(),
	}

	log := o.log.WithContext(ctx)

	tool, err := o.tools.Get(call.Name)
	if err != nil {
		record.Error = err.Error()
		log.Warn("model requested unknown tool", "tool", call.Name)
		return record
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		record.Error = err.Error()
		log.Error("tool call failed", "tool", call.Name, "error", err)
		return record
	}

	record.Result = formatResult(result)
	log.Debug("tool call succeeded", "tool", call.Name)
	return record
}

func (o *Orchestrator) schemas() []ToolSchema {
	list := o.tools.List()
	out := make([]ToolSchema, len(list))
	for i, tool := range list {
		out[i] = ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		}
	}
	return out
}

// Track records an async workflow task handle
func (o *Orchestrator) Track(taskID, workflowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracked[taskID] = workflowID
}

// Untrack clears a completed task handle
func (o *Orchestrator) Untrack(taskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tracked, taskID)
}

// Tracked returns a snapshot of in-flight async workflow tasks
func (o *Orchestrator) Tracked() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]string, len(o.tracked))
	for k, v := range o.tracked {
		out[k] = v
	}
	return out
}

func formatResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func toolResultMessage(record models.ToolCallRecord) string {
	if record.Error != "" {
		return fmt.Sprintf("tool %s failed: %s", record.Name, record.Error)
	}
	return fmt.Sprintf("tool %s returned: %s", record.Name, record.Result)
}
