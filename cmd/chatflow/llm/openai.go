// Package llm adapts the OpenAI Chat Completions API to the agent's
// ChatModel interface.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/chatflow/cmd/chatflow/agent"
	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/common/config"
	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/stream"
)

// OpenAIModel implements agent.ChatModel over the Chat Completions API
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *logger.Logger
}

// NewOpenAI creates the adapter from the LLM configuration
func NewOpenAI(cfg config.LLMConfig, log *logger.Logger) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	return &OpenAIModel{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		log:         log,
	}, nil
}

// Generate requests one completion, surfacing any tool calls the model made
func (m *OpenAIModel) Generate(ctx context.Context, messages []models.Message, tools []agent.ToolSchema) (*agent.Completion, error) {
	request := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    translateMessages(messages),
		Temperature: m.temperature,
	}

	encoded, err := encodeTools(tools)
	if err != nil {
		return nil, err
	}
	request.Tools = encoded

	response, err := m.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := response.Choices[0].Message
	completion := &agent.Completion{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				m.log.Warn("malformed tool arguments", "tool", call.Function.Name, "error", err)
			}
		}
		completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return completion, nil
}

// Stream opens a streaming completion and adapts it to a chunk stream
func (m *OpenAIModel) Stream(ctx context.Context, messages []models.Message) (stream.ChunkStream, error) {
	s, err := m.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    translateMessages(messages),
		Temperature: m.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	return &completionStream{inner: s}, nil
}

type completionStream struct {
	inner *openai.ChatCompletionStream
}

// Recv returns the next non-empty content delta, io.EOF at stream end
func (s *completionStream) Recv() (string, error) {
	for {
		response, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			s.inner.Close()
			return "", io.EOF
		}
		if err != nil {
			s.inner.Close()
			return "", fmt.Errorf("stream receive failed: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func translateMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := string(msg.Role)
		// Tool scratchpad entries travel as user turns; the completions
		// tool role requires call ids this adapter does not thread through.
		if msg.Role == models.RoleTool {
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}

func encodeTools(tools []agent.ToolSchema) ([]openai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, schema := range tools {
		params, err := json.Marshal(schema.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for tool %s: %w", schema.Name, err)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out, nil
}
