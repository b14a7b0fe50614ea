package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/chatflow/cmd/chatflow/agent"
	"github.com/lyzr/chatflow/cmd/chatflow/container"
	"github.com/lyzr/chatflow/cmd/chatflow/models"
	"github.com/lyzr/chatflow/common/bootstrap"
	"github.com/lyzr/chatflow/common/config"
	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/stream"
)

// stubModel answers every prompt with a fixed reply and never calls tools
type stubModel struct {
	reply string
}

func (m *stubModel) Generate(context.Context, []models.Message, []agent.ToolSchema) (*agent.Completion, error) {
	return &agent.Completion{Content: m.reply}, nil
}

func (m *stubModel) Stream(context.Context, []models.Message) (stream.ChunkStream, error) {
	return &sliceStream{chunks: []string{m.reply}}, nil
}

type sliceStream struct {
	chunks []string
	pos    int
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func newTestContainer(t *testing.T) *container.Container {
	t.Helper()

	cfg := &config.Config{
		Service:   config.ServiceConfig{Name: "chatflow", Port: 8080},
		LLM:       config.LLMConfig{MaxRetries: 1, RetryDelay: time.Millisecond},
		Workflow:  config.WorkflowConfig{Timeout: 5 * time.Second},
		Cache:     config.CacheConfig{MaxConversations: 10, ConversationTTL: time.Minute},
		WebSocket: config.WebSocketConfig{IdleTimeout: time.Second},
		Storage:   config.StorageConfig{Dir: t.TempDir()},
	}
	components := &bootstrap.Components{
		Config:  cfg,
		Logger:  logger.New("error", "text"),
		Streams: stream.NewRegistry(),
	}

	c, err := container.NewContainer(context.Background(), components, &stubModel{reply: "hi there"})
	require.NoError(t, err)
	return c
}

// invoke runs a handler against a synthetic request and returns the recorder
func invoke(t *testing.T, handler echo.HandlerFunc, method, target string, body any, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()

	c := echo.New().NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for name, value := range params {
		names = append(names, name)
		values = append(values, value)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	require.NoError(t, handler(c))
	return rec
}

func invokeRaw(t *testing.T, handler echo.HandlerFunc, req *http.Request, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for name, value := range params {
		names = append(names, name)
		values = append(values, value)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	require.NoError(t, handler(c))
	return rec
}
