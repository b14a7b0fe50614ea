package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// FuncTool adapts a plain function into a Tool
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]any
	Fn              func(ctx context.Context, params map[string]any) (any, error)
}

func (t *FuncTool) Name() string           { return t.ToolName }
func (t *FuncTool) Description() string    { return t.ToolDescription }
func (t *FuncTool) Schema() map[string]any { return t.ToolSchema }

func (t *FuncTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	return t.Fn(ctx, params)
}

// EchoTool returns its message parameter unchanged. Useful for workflow
// smoke tests and demos.
type EchoTool struct{}

func (t *EchoTool) Name() string        { return "echo" }
func (t *EchoTool) Description() string { return "Echo the input message back" }

func (t *EchoTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"message"},
	}
}

func (t *EchoTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	msg, _ := params["message"].(string)
	return map[string]any{"message": msg}, nil
}

// HTTPRequestTool performs an HTTP call and returns status and body
type HTTPRequestTool struct {
	client *http.Client
}

// NewHTTPRequestTool creates the tool with a bounded-timeout client
func NewHTTPRequestTool(timeout time.Duration) *HTTPRequestTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRequestTool{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPRequestTool) Name() string        { return "http_request" }
func (t *HTTPRequestTool) Description() string { return "Perform an HTTP request" }

func (t *HTTPRequestTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method": map[string]any{"type": "string"},
			"url":    map[string]any{"type": "string"},
			"body":   map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}
}

func (t *HTTPRequestTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url parameter is required")
	}
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if raw, ok := params["body"].(string); ok && raw != "" {
		body = strings.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return map[string]any{
		"status": resp.StatusCode,
		"body":   string(data),
	}, nil
}

// FileTool reads and writes files under a fixed root directory
type FileTool struct {
	root string
}

// NewFileTool creates the tool rooted at dir
func NewFileTool(dir string) *FileTool {
	return &FileTool{root: dir}
}

func (t *FileTool) Name() string        { return "file" }
func (t *FileTool) Description() string { return "Read or write files in the workspace directory" }

func (t *FileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{"type": "string", "enum": []string{"read", "write", "list"}},
			"path":      map[string]any{"type": "string"},
			"content":   map[string]any{"type": "string"},
		},
		"required": []string{"operation", "path"},
	}
}

func (t *FileTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	op, _ := params["operation"].(string)
	rel, _ := params["path"].(string)

	path, err := t.resolve(rel)
	if err != nil {
		return nil, err
	}

	switch op {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		return map[string]any{"content": string(data)}, nil

	case "write":
		content, _ := params["content"].(string)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		return map[string]any{"written": len(content)}, nil

	case "list":
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", rel, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return map[string]any{"entries": names}, nil

	default:
		return nil, fmt.Errorf("unknown file operation %q", op)
	}
}

// resolve joins rel under the root and rejects paths escaping it
func (t *FileTool) resolve(rel string) (string, error) {
	path := filepath.Join(t.root, filepath.Clean("/"+rel))
	if !strings.HasPrefix(path, filepath.Clean(t.root)+string(os.PathSeparator)) && path != filepath.Clean(t.root) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return path, nil
}

// TransformTool extracts a value from a JSON document by dotted path
type TransformTool struct{}

func (t *TransformTool) Name() string        { return "transform" }
func (t *TransformTool) Description() string { return "Extract a value from JSON by dotted path" }

func (t *TransformTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{"type": "string"},
			"path":  map[string]any{"type": "string"},
		},
		"required": []string{"input", "path"},
	}
}

func (t *TransformTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	input, _ := params["input"].(string)
	path, _ := params["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path parameter is required")
	}

	result := gjson.Get(input, path)
	if !result.Exists() {
		return nil, fmt.Errorf("path %q not found in input", path)
	}
	return map[string]any{"value": result.Value()}, nil
}
