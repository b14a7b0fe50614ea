package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/chatflow/cmd/chatflow/tools"
	"github.com/lyzr/chatflow/common/logger"
)

// recorderTool appends the value parameter of each call, in call order
type recorderTool struct {
	mu    sync.Mutex
	calls []string
}

func (t *recorderTool) Name() string           { return "record" }
func (t *recorderTool) Description() string    { return "record a value" }
func (t *recorderTool) Schema() map[string]any { return map[string]any{} }

func (t *recorderTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, fmt.Sprint(params["value"]))
	return map[string]any{"recorded": params["value"]}, nil
}

func (t *recorderTool) recorded() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type failingTool struct{}

func (t *failingTool) Name() string           { return "fail" }
func (t *failingTool) Description() string    { return "always fails" }
func (t *failingTool) Schema() map[string]any { return map[string]any{} }

func (t *failingTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	return nil, errors.New("tool exploded")
}

type sleepTool struct{}

func (t *sleepTool) Name() string           { return "sleep" }
func (t *sleepTool) Description() string    { return "block until cancelled" }
func (t *sleepTool) Schema() map[string]any { return map[string]any{} }

func (t *sleepTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return "woke up", nil
	}
}

func newTestEngine(t *testing.T, timeout time.Duration, extra ...tools.Tool) (*Engine, *recorderTool) {
	t.Helper()

	registry := NewRegistry()
	toolRegistry := tools.NewRegistry()
	recorder := &recorderTool{}
	require.NoError(t, toolRegistry.Register(&tools.EchoTool{}))
	require.NoError(t, toolRegistry.Register(recorder))
	require.NoError(t, toolRegistry.Register(&failingTool{}))
	require.NoError(t, toolRegistry.Register(&sleepTool{}))
	for _, tool := range extra {
		require.NoError(t, toolRegistry.Register(tool))
	}

	return NewEngine(registry, toolRegistry, logger.New("error", "text"), timeout), recorder
}

func linearWorkflow() *Workflow {
	w := New("greeter", "echoes a greeting")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "say", Kind: KindTask, ToolName: "echo", ToolParams: map[string]any{"message": "{greeting}"}},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "say"},
		{Source: "say", Target: "end"},
	}
	return w
}

func TestExecuteLinearWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, time.Minute)

	w := linearWorkflow()
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, map[string]any{"greeting": "hello"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)

	say := run.NodeByID("say")
	assert.Equal(t, NodeCompleted, say.Status)
	assert.Equal(t, map[string]any{"message": "hello"}, say.Result)

	// The registered workflow stays pristine
	assert.Equal(t, StatusPending, w.Status)
	assert.Equal(t, NodeStatus(NodePending), w.NodeByID("say").Status)
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, time.Minute)
	_, err := e.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestExecuteConditionalBranches(t *testing.T) {
	e, recorder := newTestEngine(t, time.Minute)

	w := New("brancher", "")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "check", Kind: KindCondition},
		{ID: "pos", Kind: KindTask, ToolName: "record", ToolParams: map[string]any{"value": "positive"}},
		{ID: "neg", Kind: KindTask, ToolName: "record", ToolParams: map[string]any{"value": "non-positive"}},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "check"},
		{Source: "check", Target: "pos", Condition: "vars.x > 0"},
		{Source: "check", Target: "neg"},
		{Source: "pos", Target: "end"},
		{Source: "neg", Target: "end"},
	}
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, map[string]any{"x": 5})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"positive"}, recorder.recorded())
	assert.Equal(t, NodeStatus(NodePending), run.NodeByID("neg").Status)

	run, err = e.Execute(context.Background(), w.ID, map[string]any{"x": -1})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"positive", "non-positive"}, recorder.recorded())
}

func TestExecuteLoop(t *testing.T) {
	e, recorder := newTestEngine(t, time.Minute)

	w := New("looper", "")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "each", Kind: KindLoop, LoopVar: "item", LoopItems: "vars.items"},
		{ID: "body", Kind: KindTask, ToolName: "record", ToolParams: map[string]any{"value": "{item}"}},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "each"},
		{Source: "each", Target: "body"},
		{Source: "each", Target: "end"},
		{Source: "body", Target: "each"},
	}
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, map[string]any{
		"items": []any{"a", "b", "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"a", "b", "c"}, recorder.recorded())
	assert.Equal(t, 3, run.NodeByID("each").Result)
}

func TestExecuteParallelFanOut(t *testing.T) {
	e, _ := newTestEngine(t, time.Minute)

	w := New("fanout", "")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "par", Kind: KindParallel, ParallelBranches: [][]string{{"a"}, {"b"}}},
		{ID: "a", Kind: KindTask, ToolName: "echo", ToolParams: map[string]any{"message": "one"}},
		{ID: "b", Kind: KindTask, ToolName: "echo", ToolParams: map[string]any{"message": "two"}},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "par"},
		{Source: "par", Target: "end"},
	}
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, NodeStatus(NodeCompleted), run.NodeByID("a").Status)
	assert.Equal(t, NodeStatus(NodeCompleted), run.NodeByID("b").Status)

	// Branch results merge back into the run variables
	assert.Equal(t, map[string]any{"message": "one"}, run.Variables["a"])
	assert.Equal(t, map[string]any{"message": "two"}, run.Variables["b"])
}

func TestExecuteParallelBranchFailureFailsWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, time.Minute)

	w := New("fanout-fail", "")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "par", Kind: KindParallel, ParallelBranches: [][]string{{"ok"}, {"boom"}}},
		{ID: "ok", Kind: KindTask, ToolName: "echo", ToolParams: map[string]any{"message": "fine"}},
		{ID: "boom", Kind: KindTask, ToolName: "fail"},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "par"},
		{Source: "par", Target: "end"},
	}
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, NodeStatus(NodeFailed), run.NodeByID("par").Status)
	assert.Equal(t, NodeStatus(NodeFailed), run.NodeByID("boom").Status)
}

func TestExecuteTaskFailureFailsWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, time.Minute)

	w := New("doomed", "")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "boom", Kind: KindTask, ToolName: "fail"},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "boom"},
		{Source: "boom", Target: "end"},
	}
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.Error, "tool exploded")
	assert.Equal(t, NodeStatus(NodeFailed), run.NodeByID("boom").Status)
	assert.Equal(t, NodeStatus(NodePending), run.NodeByID("end").Status)
}

func TestExecuteTimeout(t *testing.T) {
	e, _ := newTestEngine(t, 50*time.Millisecond)

	w := New("sleeper", "")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart},
		{ID: "nap", Kind: KindTask, ToolName: "sleep"},
		{ID: "end", Kind: KindEnd},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "nap"},
		{Source: "nap", Target: "end"},
	}
	require.NoError(t, e.Registry().Register(w))

	run, err := e.Execute(context.Background(), w.ID, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "timeout", run.Error)
	assert.Equal(t, NodeStatus(NodeFailed), run.NodeByID("nap").Status)
}

func TestSubstituteParams(t *testing.T) {
	vars := map[string]any{
		"name":  "alice",
		"count": 3,
		"user":  map[string]any{"email": "a@example.com"},
	}

	params := substituteParams(map[string]any{
		"plain":  "no placeholders",
		"whole":  "{count}",
		"inline": "hello {name}, you have {count} items",
		"dotted": "{user.email}",
		"nested": map[string]any{"inner": "{name}"},
		"miss":   "{unknown}",
	}, vars)

	assert.Equal(t, "no placeholders", params["plain"])
	assert.Equal(t, 3, params["whole"])
	assert.Equal(t, "hello alice, you have 3 items", params["inline"])
	assert.Equal(t, "a@example.com", params["dotted"])
	assert.Equal(t, map[string]any{"inner": "alice"}, params["nested"])
	assert.Equal(t, "{unknown}", params["miss"])
}
