package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/lyzr/chatflow/cmd/chatflow/condition"
	"github.com/lyzr/chatflow/cmd/chatflow/tools"
	"github.com/lyzr/chatflow/common/logger"
)

// Engine interprets workflow graphs. It is safe for concurrent runs; each
// run operates on its own copy of the registered workflow.
type Engine struct {
	registry  *Registry
	tools     *tools.Registry
	evaluator *condition.Evaluator
	log       *logger.Logger
	timeout   time.Duration
}

// NewEngine creates a workflow engine
func NewEngine(registry *Registry, toolRegistry *tools.Registry, log *logger.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Engine{
		registry:  registry,
		tools:     toolRegistry,
		evaluator: condition.NewEvaluator(),
		log:       log,
		timeout:   timeout,
	}
}

// Registry returns the workflow registry backing this engine
func (e *Engine) Registry() *Registry { return e.registry }

// Execute runs a registered workflow with the supplied variables merged over
// the workflow defaults. It returns the run snapshot; the snapshot status is
// failed when any node fails or the run times out.
func (e *Engine) Execute(ctx context.Context, id string, variables map[string]any) (*Workflow, error) {
	registered, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}

	run := registered.Clone()
	if run.Variables == nil {
		run.Variables = make(map[string]any)
	}
	for k, v := range variables {
		run.Variables[k] = v
	}

	now := time.Now().UTC()
	run.Status = StatusRunning
	run.StartedAt = &now

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log := e.log.WithContext(ctx).WithWorkflowID(run.ID)
	log.Info("workflow started", "name", run.Name)

	runErr := e.run(ctx, run)

	done := time.Now().UTC()
	run.CompletedAt = &done
	if runErr != nil {
		run.Status = StatusFailed
		if errors.Is(runErr, context.DeadlineExceeded) {
			run.Error = "timeout"
		} else {
			run.Error = runErr.Error()
		}
		log.Error("workflow failed", "error", run.Error)
		return run, runErr
	}

	run.Status = StatusCompleted
	log.Info("workflow completed", "duration", done.Sub(now))
	return run, nil
}

// run walks the graph from START until an END node completes
func (e *Engine) run(ctx context.Context, run *Workflow) error {
	current := run.StartNode()
	for current != nil {
		if err := ctx.Err(); err != nil {
			e.fail(current, err)
			return err
		}

		run.CurrentNodeID = current.ID
		next, err := e.step(ctx, run, current, run.Variables)
		if err != nil {
			return err
		}
		if current.Kind == KindEnd {
			return nil
		}
		if next == nil {
			return fmt.Errorf("node %q has no outgoing edge", current.ID)
		}
		current = next
	}
	return fmt.Errorf("workflow has no START node")
}

// step executes one node and returns the node to visit next. END nodes
// return nil without error.
func (e *Engine) step(ctx context.Context, run *Workflow, node *Node, vars map[string]any) (*Node, error) {
	switch node.Kind {
	case KindStart:
		e.begin(node)
		e.finish(node, nil)
		return e.follow(run, node)

	case KindEnd:
		e.begin(node)
		e.finish(node, nil)
		return nil, nil

	case KindTask:
		if err := e.executeTask(ctx, node, vars); err != nil {
			return nil, err
		}
		return e.follow(run, node)

	case KindCondition:
		return e.executeCondition(run, node, vars)

	case KindLoop:
		return e.executeLoop(ctx, run, node, vars)

	case KindParallel:
		if err := e.executeParallel(ctx, run, node, vars); err != nil {
			return nil, err
		}
		return e.follow(run, node)

	default:
		err := fmt.Errorf("node %q has unknown kind %q", node.ID, node.Kind)
		e.fail(node, err)
		return nil, err
	}
}

// follow returns the target of the node's single outgoing edge
func (e *Engine) follow(run *Workflow, node *Node) (*Node, error) {
	out := run.OutgoingEdges(node.ID)
	if len(out) == 0 {
		return nil, nil
	}
	return run.NodeByID(out[0].Target), nil
}

func (e *Engine) executeTask(ctx context.Context, node *Node, vars map[string]any) error {
	e.begin(node)

	tool, err := e.tools.Get(node.ToolName)
	if err != nil {
		e.fail(node, err)
		return fmt.Errorf("task %q: %w", node.ID, err)
	}

	params := substituteParams(node.ToolParams, vars)

	if err := ctx.Err(); err != nil {
		e.fail(node, err)
		return err
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		e.fail(node, err)
		return fmt.Errorf("task %q failed: %w", node.ID, err)
	}

	e.finish(node, result)

	// Map results keyed by string feed back into the variables so later
	// nodes can reference them.
	if m, ok := result.(map[string]any); ok {
		vars[node.ID] = m
	} else {
		vars[node.ID] = result
	}
	return nil
}

// executeCondition picks the first outgoing edge whose condition holds, in
// declaration order, falling back to the first unconditioned edge.
func (e *Engine) executeCondition(run *Workflow, node *Node, vars map[string]any) (*Node, error) {
	e.begin(node)

	if node.ConditionExpr != "" {
		result, err := e.evaluator.Evaluate(node.ConditionExpr, vars)
		if err != nil {
			e.fail(node, err)
			return nil, fmt.Errorf("condition %q: %w", node.ID, err)
		}
		node.Result = result
	}

	var fallback *Edge
	for _, edge := range run.OutgoingEdges(node.ID) {
		if edge.Condition == "" {
			if fallback == nil {
				copied := edge
				fallback = &copied
			}
			continue
		}
		ok, err := e.evaluator.Evaluate(edge.Condition, vars)
		if err != nil {
			e.fail(node, err)
			return nil, fmt.Errorf("condition %q edge to %q: %w", node.ID, edge.Target, err)
		}
		if ok {
			e.finish(node, node.Result)
			return run.NodeByID(edge.Target), nil
		}
	}

	if fallback != nil {
		e.finish(node, node.Result)
		return run.NodeByID(fallback.Target), nil
	}

	err := fmt.Errorf("condition %q: no edge matched", node.ID)
	e.fail(node, err)
	return nil, err
}

// executeLoop runs the loop body once per item. The first outgoing edge
// enters the body; the body ends at the node carrying the back-edge to the
// loop node; the remaining edge is the exit.
func (e *Engine) executeLoop(ctx context.Context, run *Workflow, node *Node, vars map[string]any) (*Node, error) {
	e.begin(node)

	items, err := e.evaluator.EvaluateItems(node.LoopItems, vars)
	if err != nil {
		e.fail(node, err)
		return nil, fmt.Errorf("loop %q items: %w", node.ID, err)
	}

	out := run.OutgoingEdges(node.ID)
	bodyEdge, exitEdge := out[0], out[1]

	for i, item := range items {
		vars[node.LoopVar] = item

		current := run.NodeByID(bodyEdge.Target)
		for current != nil && current.ID != node.ID {
			if err := ctx.Err(); err != nil {
				e.fail(current, err)
				e.fail(node, err)
				return nil, err
			}

			// Body nodes run fresh each iteration
			e.reset(current)
			next, err := e.step(ctx, run, current, vars)
			if err != nil {
				e.fail(node, fmt.Errorf("iteration %d: %w", i, err))
				return nil, err
			}
			current = next
		}
	}

	e.finish(node, len(items))
	return run.NodeByID(exitEdge.Target), nil
}

// executeParallel fans branches out concurrently over independent variable
// copies and joins on all of them. Branch results merge back in branch-index
// order, so later branches win key conflicts.
func (e *Engine) executeParallel(ctx context.Context, run *Workflow, node *Node, vars map[string]any) error {
	e.begin(node)

	branchVars := make([]map[string]any, len(node.ParallelBranches))
	g, gctx := errgroup.WithContext(ctx)

	for i, branch := range node.ParallelBranches {
		branchVars[i] = copyMap(vars)
		if branchVars[i] == nil {
			branchVars[i] = make(map[string]any)
		}

		branch := branch
		locals := branchVars[i]
		g.Go(func() error {
			for _, id := range branch {
				branchNode := run.NodeByID(id)
				if branchNode == nil {
					return fmt.Errorf("parallel %q references unknown node %q", node.ID, id)
				}
				if branchNode.Kind != KindTask {
					return fmt.Errorf("parallel %q: node %q is not a task", node.ID, id)
				}
				if err := e.executeTask(gctx, branchNode, locals); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.fail(node, err)
		return fmt.Errorf("parallel %q: %w", node.ID, err)
	}

	for _, locals := range branchVars {
		for k, v := range locals {
			vars[k] = v
		}
	}

	e.finish(node, len(node.ParallelBranches))
	return nil
}

func (e *Engine) begin(node *Node) {
	now := time.Now().UTC()
	node.Status = NodeRunning
	node.StartedAt = &now
}

func (e *Engine) finish(node *Node, result any) {
	now := time.Now().UTC()
	node.Status = NodeCompleted
	if result != nil {
		node.Result = result
	}
	node.EndedAt = &now
}

func (e *Engine) fail(node *Node, err error) {
	now := time.Now().UTC()
	node.Status = NodeFailed
	node.Error = err.Error()
	node.EndedAt = &now
}

func (e *Engine) reset(node *Node) {
	node.Status = NodePending
	node.Result = nil
	node.Error = ""
	node.StartedAt = nil
	node.EndedAt = nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// substituteParams resolves {name} placeholders in string parameters from
// the variables mapping. Dotted names traverse nested values. A parameter
// that is exactly one placeholder keeps the variable's native type.
func substituteParams(params, vars map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, vars)
	}
	return out
}

func substituteValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		return substituteString(val, vars)
	case map[string]any:
		return substituteParams(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, vars)
		}
		return out
	default:
		return v
	}
}

func substituteString(s string, vars map[string]any) any {
	match := placeholderPattern.FindStringSubmatch(s)
	if match != nil && match[0] == s {
		if v, ok := lookupVar(match[1], vars); ok {
			return v
		}
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := lookupVar(name, vars); ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

// lookupVar resolves a possibly dotted variable path
func lookupVar(name string, vars map[string]any) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}

	raw, err := json.Marshal(vars)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(raw, name)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
