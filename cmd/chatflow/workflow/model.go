package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeKind identifies the behaviour of a workflow node
type NodeKind string

const (
	KindStart     NodeKind = "START"
	KindEnd       NodeKind = "END"
	KindTask      NodeKind = "TASK"
	KindCondition NodeKind = "CONDITION"
	KindLoop      NodeKind = "LOOP"
	KindParallel  NodeKind = "PARALLEL"
)

// NodeStatus is the execution state of a node within one run.
// Transitions: PENDING -> RUNNING -> {COMPLETED | FAILED | SKIPPED}.
type NodeStatus string

const (
	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeCompleted NodeStatus = "COMPLETED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// Status is the execution state of a workflow run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Node is a vertex of the workflow graph. Kind-specific fields are populated
// according to Kind; the rest stay zero.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`

	ToolName   string         `json:"tool_name,omitempty"`
	ToolParams map[string]any `json:"tool_params,omitempty"`

	ConditionExpr string `json:"condition_expr,omitempty"`

	LoopVar   string `json:"loop_var,omitempty"`
	LoopItems string `json:"loop_items,omitempty"`

	ParallelBranches [][]string `json:"parallel_branches,omitempty"`

	Status    NodeStatus `json:"status"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Edge is a directed connection between two nodes. Condition is evaluated
// when the source is a CONDITION node.
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

// Workflow is a directed graph of nodes plus the state of its current run.
// The graph is immutable after registration; runs operate on copies.
type Workflow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Version     string  `json:"version,omitempty"`
	Nodes       []*Node `json:"nodes"`
	Edges       []Edge  `json:"edges"`

	Status        Status         `json:"status"`
	CurrentNodeID string         `json:"current_node_id,omitempty"`
	Variables     map[string]any `json:"variables"`
	Error         string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates an empty workflow shell
func New(name, description string) *Workflow {
	return &Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      StatusPending,
		Variables:   make(map[string]any),
		CreatedAt:   time.Now().UTC(),
	}
}

// NodeByID returns the node with the given id, or nil
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// OutgoingEdges returns edges leaving the node, in declaration order
func (w *Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the single START node, or nil when absent
func (w *Workflow) StartNode() *Node {
	for _, n := range w.Nodes {
		if n.Kind == KindStart {
			return n
		}
	}
	return nil
}

// Validate checks the structural invariants of the graph
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}

	seen := make(map[string]*Node, len(w.Nodes))
	var starts, ends int
	for _, n := range w.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node id is required")
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = n

		switch n.Kind {
		case KindStart:
			starts++
		case KindEnd:
			ends++
		case KindTask:
			if n.ToolName == "" {
				return fmt.Errorf("task node %q has no tool name", n.ID)
			}
		case KindCondition, KindLoop, KindParallel:
		default:
			return fmt.Errorf("node %q has unknown kind %q", n.ID, n.Kind)
		}
	}
	if starts != 1 {
		return fmt.Errorf("workflow must have exactly one START node, found %d", starts)
	}
	if ends == 0 {
		return fmt.Errorf("workflow must have at least one END node")
	}

	for _, e := range w.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("edge references unknown source node %q", e.Source)
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("edge references unknown target node %q", e.Target)
		}
	}

	for _, n := range w.Nodes {
		switch n.Kind {
		case KindCondition:
			out := w.OutgoingEdges(n.ID)
			if len(out) < 2 {
				return fmt.Errorf("condition node %q needs at least 2 outgoing edges", n.ID)
			}
			conditioned := false
			for _, e := range out {
				if e.Condition != "" {
					conditioned = true
					break
				}
			}
			if !conditioned {
				return fmt.Errorf("condition node %q has no conditioned edge", n.ID)
			}
		case KindLoop:
			if n.LoopVar == "" || n.LoopItems == "" {
				return fmt.Errorf("loop node %q needs loop_var and loop_items", n.ID)
			}
			if len(w.OutgoingEdges(n.ID)) != 2 {
				return fmt.Errorf("loop node %q needs exactly 2 outgoing edges (body, exit)", n.ID)
			}
		case KindParallel:
			if len(n.ParallelBranches) == 0 {
				return fmt.Errorf("parallel node %q has no branches", n.ID)
			}
			for _, branch := range n.ParallelBranches {
				for _, id := range branch {
					if _, ok := seen[id]; !ok {
						return fmt.Errorf("parallel node %q references unknown node %q", n.ID, id)
					}
				}
			}
		}
	}

	if !w.endReachable() {
		return fmt.Errorf("no END node is reachable from START")
	}
	return nil
}

// endReachable walks directed edges from START looking for an END node.
// PARALLEL branch members count as reachable through their parent.
func (w *Workflow) endReachable() bool {
	start := w.StartNode()
	if start == nil {
		return false
	}

	visited := make(map[string]bool)
	stack := []string{start.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		node := w.NodeByID(id)
		if node == nil {
			continue
		}
		if node.Kind == KindEnd {
			return true
		}
		for _, e := range w.OutgoingEdges(id) {
			stack = append(stack, e.Target)
		}
		for _, branch := range node.ParallelBranches {
			stack = append(stack, branch...)
		}
	}
	return false
}

// Clone returns a deep copy with execution state reset, ready for a run
func (w *Workflow) Clone() *Workflow {
	nodes := make([]*Node, len(w.Nodes))
	for i, n := range w.Nodes {
		copied := *n
		copied.Status = NodePending
		copied.Result = nil
		copied.Error = ""
		copied.StartedAt = nil
		copied.EndedAt = nil
		copied.ToolParams = copyMap(n.ToolParams)
		if n.ParallelBranches != nil {
			copied.ParallelBranches = make([][]string, len(n.ParallelBranches))
			for j, branch := range n.ParallelBranches {
				copied.ParallelBranches[j] = append([]string(nil), branch...)
			}
		}
		nodes[i] = &copied
	}

	return &Workflow{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Nodes:       nodes,
		Edges:       append([]Edge(nil), w.Edges...),
		Status:      StatusPending,
		Variables:   copyMap(w.Variables),
		CreatedAt:   w.CreatedAt,
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
