package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow(name string) *Workflow {
	w := New(name, "a test workflow")
	w.Nodes = []*Node{
		{ID: "start", Kind: KindStart, Status: NodePending},
		{ID: "work", Kind: KindTask, ToolName: "echo", Status: NodePending},
		{ID: "end", Kind: KindEnd, Status: NodePending},
	}
	w.Edges = []Edge{
		{Source: "start", Target: "work"},
		{Source: "work", Target: "end"},
	}
	return w
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	assert.NoError(t, validWorkflow("ok").Validate())
}

func TestValidateRejectsBadGraphs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Workflow)
	}{
		{"no start", func(w *Workflow) { w.Nodes[0].Kind = KindTask; w.Nodes[0].ToolName = "echo" }},
		{"two starts", func(w *Workflow) {
			w.Nodes = append(w.Nodes, &Node{ID: "start2", Kind: KindStart})
		}},
		{"no end", func(w *Workflow) { w.Nodes = w.Nodes[:2]; w.Edges = w.Edges[:1] }},
		{"duplicate node id", func(w *Workflow) {
			w.Nodes = append(w.Nodes, &Node{ID: "work", Kind: KindEnd})
		}},
		{"edge to unknown node", func(w *Workflow) {
			w.Edges = append(w.Edges, Edge{Source: "work", Target: "ghost"})
		}},
		{"task without tool", func(w *Workflow) { w.Nodes[1].ToolName = "" }},
		{"end unreachable", func(w *Workflow) { w.Edges = w.Edges[:1] }},
		{"condition with one edge", func(w *Workflow) {
			w.Nodes[1] = &Node{ID: "work", Kind: KindCondition}
		}},
		{"condition without conditioned edge", func(w *Workflow) {
			w.Nodes[1] = &Node{ID: "work", Kind: KindCondition}
			w.Edges = append(w.Edges, Edge{Source: "work", Target: "end"})
		}},
		{"loop missing fields", func(w *Workflow) {
			w.Nodes[1] = &Node{ID: "work", Kind: KindLoop}
		}},
		{"parallel references unknown node", func(w *Workflow) {
			w.Nodes[1] = &Node{ID: "work", Kind: KindParallel, ParallelBranches: [][]string{{"ghost"}}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := validWorkflow("bad")
			tc.mutate(w)
			assert.Error(t, w.Validate())
		})
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	w := validWorkflow("round-trip")
	require.NoError(t, r.Register(w))

	got, err := r.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, got)
	assert.Len(t, got.Nodes, 3)
	assert.Len(t, got.Edges, 2)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	w := validWorkflow("dup")
	require.NoError(t, r.Register(w))

	err := r.Register(w)
	assert.ErrorIs(t, err, ErrWorkflowExists)
}

func TestRegistrySearch(t *testing.T) {
	r := NewRegistry()

	a := validWorkflow("Invoice Pipeline")
	a.Description = "processes invoices"
	b := validWorkflow("Report Builder")
	b.Description = "builds weekly reports"
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	assert.Len(t, r.Search("invoice"), 1)
	assert.Len(t, r.Search("WEEKLY"), 1)
	assert.Len(t, r.Search("build"), 1)
	assert.Len(t, r.Search("nothing"), 0)
	assert.Len(t, r.Search(""), 2)
}

func TestCloneIsolatesRunState(t *testing.T) {
	w := validWorkflow("clone")
	w.Variables["seed"] = 1

	run := w.Clone()
	run.Status = StatusRunning
	run.Variables["seed"] = 2
	run.NodeByID("work").Status = NodeCompleted

	assert.Equal(t, StatusPending, w.Status)
	assert.Equal(t, 1, w.Variables["seed"])
	assert.Equal(t, NodeStatus(NodePending), w.NodeByID("work").Status)
}
