package workflow

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrWorkflowNotFound is returned when a workflow id is unknown
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrWorkflowExists is returned when registering an id twice
	ErrWorkflowExists = errors.New("workflow already registered")
)

// Registry holds registered workflows under a single exclusive lock
type Registry struct {
	mu        sync.Mutex
	workflows map[string]*Workflow
	order     []string
}

// NewRegistry creates an empty workflow registry
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]*Workflow),
	}
}

// Register validates and stores a workflow. Duplicate ids are rejected.
func (r *Registry) Register(w *Workflow) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[w.ID]; exists {
		return fmt.Errorf("%w: %s", ErrWorkflowExists, w.ID)
	}

	if w.Status == "" {
		w.Status = StatusPending
	}
	for _, n := range w.Nodes {
		if n.Status == "" {
			n.Status = NodePending
		}
	}

	r.workflows[w.ID] = w
	r.order = append(r.order, w.ID)
	return nil
}

// Get returns the registered workflow for an id
func (r *Registry) Get(id string) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return w, nil
}

// List returns all workflows in registration order
func (r *Registry) List() []*Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Workflow, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workflows[id])
	}
	return out
}

// Search returns workflows whose name or description contains the keyword,
// case-insensitive, in registration order.
func (r *Registry) Search(keyword string) []*Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(keyword)
	var out []*Workflow
	for _, id := range r.order {
		w := r.workflows[id]
		if strings.Contains(strings.ToLower(w.Name), needle) ||
			strings.Contains(strings.ToLower(w.Description), needle) {
			out = append(out, w)
		}
	}
	return out
}

// Size returns the number of registered workflows
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workflows)
}
