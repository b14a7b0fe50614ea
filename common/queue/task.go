package queue

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the queue a task is routed to
type Kind string

const (
	KindWorkflowExecute Kind = "workflow_execute"
	KindChatProcess     Kind = "chat_process"
	KindKnowledgeSearch Kind = "knowledge_search"
)

// Kinds lists all task kinds
func Kinds() []Kind {
	return []Kind{KindWorkflowExecute, KindChatProcess, KindKnowledgeSearch}
}

// Status is the lifecycle state of a task
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further status change is allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// MetadataTraceID is the metadata key carrying the trace id across the queue
const MetadataTraceID = "trace_id"

// Task is a unit of deferred work
type Task struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	Params map[string]any `json:"params"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// NewTask creates a pending task of the given kind
func NewTask(kind Kind, params map[string]any) *Task {
	now := time.Now().UTC()
	if params == nil {
		params = make(map[string]any)
	}
	return &Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		Status:     StatusPending,
		Params:     params,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   make(map[string]string),
		MaxRetries: 3,
	}
}

// TraceID returns the propagated trace id, if any
func (t *Task) TraceID() string {
	return t.Metadata[MetadataTraceID]
}

// SetTraceID stores a trace id for propagation through the queue
func (t *Task) SetTraceID(traceID string) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[MetadataTraceID] = traceID
}
