package stream

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrBufferNotFound is returned when a response id is unknown
var ErrBufferNotFound = errors.New("stream buffer not found")

// Buffer accumulates streamed chunks for one response. It carries its own
// lock because accessors run concurrently with registry writes: the SSE loop
// reads a live buffer while the producing goroutine is still appending.
type Buffer struct {
	ResponseID     string
	ConversationID string

	mu       sync.RWMutex
	chunks   []string
	complete bool
	errMsg   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Content returns the concatenation of all chunks received so far
func (b *Buffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.chunks, "")
}

// Complete reports whether the stream finished without error
func (b *Buffer) Complete() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.complete
}

// Err returns the recorded error message, empty when none
func (b *Buffer) Err() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.errMsg
}

// Chunks returns a copy of the received chunks
func (b *Buffer) Chunks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Registry maps response ids to stream buffers. All methods are safe for
// concurrent use.
type Registry struct {
	mu      sync.Mutex
	buffers map[string]*Buffer
	now     func() time.Time
}

// NewRegistry creates an empty stream buffer registry
func NewRegistry() *Registry {
	return &Registry{
		buffers: make(map[string]*Buffer),
		now:     time.Now,
	}
}

// Create registers an empty buffer for the response id. An existing buffer
// under the same id is replaced.
func (r *Registry) Create(responseID, conversationID string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	buf := &Buffer{
		ResponseID:     responseID,
		ConversationID: conversationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.buffers[responseID] = buf
	return buf
}

// Append adds a chunk to the buffer and refreshes its timestamp
func (r *Registry) Append(responseID, chunk string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[responseID]
	if !ok {
		return ErrBufferNotFound
	}
	buf.mu.Lock()
	buf.chunks = append(buf.chunks, chunk)
	buf.mu.Unlock()
	buf.UpdatedAt = r.now()
	return nil
}

// MarkComplete moves the buffer to its successful terminal state
func (r *Registry) MarkComplete(responseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[responseID]
	if !ok {
		return ErrBufferNotFound
	}
	// complete and error are mutually exclusive
	buf.mu.Lock()
	buf.complete = true
	buf.errMsg = ""
	buf.mu.Unlock()
	buf.UpdatedAt = r.now()
	return nil
}

// MarkError records an error on the buffer without discarding its chunks
func (r *Registry) MarkError(responseID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[responseID]
	if !ok {
		return ErrBufferNotFound
	}
	buf.mu.Lock()
	buf.errMsg = msg
	buf.complete = false
	buf.mu.Unlock()
	buf.UpdatedAt = r.now()
	return nil
}

// Content returns the full content of a completed buffer
func (r *Registry) Content(responseID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[responseID]
	if !ok {
		return "", ErrBufferNotFound
	}
	return buf.Content(), nil
}

// PartialContent returns whatever content has been accumulated so far
func (r *Registry) PartialContent(responseID string) (string, error) {
	return r.Content(responseID)
}

// Get returns the buffer for a response id
func (r *Registry) Get(responseID string) (*Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[responseID]
	if !ok {
		return nil, ErrBufferNotFound
	}
	return buf, nil
}

// Cleanup removes the buffer for a response id
func (r *Registry) Cleanup(responseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, responseID)
}

// CleanupOlderThan removes buffers not updated within the given age and
// returns how many were removed.
func (r *Registry) CleanupOlderThan(age time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-age)
	removed := 0
	for id, buf := range r.buffers {
		if buf.UpdatedAt.Before(cutoff) {
			delete(r.buffers, id)
			removed++
		}
	}
	return removed
}

// Size returns the number of live buffers
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
