package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lyzr/chatflow/common/logger"
)

// ChunkStream yields streamed text chunks. Recv returns io.EOF when the
// stream is exhausted.
type ChunkStream interface {
	Recv() (string, error)
}

// Factory opens a fresh chunk stream. It is invoked once per attempt.
type Factory func(ctx context.Context) (ChunkStream, error)

// Result is the outcome of consuming a stream
type Result struct {
	ResponseID string
	Content    string
	Complete   bool
}

// HandlerOptions tunes retry behaviour. Zero values fall back to defaults.
type HandlerOptions struct {
	// MaxRetries is the total number of stream attempts. Backoff before
	// attempt n is RetryDelay × n.
	MaxRetries     int
	RetryDelay     time.Duration
	RecoveryWindow time.Duration
}

const (
	defaultMaxRetries     = 3
	defaultRetryDelay     = time.Second
	defaultRecoveryWindow = 5 * time.Second
)

// Handler consumes chunk streams into registry buffers with retry-and-resume
// semantics. Chunks collected before a failure are kept, so a retried stream
// resumes on top of the partial content.
type Handler struct {
	registry *Registry
	log      *logger.Logger
	opts     HandlerOptions
}

// NewHandler creates a stream handler over the given registry
func NewHandler(registry *Registry, log *logger.Logger, opts HandlerOptions) *Handler {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.RecoveryWindow <= 0 {
		opts.RecoveryWindow = defaultRecoveryWindow
	}
	return &Handler{registry: registry, log: log, opts: opts}
}

// Registry returns the underlying buffer registry
func (h *Handler) Registry() *Registry { return h.registry }

// Consume drains the stream produced by factory into a buffer keyed by
// responseID. On failure it retries with linear backoff; if every attempt
// fails and partial content exists, the partial result is returned alongside
// the error. Cancellation marks the buffer errored and is propagated; the
// buffer survives for a recovery window before being purged.
func (h *Handler) Consume(ctx context.Context, responseID, conversationID string, factory Factory) (*Result, error) {
	h.registry.Create(responseID, conversationID)
	log := h.log.WithContext(ctx).WithFields(map[string]any{"response_id": responseID})

	var lastErr error
	for attempt := 0; attempt < h.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := h.opts.RetryDelay * time.Duration(attempt)
			log.Warn("stream attempt failed, retrying",
				"attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return h.cancelled(responseID, ctx.Err())
			case <-time.After(delay):
			}
		}

		stream, err := factory(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return h.cancelled(responseID, ctx.Err())
			}
			lastErr = err
			continue
		}

		err = h.drain(responseID, stream)
		if err == nil {
			_ = h.registry.MarkComplete(responseID)
			content, _ := h.registry.Content(responseID)
			log.Debug("stream complete", "length", len(content))
			return &Result{ResponseID: responseID, Content: content, Complete: true}, nil
		}
		if ctx.Err() != nil {
			return h.cancelled(responseID, ctx.Err())
		}
		lastErr = err
	}

	_ = h.registry.MarkError(responseID, lastErr.Error())
	partial, _ := h.registry.PartialContent(responseID)
	log.Error("stream failed after retries", "error", lastErr, "partial_length", len(partial))

	if partial != "" {
		return &Result{ResponseID: responseID, Content: partial, Complete: false},
			fmt.Errorf("stream failed with partial content: %w", lastErr)
	}
	return nil, fmt.Errorf("stream failed: %w", lastErr)
}

func (h *Handler) drain(responseID string, stream ChunkStream) error {
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := h.registry.Append(responseID, chunk); err != nil {
			return err
		}
	}
}

// cancelled marks the buffer and schedules its purge after the recovery
// window, leaving time for a reconnecting client to read the partial content.
func (h *Handler) cancelled(responseID string, cause error) (*Result, error) {
	_ = h.registry.MarkError(responseID, "cancelled")
	partial, _ := h.registry.PartialContent(responseID)

	time.AfterFunc(h.opts.RecoveryWindow, func() {
		h.registry.Cleanup(responseID)
	})

	return &Result{ResponseID: responseID, Content: partial, Complete: false}, cause
}
