package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/queue"
	"github.com/lyzr/chatflow/common/trace"
)

// Handler processes a task and returns its result
type Handler func(ctx context.Context, task *queue.Task) (any, error)

// Options tunes pool behaviour. Zero values fall back to defaults.
type Options struct {
	TaskTimeout    time.Duration
	RetryDelay     time.Duration
	DequeueTimeout time.Duration
}

const (
	defaultTaskTimeout    = time.Hour
	defaultRetryDelay     = time.Second
	defaultDequeueTimeout = time.Second
)

// Pool runs one consumer goroutine per registered task kind. Failed tasks are
// requeued with exponential backoff until max_retries is exhausted.
type Pool struct {
	queue *queue.Client
	log   *logger.Logger
	opts  Options

	mu       sync.Mutex
	handlers map[queue.Kind]Handler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a worker pool
func New(q *queue.Client, log *logger.Logger, opts Options) *Pool {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = defaultDequeueTimeout
	}
	return &Pool{
		queue:    q,
		log:      log,
		opts:     opts,
		handlers: make(map[queue.Kind]Handler),
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (p *Pool) Register(kind queue.Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// Start launches one consumer per registered kind
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("worker pool already started")
	}
	if len(p.handlers) == 0 {
		return fmt.Errorf("no task handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for kind, handler := range p.handlers {
		p.wg.Add(1)
		go p.consume(runCtx, kind, handler)
	}

	p.log.Info("worker pool started", "kinds", len(p.handlers))
	return nil
}

// Stop cancels all consumers and waits for in-flight tasks to finish
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) consume(ctx context.Context, kind queue.Kind, handler Handler) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.Dequeue(ctx, kind, p.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("dequeue failed", "kind", kind, "error", err)
			time.Sleep(p.opts.DequeueTimeout)
			continue
		}
		if task == nil {
			continue
		}
		if task.Status.Terminal() {
			p.log.Info("skipping terminal task", "task_id", task.ID, "status", task.Status)
			continue
		}

		p.execute(ctx, task, handler)
	}
}

func (p *Pool) execute(ctx context.Context, task *queue.Task, handler Handler) {
	taskCtx := ctx
	if traceID := task.TraceID(); traceID != "" {
		taskCtx = trace.WithTraceID(taskCtx, traceID)
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, p.opts.TaskTimeout)
	defer cancel()

	log := p.log.WithContext(taskCtx).WithTaskID(task.ID)
	log.Info("task started", "kind", task.Kind, "attempt", task.RetryCount+1)

	result, err := handler(taskCtx, task)

	// Results are recorded even when the pool is shutting down
	recordCtx := context.WithoutCancel(ctx)

	if err != nil {
		log.Error("task failed", "error", err, "retry_count", task.RetryCount)
		p.retry(ctx, recordCtx, task, err)
		return
	}

	if err := p.queue.Complete(recordCtx, task.ID, result, ""); err != nil {
		log.Error("failed to record task result", "error", err)
	}
}

// retry requeues the task after an exponential backoff delay, or records the
// terminal failure once retries are exhausted.
func (p *Pool) retry(ctx, recordCtx context.Context, task *queue.Task, taskErr error) {
	if task.RetryCount >= task.MaxRetries {
		if err := p.queue.Complete(recordCtx, task.ID, nil, taskErr.Error()); err != nil {
			p.log.Error("failed to record task failure", "task_id", task.ID, "error", err)
		}
		return
	}

	task.RetryCount++
	task.Error = ""
	delay := p.opts.RetryDelay * (1 << (task.RetryCount - 1))

	p.log.Info("task scheduled for retry",
		"task_id", task.ID, "retry_count", task.RetryCount, "delay", delay)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		// Shutdown mid-backoff requeues immediately; otherwise the task
		// would strand in RUNNING and never reach a terminal state.
		select {
		case <-ctx.Done():
		case <-timer.C:
		}

		if _, err := p.queue.Enqueue(recordCtx, task); err != nil {
			p.log.Error("failed to requeue task", "task_id", task.ID, "error", err)
		}
	}()
}
