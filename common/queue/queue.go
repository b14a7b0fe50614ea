package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/redis"
)

const (
	queuePrefix  = "task_queue:"
	taskPrefix   = "task:"
	statusPrefix = "task_status:"

	// Tasks are retained for 7 days after their last update
	taskRetention = 7 * 24 * time.Hour
)

// ErrTaskNotFound is returned when a task id is unknown or expired
var ErrTaskNotFound = errors.New("task not found")

// Client is a durable task queue over Redis lists. Each task kind has its own
// queue; delivery is at-least-once, FIFO per queue.
type Client struct {
	redis *redis.Client
	log   *logger.Logger
}

// NewClient creates a task queue client
func NewClient(redisClient *redis.Client, log *logger.Logger) *Client {
	return &Client{
		redis: redisClient,
		log:   log,
	}
}

func queueKey(kind Kind) string { return queuePrefix + string(kind) }

func taskKey(id string) string { return taskPrefix + id }

func statusKey(id string) string { return statusPrefix + id }

// Enqueue marks the task queued, persists it, and pushes its id onto the
// queue for its kind. Returns the task id.
func (c *Client) Enqueue(ctx context.Context, task *Task) (string, error) {
	if err := c.redis.Ping(ctx); err != nil {
		return "", fmt.Errorf("queue unavailable: %w", err)
	}

	task.Status = StatusQueued
	task.UpdatedAt = time.Now().UTC()

	if err := c.persist(ctx, task); err != nil {
		return "", err
	}

	if err := c.redis.PushToList(ctx, queueKey(task.Kind), task.ID); err != nil {
		return "", fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}

	c.log.WithContext(ctx).Info("task enqueued", "task_id", task.ID, "kind", task.Kind)
	return task.ID, nil
}

// Dequeue blocks up to timeout for the next task of the given kind, marks it
// running, and returns it. Returns nil on timeout.
func (c *Client) Dequeue(ctx context.Context, kind Kind, timeout time.Duration) (*Task, error) {
	result, err := c.redis.BlockingPopList(ctx, timeout, queueKey(kind))
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	taskID := result[1]

	task, err := c.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			c.log.Warn("dequeued task has no stored data", "task_id", taskID)
			return nil, nil
		}
		return nil, err
	}

	// A task cancelled while still queued keeps its terminal status;
	// the caller is expected to skip it.
	if task.Status.Terminal() {
		return task, nil
	}

	now := time.Now().UTC()
	task.Status = StatusRunning
	task.StartedAt = &now

	if err := c.Update(ctx, task); err != nil {
		return nil, err
	}

	c.log.Info("task dequeued", "task_id", task.ID, "kind", task.Kind)
	return task, nil
}

// Get loads a task by id
func (c *Client) Get(ctx context.Context, taskID string) (*Task, error) {
	data, err := c.redis.Get(ctx, taskKey(taskID))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// Update overwrites the stored task and status keys, refreshing retention
func (c *Client) Update(ctx context.Context, task *Task) error {
	task.UpdatedAt = time.Now().UTC()
	return c.persist(ctx, task)
}

// Complete records the task result or error and moves it to a terminal status
func (c *Client) Complete(ctx context.Context, taskID string, result any, taskErr string) error {
	task, err := c.Get(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.CompletedAt = &now
	task.Result = result
	task.Error = taskErr

	if taskErr != "" {
		task.Status = StatusFailed
	} else {
		task.Status = StatusCompleted
	}

	if err := c.Update(ctx, task); err != nil {
		return err
	}

	c.log.Info("task completed", "task_id", taskID, "status", task.Status)
	return nil
}

// Cancel cancels a task iff it has not started. Returns true when the task
// was cancelled, false when it was already running or terminal.
func (c *Client) Cancel(ctx context.Context, taskID string) (bool, error) {
	task, err := c.Get(ctx, taskID)
	if err != nil {
		return false, err
	}

	if task.Status != StatusPending && task.Status != StatusQueued {
		return false, nil
	}

	now := time.Now().UTC()
	task.Status = StatusCancelled
	task.CompletedAt = &now

	if err := c.Update(ctx, task); err != nil {
		return false, err
	}

	c.log.Info("task cancelled", "task_id", taskID)
	return true, nil
}

// GetStatus returns the stored status string for a task
func (c *Client) GetStatus(ctx context.Context, taskID string) (Status, error) {
	val, err := c.redis.Get(ctx, statusKey(taskID))
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return "", ErrTaskNotFound
		}
		return "", err
	}
	return Status(val), nil
}

// QueueLength returns the number of queued tasks of the given kind
func (c *Client) QueueLength(ctx context.Context, kind Kind) (int64, error) {
	return c.redis.ListLength(ctx, queueKey(kind))
}

// Close releases the underlying Redis pool
func (c *Client) Close() error {
	return c.redis.Close()
}

func (c *Client) persist(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}

	if err := c.redis.SetWithExpiry(ctx, taskKey(task.ID), string(data), taskRetention); err != nil {
		return err
	}
	if err := c.redis.SetWithExpiry(ctx, statusKey(task.ID), string(task.Status), taskRetention); err != nil {
		return err
	}
	return nil
}
