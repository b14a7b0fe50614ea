package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/chatflow/common/logger"
	"github.com/lyzr/chatflow/common/redis"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	log := logger.New("error", "text")
	return NewClient(redis.NewClient(raw, log), log)
}

func TestEnqueueThenGet(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindWorkflowExecute, map[string]any{"workflow_id": "wf-1"})
	id, err := c.Enqueue(ctx, task)
	require.NoError(t, err)
	require.Equal(t, task.ID, id)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, "wf-1", got.Params["workflow_id"])

	status, err := c.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status)

	n, err := c.QueueLength(ctx, KindWorkflowExecute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDequeueMarksRunning(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindChatProcess, nil)
	_, err := c.Enqueue(ctx, task)
	require.NoError(t, err)

	got, err := c.Dequeue(ctx, KindChatProcess, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	n, err := c.QueueLength(ctx, KindChatProcess)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDequeueFIFOOrder(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	first := NewTask(KindKnowledgeSearch, nil)
	second := NewTask(KindKnowledgeSearch, nil)
	_, err := c.Enqueue(ctx, first)
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, second)
	require.NoError(t, err)

	got, err := c.Dequeue(ctx, KindKnowledgeSearch, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestCompleteSetsTimestampsAndStatus(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindWorkflowExecute, nil)
	_, err := c.Enqueue(ctx, task)
	require.NoError(t, err)

	got, err := c.Dequeue(ctx, KindWorkflowExecute, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, c.Complete(ctx, got.ID, map[string]any{"ok": true}, ""))

	done, err := c.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.StartedAt)
	assert.False(t, done.CompletedAt.Before(*done.StartedAt), "started_at must not exceed completed_at")
}

func TestCompleteWithErrorFails(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindWorkflowExecute, nil)
	_, err := c.Enqueue(ctx, task)
	require.NoError(t, err)

	require.NoError(t, c.Complete(ctx, task.ID, nil, "boom"))

	got, err := c.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestCancelIsIdempotentTerminal(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindWorkflowExecute, nil)
	_, err := c.Enqueue(ctx, task)
	require.NoError(t, err)

	ok, err := c.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second cancel returns false: CANCELLED is terminal
	ok, err = c.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestCancelRunningTaskReturnsFalse(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindWorkflowExecute, nil)
	_, err := c.Enqueue(ctx, task)
	require.NoError(t, err)

	_, err = c.Dequeue(ctx, KindWorkflowExecute, time.Second)
	require.NoError(t, err)

	ok, err := c.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUnknownTask(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.Get(ctx, "no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTraceIDPropagatesThroughQueue(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	task := NewTask(KindWorkflowExecute, nil)
	task.SetTraceID("trace-42")
	_, err := c.Enqueue(ctx, task)
	require.NoError(t, err)

	got, err := c.Dequeue(ctx, KindWorkflowExecute, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "trace-42", got.TraceID())
}
