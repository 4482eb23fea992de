package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

func newTestWorker(handler queue.Handler) (*ConversionWorker, *queue.MemoryQueue) {
	statuses := queue.NewMemoryQueue(1, logger.NewTestLogger())
	w := NewConversionWorker(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, &Config{}, statuses, handler, logger.NewTestLogger())
	return w, statuses
}

func encode(t *testing.T, task *queue.Task) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	return asynq.NewTask(task.Type, payload)
}

func TestHandleTaskRecordsCompletion(t *testing.T) {
	var got *queue.Task
	w, statuses := newTestWorker(func(ctx context.Context, task *queue.Task) error {
		got = task
		return nil
	})

	err := w.handleTask(context.Background(), encode(t, &queue.Task{ID: "t1", Type: queue.TaskTypeConvertAll}))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.ID)

	status, err := statuses.GetTaskStatus(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, status.Status)
}

func TestHandleTaskRecordsFailure(t *testing.T) {
	w, statuses := newTestWorker(func(ctx context.Context, task *queue.Task) error {
		return errors.New("sweep already running")
	})

	err := w.handleTask(context.Background(), encode(t, &queue.Task{ID: "t2", Type: queue.TaskTypeConvertAll}))
	require.Error(t, err)

	status, err := statuses.GetTaskStatus(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, status.Status)
	assert.Equal(t, "sweep already running", status.Error)
}

func TestHandleTaskSkipsRetryOnBadPayload(t *testing.T) {
	w, _ := newTestWorker(func(ctx context.Context, task *queue.Task) error { return nil })

	err := w.handleTask(context.Background(), asynq.NewTask(queue.TaskTypeConvertAll, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
