package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue runs tasks in process on a single worker goroutine.
type MemoryQueue struct {
	logger logger.Logger

	mu       sync.Mutex
	statuses map[string]*TaskStatus
	running  map[string]context.CancelFunc
	pending  chan *Task
	handler  Handler
	closed   bool
	wg       sync.WaitGroup
	stop     context.CancelFunc
}

func NewMemoryQueue(size int, log logger.Logger) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		logger:   log.Named("queue"),
		statuses: make(map[string]*TaskStatus),
		running:  make(map[string]context.CancelFunc),
		pending:  make(chan *Task, size),
	}
}

// Start consumes tasks with handler until ctx ends or Close is called.
func (q *MemoryQueue) Start(ctx context.Context, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.handler = handler
	q.stop = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-q.pending:
				q.process(ctx, task)
			}
		}
	}()
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.statuses[task.ID] = &TaskStatus{TaskID: task.ID, Status: StatusPending, StartedAt: task.CreatedAt}
	q.mu.Unlock()

	select {
	case q.pending <- task:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.statuses, task.ID)
		q.mu.Unlock()
		return ctx.Err()
	}
}

func (q *MemoryQueue) process(ctx context.Context, task *Task) {
	q.mu.Lock()
	status := q.statuses[task.ID]
	if status == nil || status.Status == StatusCancelled {
		q.mu.Unlock()
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	q.running[task.ID] = cancel
	status.Status = StatusRunning
	status.StartedAt = time.Now()
	handler := q.handler
	q.mu.Unlock()

	log := q.logger.With(logger.String("taskId", task.ID), logger.String("type", task.Type))
	log.Info("Processing task")

	err := handler(taskCtx, task)
	cancel()

	final := &TaskStatus{
		TaskID:     task.ID,
		StartedAt:  status.StartedAt,
		FinishedAt: time.Now(),
		Status:     StatusCompleted,
		Progress:   1.0,
	}
	if err != nil {
		log.Warn("Task failed", logger.Error(err))
		final.Status = StatusFailed
		final.Progress = 0
		final.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			final.Status = StatusCancelled
		}
	}

	q.mu.Lock()
	delete(q.running, task.ID)
	q.mu.Unlock()
	_ = q.SaveFinalStatus(ctx, final)
}

func (q *MemoryQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *status
	return &copied, nil
}

// CancelTask drops a pending task or cancels the context of a running one.
func (q *MemoryQueue) CancelTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	status, ok := q.statuses[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if cancel, running := q.running[taskID]; running {
		cancel()
		return nil
	}
	if status.Status == StatusPending {
		status.Status = StatusCancelled
		status.FinishedAt = time.Now()
	}
	return nil
}

func (q *MemoryQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	copied := *status
	q.statuses[status.TaskID] = &copied
	return nil
}

// Close stops the worker after the running task returns.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	stop := q.stop
	q.mu.Unlock()

	if stop != nil {
		stop()
	}
	q.wg.Wait()
	return nil
}
