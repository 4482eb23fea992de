package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

// ConversionWorker consumes queued conversion tasks from redis and runs them
// against the in-process project store.
type ConversionWorker struct {
	BaseWorker
	queue   queue.Queue
	handler queue.Handler
}

func NewConversionWorker(redisOpt asynq.RedisClientOpt, cfg *Config, q queue.Queue, handler queue.Handler, log logger.Logger) *ConversionWorker {
	if cfg.Concurrency <= 0 {
		// sweeps are sequential anyway
		cfg.Concurrency = 1
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = map[string]int{"critical": 6, "default": 3, "low": 1}
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
		Logger: asynqLogger{log.Named("asynq")},
	})

	w := &ConversionWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log.Named("worker"),
		},
		queue:   q,
		handler: handler,
	}

	w.mux.HandleFunc(queue.TaskTypeConvertAll, w.handleTask)
	return w
}

func (w *ConversionWorker) handleTask(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		// malformed payloads never succeed on retry
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing task",
		logger.String("taskId", task.ID),
		logger.String("type", task.Type),
	)

	started := time.Now()
	_ = w.queue.SaveFinalStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusRunning,
		StartedAt: started,
	})

	err := w.handler(ctx, &task)

	final := &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1.0,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		final.Status = queue.StatusFailed
		final.Progress = 0
		final.Error = err.Error()
	}
	// the handler ctx may already be cancelled
	if saveErr := w.queue.SaveFinalStatus(context.Background(), final); saveErr != nil {
		w.logger.Error("Failed to save final status", logger.String("taskId", task.ID), logger.Error(saveErr))
	}
	return err
}

func (w *ConversionWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}

// asynqLogger routes asynq's internal logging through the service logger.
type asynqLogger struct {
	l logger.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }
