// Package analysis runs best-effort content analysis for converted projects.
//
// Each project gets at most one analysis request over its lifetime. Requests
// are posted to a dedicated worker goroutine and tracked as Tasks so callers
// can observe completion without blocking the conversion loop. Failures are
// logged and recorded on the Task, never on the project.
package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/document"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

var (
	ErrClosed         = errors.New("analysis trigger is closed")
	ErrProjectRemoved = errors.New("project removed before analysis finished")
)

const queueSize = 64

type Config struct {
	Timeout time.Duration
}

// Task is the handle of one analysis request.
type Task struct {
	ProjectID   string
	RequestedAt time.Time

	done   chan struct{}
	result *models.AnalysisResult
	err    error
}

// Done is closed when the analysis finished, successfully or not.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finished or ctx is done.
func (t *Task) Wait(ctx context.Context) (*models.AnalysisResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) finish(result *models.AnalysisResult, err error) {
	t.result = result
	t.err = err
	close(t.done)
}

type request struct {
	task     *Task
	artifact models.PageArtifact
}

// Trigger owns the analysis worker.
type Trigger struct {
	analyzer document.Analyzer
	store    *store.Store
	logger   logger.Logger
	config   *Config

	mu       sync.Mutex
	tasks    map[string]*Task
	closed   bool
	requests chan request
	pending  sync.WaitGroup
	stop     context.CancelFunc
	workerWG sync.WaitGroup
}

// NewTrigger starts the worker. A nil analyzer disables analysis.
func NewTrigger(s *store.Store, analyzer document.Analyzer, cfg *Config, log logger.Logger) *Trigger {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{
		analyzer: analyzer,
		store:    s,
		logger:   log.Named("analysis"),
		config:   cfg,
		tasks:    make(map[string]*Task),
		requests: make(chan request, queueSize),
		stop:     cancel,
	}

	t.workerWG.Add(1)
	go t.run(ctx)
	return t
}

// Enabled reports whether an analyzer is configured.
func (t *Trigger) Enabled() bool {
	return t.analyzer != nil
}

// Request schedules analysis of artifact for projectID unless the project was
// already analyzed or a request was already made. The returned bool reports
// whether a new task was created.
func (t *Trigger) Request(projectID string, artifact models.PageArtifact) (*Task, bool) {
	if t.analyzer == nil {
		return nil, false
	}

	t.mu.Lock()
	if existing, ok := t.tasks[projectID]; ok {
		t.mu.Unlock()
		return existing, false
	}
	if t.closed {
		t.mu.Unlock()
		return nil, false
	}
	p, ok := t.store.Get(projectID)
	if !ok || p.Analysis != nil {
		t.mu.Unlock()
		return nil, false
	}

	task := &Task{
		ProjectID:   projectID,
		RequestedAt: time.Now(),
		done:        make(chan struct{}),
	}
	t.tasks[projectID] = task
	t.pending.Add(1)
	t.mu.Unlock()

	t.logger.Info("Analysis requested",
		logger.String("projectId", projectID),
		logger.String("provider", t.analyzer.Name()),
	)

	req := request{task: task, artifact: artifact}
	select {
	case t.requests <- req:
	default:
		// queue full, hand off without blocking the caller
		go func() { t.requests <- req }()
	}
	return task, true
}

// Task returns the analysis task recorded for projectID.
func (t *Trigger) Task(projectID string) (*Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[projectID]
	return task, ok
}

// Forget drops bookkeeping for a removed project.
func (t *Trigger) Forget(projectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, projectID)
}

// Close waits for queued requests to finish and stops the worker.
func (t *Trigger) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.pending.Wait()
	t.stop()
	t.workerWG.Wait()
}

func (t *Trigger) run(ctx context.Context) {
	defer t.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-t.requests:
			t.handle(ctx, req)
			t.pending.Done()
		}
	}
}

func (t *Trigger) handle(ctx context.Context, req request) {
	projectID := req.task.ProjectID
	log := t.logger.With(logger.String("projectId", projectID))

	callCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	started := time.Now()
	result, err := t.analyzer.Analyze(callCtx, req.artifact)
	if err != nil {
		log.Warn("Analysis failed", logger.Error(err))
		req.task.finish(nil, err)
		return
	}
	if result.Provider == "" {
		result.Provider = t.analyzer.Name()
	}
	if result.AnalyzedAt.IsZero() {
		result.AnalyzedAt = time.Now()
	}

	merged := false
	_, err = t.store.Update(projectID, func(p *models.Project) {
		if p.Analysis == nil {
			p.Analysis = result
			merged = true
		}
	})
	if err != nil {
		log.Debug("Analysis result dropped", logger.Error(err))
		req.task.finish(nil, ErrProjectRemoved)
		return
	}

	log.Info("Analysis merged",
		logger.Bool("merged", merged),
		logger.Duration("elapsed", time.Since(started)),
	)
	req.task.finish(result, nil)
}
