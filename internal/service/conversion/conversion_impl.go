package conversion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/document"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/service/analysis"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

var ErrServiceClosed = errors.New("conversion service closed")

type ConversionService struct {
	store      *store.Store
	loader     document.Loader
	rasterizer document.Rasterizer
	trigger    *analysis.Trigger
	validator  UploadValidator
	logger     logger.Logger
	config     *ServiceConfig
	onProgress ProgressHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	batches map[string]*Batch
	sweep   *Sweep
}

type ServiceConfig struct {
	DPI              int
	ValidateParallel int
}

// ProgressHook observes progress changes of a running batch.
type ProgressHook func(projectID string, progress int)

type Option func(*ConversionService)

func WithProgressHook(hook ProgressHook) Option {
	return func(s *ConversionService) {
		s.onProgress = hook
	}
}

// Batch is one in-flight conversion of a project.
type Batch struct {
	ProjectID string    `json:"projectId"`
	Pages     []int     `json:"pages"`
	StartedAt time.Time `json:"startedAt"`

	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	done   chan struct{}
	err    error
}

// Done is closed when the batch finished, failed or was cancelled.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Err is the batch outcome. Only meaningful after Done is closed.
func (b *Batch) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}

// Wait blocks until the batch is over or ctx ends.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func NewService(
	s *store.Store,
	loader document.Loader,
	rasterizer document.Rasterizer,
	trigger *analysis.Trigger,
	validator UploadValidator,
	log logger.Logger,
	cfg *ServiceConfig,
	opts ...Option,
) *ConversionService {
	if cfg == nil {
		cfg = &ServiceConfig{DPI: 300}
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.ValidateParallel <= 0 {
		cfg.ValidateParallel = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &ConversionService{
		store:      s,
		loader:     loader,
		rasterizer: rasterizer,
		trigger:    trigger,
		validator:  validator,
		logger:     log.Named("conversion"),
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		batches:    make(map[string]*Batch),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ingest validates the upload, registers a Loading project and resolves the
// document in the background.
func (s *ConversionService) Ingest(ctx context.Context, upload Upload) (*models.Project, error) {
	if err := s.validate(upload); err != nil {
		return nil, err
	}
	p, err := s.admit(upload)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.resolve(s.ctx, p.ID, upload.Data)
	}()
	return p, nil
}

// IngestAndLoad is Ingest that waits for the document to be resolved.
func (s *ConversionService) IngestAndLoad(ctx context.Context, upload Upload) (*models.Project, error) {
	if err := s.validate(upload); err != nil {
		return nil, err
	}
	p, err := s.admit(upload)
	if err != nil {
		return nil, err
	}

	err = s.resolve(ctx, p.ID, upload.Data)
	if current, ok := s.store.Get(p.ID); ok {
		p = current
	}
	return p, err
}

// IngestBatch validates all uploads concurrently and registers the accepted
// ones in input order. A rejected upload does not affect the others.
func (s *ConversionService) IngestBatch(ctx context.Context, uploads []Upload) []IngestResult {
	results := make([]IngestResult, len(uploads))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ValidateParallel)
	for i, upload := range uploads {
		results[i].Filename = upload.Filename
		g.Go(func() error {
			results[i].Err = s.validate(upload)
			return nil
		})
	}
	_ = g.Wait()

	for i, upload := range uploads {
		if results[i].Err != nil {
			continue
		}
		p, err := s.admit(upload)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Project = p

		s.wg.Add(1)
		go func(id string, data []byte) {
			defer s.wg.Done()
			_ = s.resolve(s.ctx, id, data)
		}(p.ID, upload.Data)
	}
	return results
}

func (s *ConversionService) validate(upload Upload) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(upload.Filename, upload.Data)
}

func (s *ConversionService) admit(upload Upload) (*models.Project, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrServiceClosed
	}

	p := &models.Project{
		ID:     uuid.New().String(),
		Status: models.StatusLoading,
		Metadata: models.DocumentMetadata{
			Name:      upload.Filename,
			SizeBytes: int64(len(upload.Data)),
		},
		Pages:         []models.ConvertedPage{},
		SelectedPages: []int{},
	}
	if err := s.store.Add(p); err != nil {
		return nil, fmt.Errorf("failed to register project: %w", err)
	}

	s.logger.Info("Project created",
		logger.String("projectId", p.ID),
		logger.String("filename", upload.Filename),
		logger.Int64("size", p.Metadata.SizeBytes),
	)
	current, _ := s.store.Get(p.ID)
	return current, nil
}

// resolve opens the document and moves the project out of Loading.
func (s *ConversionService) resolve(ctx context.Context, projectID string, data []byte) error {
	log := s.logger.With(logger.String("projectId", projectID))

	result, err := s.loader.Load(ctx, data)
	if err != nil {
		log.Error("Failed to load document", logger.Error(err))
		if _, uerr := s.store.Update(projectID, func(p *models.Project) {
			p.Status = models.StatusError
			p.ErrorMessage = MessageLoadFailed
		}); uerr != nil {
			return ErrProjectRemoved
		}
		return &LoadError{ProjectID: projectID, Err: err}
	}

	_, err = s.store.Update(projectID, func(p *models.Project) {
		p.Source = result.Document
		p.Metadata.TotalPages = result.Info.TotalPages
		p.Metadata.Title = result.Info.Title
		p.Metadata.Author = result.Info.Author
		p.Status = models.StatusIdle
		p.ErrorMessage = ""
	})
	if err != nil {
		// removed while loading
		_ = result.Document.Close()
		return ErrProjectRemoved
	}

	log.Info("Document loaded", logger.Int("totalPages", result.Info.TotalPages))
	return nil
}

// Convert renders the target pages of a project and blocks until the batch ends.
// A nil pages slice targets the whole document.
func (s *ConversionService) Convert(ctx context.Context, projectID string, pages []int) error {
	b, err := s.begin(ctx, projectID, pages)
	if err != nil {
		return err
	}
	s.run(b)
	return b.err
}

// StartConversion registers a batch and renders it in the background. The
// batch outlives the caller and stops only on cancel, removal or Close.
func (s *ConversionService) StartConversion(projectID string, pages []int) (*Batch, error) {
	b, err := s.begin(s.ctx, projectID, pages)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(b)
	}()
	return b, nil
}

func (s *ConversionService) begin(parent context.Context, projectID string, pages []int) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceClosed
	}
	if _, busy := s.batches[projectID]; busy {
		return nil, ErrConversionInProgress
	}
	p, ok := s.store.Get(projectID)
	if !ok {
		return nil, ErrProjectNotFound
	}
	if p.Status == models.StatusConverting {
		return nil, ErrConversionInProgress
	}
	if !p.Status.CanConvert() || p.Source == nil {
		return nil, ErrProjectNotReady
	}

	targets := targetPages(pages, p.Metadata.TotalPages)
	if len(targets) == 0 {
		return nil, ErrNoTargetPages
	}

	ctx, cancel := context.WithCancel(parent)
	b := &Batch{
		ProjectID: projectID,
		Pages:     targets,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		stop:      context.AfterFunc(s.ctx, cancel),
		done:      make(chan struct{}),
	}

	_, err := s.store.Update(projectID, func(p *models.Project) {
		p.Status = models.StatusConverting
		p.Progress = 0
		p.ErrorMessage = ""
	})
	if err != nil {
		b.stop()
		cancel()
		return nil, ErrProjectNotFound
	}
	s.batches[projectID] = b
	return b, nil
}

// targetPages clamps the request to the document and orders it.
func targetPages(pages []int, total int) []int {
	if pages == nil {
		targets := make([]int, total)
		for i := range targets {
			targets[i] = i + 1
		}
		return targets
	}

	seen := make(map[int]struct{}, len(pages))
	targets := make([]int, 0, len(pages))
	for _, n := range pages {
		if n < 1 || n > total {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		targets = append(targets, n)
	}
	sort.Ints(targets)
	return targets
}

func (s *ConversionService) run(b *Batch) {
	defer s.finish(b)

	log := s.logger.With(
		logger.String("projectId", b.ProjectID),
		logger.Int("pageCount", len(b.Pages)),
	)
	log.Info("Conversion started", logger.Int("dpi", s.config.DPI))

	scale := document.ScaleForDPI(s.config.DPI)
	total := len(b.Pages)
	started := time.Now()

	for i, pageNumber := range b.Pages {
		if b.ctx.Err() != nil {
			b.err = s.abort(b, ErrBatchCancelled, MessageConversionCancelled)
			log.Info("Conversion cancelled", logger.Int("pagesDone", i))
			return
		}

		p, ok := s.store.Get(b.ProjectID)
		if !ok {
			b.err = ErrProjectRemoved
			log.Info("Conversion aborted, project removed")
			return
		}

		page, exists := p.Page(pageNumber)
		if !exists {
			artifact, err := s.rasterizer.Render(b.ctx, p.Source, pageNumber, scale)
			if err != nil {
				if b.ctx.Err() != nil {
					b.err = s.abort(b, ErrBatchCancelled, MessageConversionCancelled)
					log.Info("Conversion cancelled", logger.Int("pagesDone", i))
					return
				}
				log.Error("Failed to render page", logger.Int("page", pageNumber), logger.Error(err))
				b.err = s.abort(b, &RenderError{ProjectID: b.ProjectID, PageNumber: pageNumber, Err: err}, MessageConversionFailed)
				return
			}
			page = models.ConvertedPage{PageNumber: pageNumber, Artifact: artifact}
			log.Debug("Page rendered", logger.Int("page", pageNumber), logger.Int("bytes", len(artifact.Data)))
		} else {
			log.Debug("Page already converted", logger.Int("page", pageNumber))
		}

		progress := percent(i+1, total)
		updated, err := s.store.Update(b.ProjectID, func(p *models.Project) {
			p.MergePage(page)
			if progress > p.Progress {
				p.Progress = progress
			}
		})
		if err != nil {
			b.err = ErrProjectRemoved
			log.Info("Conversion aborted, project removed")
			return
		}
		if s.onProgress != nil {
			s.onProgress(b.ProjectID, updated.Progress)
		}

		if pageNumber == 1 && updated.Analysis == nil && s.trigger != nil {
			s.trigger.Request(b.ProjectID, page.Artifact)
		}
	}

	if _, err := s.store.Update(b.ProjectID, func(p *models.Project) {
		p.Status = models.StatusCompleted
		p.Progress = 100
	}); err != nil {
		b.err = ErrProjectRemoved
		return
	}
	log.Info("Conversion completed", logger.Duration("elapsed", time.Since(started)))
}

// abort records a failed batch on the project. Pages merged so far are kept.
func (s *ConversionService) abort(b *Batch, cause error, message string) error {
	_, err := s.store.Update(b.ProjectID, func(p *models.Project) {
		p.Status = models.StatusError
		p.ErrorMessage = message
	})
	if err != nil {
		return ErrProjectRemoved
	}
	return cause
}

func (s *ConversionService) finish(b *Batch) {
	s.mu.Lock()
	if s.batches[b.ProjectID] == b {
		delete(s.batches, b.ProjectID)
	}
	s.mu.Unlock()

	b.stop()
	b.cancel()
	close(b.done)
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// CancelConversion stops the running batch of a project.
func (s *ConversionService) CancelConversion(projectID string) error {
	s.mu.Lock()
	b, ok := s.batches[projectID]
	s.mu.Unlock()
	if !ok {
		return ErrNoBatch
	}
	b.cancel()
	return nil
}

// Batch returns the running batch of a project.
func (s *ConversionService) Batch(projectID string) (*Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[projectID]
	return b, ok
}

func (s *ConversionService) Project(projectID string) (*models.Project, bool) {
	return s.store.Get(projectID)
}

func (s *ConversionService) Projects() []*models.Project {
	return s.store.List()
}

// Remove deletes the project, stops its batch and releases its document.
func (s *ConversionService) Remove(projectID string) error {
	removed, err := s.store.Remove(projectID)
	if removed == nil {
		return err
	}
	if err != nil {
		s.logger.Warn("Failed to release document", logger.String("projectId", projectID), logger.Error(err))
	}

	s.mu.Lock()
	b, ok := s.batches[projectID]
	s.mu.Unlock()
	if ok {
		b.cancel()
	}
	if s.trigger != nil {
		s.trigger.Forget(projectID)
	}

	s.logger.Info("Project removed", logger.String("projectId", projectID))
	return nil
}

// HandleTask runs a queued task.
func (s *ConversionService) HandleTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return fmt.Errorf("invalid task: nil")
	}

	switch task.Type {
	case queue.TaskTypeConvertAll:
		report, err := s.ConvertAll(ctx)
		if err != nil {
			return err
		}
		s.logger.Info("Queued convert all finished",
			logger.String("taskId", task.ID),
			logger.Int("converted", report.Converted),
			logger.Int("failed", report.Failed),
			logger.Int("skipped", report.Skipped),
		)
		return nil
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}

// Close cancels running work and waits for background goroutines.
func (s *ConversionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
