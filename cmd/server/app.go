package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/pdf-rasterizer/config"
	"github.com/feichai0017/pdf-rasterizer/internal/agent"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-rasterizer/internal/service/analysis"
	"github.com/feichai0017/pdf-rasterizer/internal/service/conversion"
	"github.com/feichai0017/pdf-rasterizer/internal/service/export"
	"github.com/feichai0017/pdf-rasterizer/internal/service/selection"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/internal/utils/validator"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
	"github.com/feichai0017/pdf-rasterizer/pkg/storage"
	"github.com/feichai0017/pdf-rasterizer/pkg/worker"
)

// app holds every long-lived component of the server process.
type app struct {
	conversion *conversion.ConversionService
	selection  *selection.Manager
	export     *export.Service
	trigger    *analysis.Trigger
	queue      queue.Queue
	closers    []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{}

	analyzer, err := agent.NewAnalyzer(ctx, &cfg.Analysis, log)
	if err != nil {
		return nil, err
	}
	if c, ok := analyzer.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	st, err := storage.NewStorage(ctx, &cfg.Storage, log)
	if errors.Is(err, storage.ErrStorageDisabled) {
		st = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	s := store.New()
	a.trigger = analysis.NewTrigger(s, analyzer, &analysis.Config{Timeout: cfg.Analysis.Timeout}, log)
	a.conversion = conversion.NewService(
		s,
		pdf.NewLoader(log),
		pdf.NewRasterizer(&pdf.RasterizerConfig{
			Format:      pdf.Format(cfg.Conversion.Format),
			JPEGQuality: cfg.Conversion.JPEGQuality,
		}, log),
		a.trigger,
		validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize:       cfg.Upload.MaxFileSize,
			MaxPageCount:      cfg.Upload.MaxPageCount,
			ValidateStructure: cfg.Upload.ValidateStructure,
		}),
		log,
		&conversion.ServiceConfig{DPI: cfg.Conversion.DPI},
	)
	a.selection = selection.NewManager(s, log)
	a.export = export.NewService(st, &export.Config{
		DPI:         cfg.Conversion.DPI,
		Format:      cfg.Conversion.Format,
		PaddedNames: cfg.Conversion.PaddedNames,
		Prefix:      cfg.Storage.Prefix,
	}, log)

	if err := a.startQueue(ctx, cfg, log); err != nil {
		a.close(log)
		return nil, err
	}
	if st != nil && cfg.Storage.Retention > 0 {
		go a.cleanupLoop(ctx, cfg.Storage.Retention, log)
	}
	return a, nil
}

// startQueue wires convert-all tasks to the conversion service, in process or through redis.
func (a *app) startQueue(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.Queue.Driver != "redis" {
		q := queue.NewMemoryQueue(0, log)
		q.Start(ctx, a.conversion.HandleTask)
		a.queue = q
		a.closers = append(a.closers, q.Close)
		return nil
	}

	qcfg := &queue.QueueConfig{
		RedisAddr:      cfg.Queue.RedisAddr,
		RedisPassword:  cfg.Queue.RedisPassword,
		RedisDB:        cfg.Queue.RedisDB,
		MaxRetries:     cfg.Queue.MaxRetries,
		ProcessTimeout: cfg.Queue.ProcessTimeout,
		StatusTTL:      cfg.Queue.StatusTTL,
	}
	q, err := queue.NewAsynqQueue(qcfg, log)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	a.queue = q

	w := worker.NewConversionWorker(qcfg.RedisOpt(), &worker.Config{Concurrency: cfg.Queue.Concurrency}, q, a.conversion.HandleTask, log)
	if err := w.Start(ctx); err != nil {
		_ = q.Close()
		return fmt.Errorf("failed to start worker: %w", err)
	}
	// the worker drains before the queue client goes away
	a.closers = append(a.closers, w.Stop, q.Close)
	return nil
}

func (a *app) cleanupLoop(ctx context.Context, retention time.Duration, log logger.Logger) {
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.export.Cleanup(ctx, retention); err != nil {
				log.Warn("Export cleanup failed", logger.Error(err))
			}
		}
	}
}

func (a *app) close(log logger.Logger) {
	if a.conversion != nil {
		a.conversion.Close()
	}
	if a.trigger != nil {
		a.trigger.Close()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Warn("Failed to close component", logger.Error(err))
		}
	}
}
