package conversion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

// Sweep is a running convert-all pass. At most one exists at a time.
type Sweep struct {
	ID         string    `json:"id"`
	ProjectIDs []string  `json:"projectIds"`
	StartedAt  time.Time `json:"startedAt"`

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the sweep is over.
func (sw *Sweep) Done() <-chan struct{} {
	return sw.done
}

type OutcomeKind string

const (
	OutcomeConverted OutcomeKind = "converted"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeSkipped   OutcomeKind = "skipped"
)

type SweepOutcome struct {
	ProjectID string      `json:"projectId"`
	Outcome   OutcomeKind `json:"outcome"`
	Error     string      `json:"error,omitempty"`
}

// SweepReport summarizes a finished convert-all pass.
type SweepReport struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Cancelled  bool           `json:"cancelled"`
	Converted  int            `json:"converted"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Outcomes   []SweepOutcome `json:"outcomes"`
}

func (r *SweepReport) record(projectID string, kind OutcomeKind, err error) {
	outcome := SweepOutcome{ProjectID: projectID, Outcome: kind}
	if err != nil {
		outcome.Error = err.Error()
	}
	r.Outcomes = append(r.Outcomes, outcome)
	switch kind {
	case OutcomeConverted:
		r.Converted++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// ConvertAll converts every project that was Idle or Completed when the sweep
// started, one project at a time. A failing project does not stop the others.
func (s *ConversionService) ConvertAll(ctx context.Context) (*SweepReport, error) {
	sw, sweepCtx, err := s.beginSweep(ctx)
	if err != nil {
		return nil, err
	}
	defer s.endSweep(sw)

	log := s.logger.With(logger.String("sweepId", sw.ID))
	log.Info("Convert all started", logger.Int("projectCount", len(sw.ProjectIDs)))

	report := &SweepReport{
		ID:        sw.ID,
		StartedAt: sw.StartedAt,
		Outcomes:  make([]SweepOutcome, 0, len(sw.ProjectIDs)),
	}

	for _, id := range sw.ProjectIDs {
		if sweepCtx.Err() != nil {
			report.Cancelled = true
			report.record(id, OutcomeSkipped, ErrBatchCancelled)
			continue
		}

		err := s.Convert(sweepCtx, id, nil)
		switch {
		case err == nil:
			report.record(id, OutcomeConverted, nil)
		case errors.Is(err, ErrConversionInProgress),
			errors.Is(err, ErrProjectNotReady),
			errors.Is(err, ErrProjectNotFound),
			errors.Is(err, ErrProjectRemoved),
			errors.Is(err, ErrServiceClosed):
			report.record(id, OutcomeSkipped, err)
		case errors.Is(err, ErrBatchCancelled) && sweepCtx.Err() != nil:
			report.Cancelled = true
			report.record(id, OutcomeSkipped, err)
		default:
			log.Warn("Project failed during convert all", logger.String("projectId", id), logger.Error(err))
			report.record(id, OutcomeFailed, err)
		}
	}

	report.FinishedAt = time.Now()
	log.Info("Convert all finished",
		logger.Int("converted", report.Converted),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped),
		logger.Bool("cancelled", report.Cancelled),
	)
	return report, nil
}

func (s *ConversionService) beginSweep(parent context.Context) (*Sweep, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrServiceClosed
	}
	if s.sweep != nil {
		return nil, nil, ErrSweepInProgress
	}

	var ids []string
	for _, p := range s.store.List() {
		if p.Status == models.StatusIdle || p.Status == models.StatusCompleted {
			ids = append(ids, p.ID)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	sw := &Sweep{
		ID:         uuid.New().String(),
		ProjectIDs: ids,
		StartedAt:  time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.sweep = sw
	return sw, ctx, nil
}

func (s *ConversionService) endSweep(sw *Sweep) {
	s.mu.Lock()
	if s.sweep == sw {
		s.sweep = nil
	}
	s.mu.Unlock()

	sw.cancel()
	close(sw.done)
}

// CurrentSweep returns the running sweep, if any.
func (s *ConversionService) CurrentSweep() (*Sweep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep, s.sweep != nil
}

// CancelSweep stops the running sweep and its in-flight batch.
func (s *ConversionService) CancelSweep() error {
	s.mu.Lock()
	sw := s.sweep
	s.mu.Unlock()
	if sw == nil {
		return ErrNoSweep
	}
	sw.cancel()
	return nil
}
