package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

type fakeAnalyzer struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.AnalysisResult{Title: "Report", Summary: string(artifact.Data)}, nil
}

func setup(t *testing.T, analyzer *fakeAnalyzer) (*Trigger, *store.Store, *logger.TestLogger) {
	t.Helper()
	s := store.New()
	require.NoError(t, s.Add(&models.Project{ID: "p1", Status: models.StatusConverting}))
	log := logger.NewTestLogger()
	trigger := NewTrigger(s, analyzer, &Config{Timeout: time.Second}, log)
	t.Cleanup(trigger.Close)
	return trigger, s, log
}

func TestRequestMergesResult(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	trigger, s, _ := setup(t, analyzer)

	task, created := trigger.Request("p1", models.PageArtifact{Data: []byte("page one")})
	require.True(t, created)

	result, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "page one", result.Summary)
	assert.Equal(t, "fake", result.Provider)

	p, _ := s.Get("p1")
	require.NotNil(t, p.Analysis)
	assert.Equal(t, "Report", p.Analysis.Title)
}

func TestRequestAtMostOncePerProject(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	trigger, _, _ := setup(t, analyzer)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := trigger.Request("p1", models.PageArtifact{}); ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	task, ok := trigger.Task("p1")
	require.True(t, ok)
	_, err := task.Wait(context.Background())
	require.NoError(t, err)

	_, again := trigger.Request("p1", models.PageArtifact{})
	assert.False(t, again)
	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestFailureIsSwallowed(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("quota exceeded")}
	trigger, s, log := setup(t, analyzer)

	task, _ := trigger.Request("p1", models.PageArtifact{})
	_, err := task.Wait(context.Background())
	assert.EqualError(t, err, "quota exceeded")

	p, _ := s.Get("p1")
	assert.Nil(t, p.Analysis)
	assert.Equal(t, models.StatusConverting, p.Status)
	assert.Empty(t, p.ErrorMessage)
	assert.True(t, log.Contains("WARN", "Analysis failed"))

	_, again := trigger.Request("p1", models.PageArtifact{})
	assert.False(t, again)
}

func TestAlreadyAnalyzedProjectIsSkipped(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	trigger, s, _ := setup(t, analyzer)
	_, err := s.Update("p1", func(p *models.Project) { p.Analysis = &models.AnalysisResult{Title: "done"} })
	require.NoError(t, err)

	task, created := trigger.Request("p1", models.PageArtifact{})
	assert.Nil(t, task)
	assert.False(t, created)
	assert.Equal(t, int32(0), analyzer.calls.Load())
}

func TestProjectRemovedBeforeMerge(t *testing.T) {
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	trigger, s, _ := setup(t, analyzer)

	task, _ := trigger.Request("p1", models.PageArtifact{})
	_, err := s.Remove("p1")
	require.NoError(t, err)
	close(analyzer.release)

	_, err = task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrProjectRemoved)
}

func TestDisabledWithoutAnalyzer(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add(&models.Project{ID: "p1"}))
	trigger := NewTrigger(s, nil, nil, logger.NewTestLogger())
	defer trigger.Close()

	assert.False(t, trigger.Enabled())
	task, created := trigger.Request("p1", models.PageArtifact{})
	assert.Nil(t, task)
	assert.False(t, created)
}
