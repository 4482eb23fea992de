package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/document"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/service/analysis"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/internal/utils/validator"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

type fakeDoc struct {
	pages  int
	failOn int
	closed atomic.Bool
}

func (d *fakeDoc) NumPages() int { return d.pages }

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return nil
}

// fakeLoader reads "pages=N fail=M" after the PDF header.
type fakeLoader struct {
	mu   sync.Mutex
	docs []*fakeDoc
}

func (l *fakeLoader) Load(ctx context.Context, data []byte) (*document.LoadResult, error) {
	var pages, fail int
	if _, err := fmt.Sscanf(string(data), "%%PDF-1.7\npages=%d fail=%d", &pages, &fail); err != nil {
		return nil, fmt.Errorf("cannot parse: %w", err)
	}
	doc := &fakeDoc{pages: pages, failOn: fail}
	l.mu.Lock()
	l.docs = append(l.docs, doc)
	l.mu.Unlock()
	return &document.LoadResult{
		Document: doc,
		Info:     models.DocumentMetadata{TotalPages: pages, Title: "Quarterly Report"},
	}, nil
}

type fakeRasterizer struct {
	mu      sync.Mutex
	calls   map[*fakeDoc][]int
	gate    chan struct{}
	started chan int
}

func newRasterizer() *fakeRasterizer {
	return &fakeRasterizer{calls: make(map[*fakeDoc][]int), started: make(chan int, 64)}
}

func (r *fakeRasterizer) Render(ctx context.Context, doc document.Document, pageNumber int, scale float64) (models.PageArtifact, error) {
	d := doc.(*fakeDoc)
	r.mu.Lock()
	r.calls[d] = append(r.calls[d], pageNumber)
	r.mu.Unlock()

	select {
	case r.started <- pageNumber:
	default:
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return models.PageArtifact{}, ctx.Err()
		}
	}
	if d.closed.Load() {
		return models.PageArtifact{}, errors.New("document closed")
	}
	if pageNumber == d.failOn {
		return models.PageArtifact{}, errors.New("corrupt page stream")
	}
	return models.PageArtifact{
		Format:      "png",
		ContentType: "image/png",
		Data:        []byte(fmt.Sprintf("page-%d@%.2f", pageNumber, scale)),
	}, nil
}

func (r *fakeRasterizer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, pages := range r.calls {
		n += len(pages)
	}
	return n
}

type countingAnalyzer struct {
	calls atomic.Int32
}

func (a *countingAnalyzer) Name() string { return "counting" }

func (a *countingAnalyzer) Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error) {
	a.calls.Add(1)
	return &models.AnalysisResult{Title: "Summary", Summary: string(artifact.Data), KeyPoints: []string{"one"}}, nil
}

type fixture struct {
	svc        *ConversionService
	store      *store.Store
	loader     *fakeLoader
	rasterizer *fakeRasterizer
	trigger    *analysis.Trigger
	progress   map[string][]int
	progressMu *sync.Mutex
}

func newFixture(t *testing.T, analyzer document.Analyzer) *fixture {
	t.Helper()
	log := logger.NewTestLogger()
	s := store.New()
	f := &fixture{
		store:      s,
		loader:     &fakeLoader{},
		rasterizer: newRasterizer(),
		trigger:    analysis.NewTrigger(s, analyzer, &analysis.Config{Timeout: time.Second}, log),
		progress:   make(map[string][]int),
		progressMu: &sync.Mutex{},
	}
	v := validator.NewDocumentValidator(log, &validator.ValidatorConfig{})
	f.svc = NewService(s, f.loader, f.rasterizer, f.trigger, v, log, &ServiceConfig{DPI: 144},
		WithProgressHook(func(id string, progress int) {
			f.progressMu.Lock()
			f.progress[id] = append(f.progress[id], progress)
			f.progressMu.Unlock()
		}))
	t.Cleanup(func() {
		f.svc.Close()
		f.trigger.Close()
	})
	return f
}

func pdfUpload(name string, pages, failOn int) Upload {
	return Upload{Filename: name, Data: []byte(fmt.Sprintf("%%PDF-1.7\npages=%d fail=%d", pages, failOn))}
}

func (f *fixture) load(t *testing.T, pages, failOn int) *models.Project {
	t.Helper()
	p, err := f.svc.IngestAndLoad(context.Background(), pdfUpload("report.pdf", pages, failOn))
	require.NoError(t, err)
	require.Equal(t, models.StatusIdle, p.Status)
	return p
}

func TestIngestRejectsNonPDF(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Ingest(context.Background(), Upload{Filename: "notes.txt", Data: []byte("plain text")})
	assert.ErrorIs(t, err, validator.ErrUnsupportedType)
	assert.Zero(t, f.store.Len())
}

func TestIngestResolvesInBackground(t *testing.T) {
	f := newFixture(t, nil)

	p, err := f.svc.Ingest(context.Background(), pdfUpload("report.pdf", 3, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLoading, p.Status)
	assert.Equal(t, "report.pdf", p.Metadata.Name)

	require.Eventually(t, func() bool {
		current, ok := f.svc.Project(p.ID)
		return ok && current.Status == models.StatusIdle
	}, time.Second, 5*time.Millisecond)

	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, 3, current.Metadata.TotalPages)
	assert.Equal(t, "Quarterly Report", current.Metadata.Title)
}

func TestIngestLoadFailure(t *testing.T) {
	f := newFixture(t, nil)

	p, err := f.svc.IngestAndLoad(context.Background(), Upload{Filename: "broken.pdf", Data: []byte("%PDF-1.7\ngarbage")})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, p.ID, loadErr.ProjectID)
	assert.Equal(t, models.StatusError, p.Status)
	assert.Equal(t, MessageLoadFailed, p.ErrorMessage)

	assert.ErrorIs(t, f.svc.Convert(context.Background(), p.ID, nil), ErrProjectNotReady)
}

func TestIngestBatchKeepsGoodUploads(t *testing.T) {
	f := newFixture(t, nil)

	results := f.svc.IngestBatch(context.Background(), []Upload{
		pdfUpload("a.pdf", 2, 0),
		{Filename: "b.png", Data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}},
		pdfUpload("c.pdf", 4, 0),
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, validator.ErrUnsupportedType)
	assert.Nil(t, results[1].Project)
	assert.NoError(t, results[2].Err)

	projects := f.svc.Projects()
	require.Len(t, projects, 2)
	assert.Equal(t, "a.pdf", projects[0].Metadata.Name)
	assert.Equal(t, "c.pdf", projects[1].Metadata.Name)
}

func TestConvertIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	p := f.load(t, 10, 0)

	require.NoError(t, f.svc.Convert(context.Background(), p.ID, nil))
	require.NoError(t, f.svc.Convert(context.Background(), p.ID, nil))
	require.NoError(t, f.svc.Convert(context.Background(), p.ID, []int{2, 3}))

	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, models.StatusCompleted, current.Status)
	assert.Equal(t, 100, current.Progress)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, current.PageNumbers())
	assert.Equal(t, 10, f.rasterizer.renderCount())
	assert.Equal(t, []byte("page-1@2.00"), current.Pages[0].Artifact.Data)
}

func TestConvertProgressIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	p := f.load(t, 7, 0)

	require.NoError(t, f.svc.Convert(context.Background(), p.ID, nil))

	f.progressMu.Lock()
	seen := append([]int(nil), f.progress[p.ID]...)
	f.progressMu.Unlock()

	require.Len(t, seen, 7)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
	assert.Equal(t, 14, seen[0])
}

func TestConvertExplicitPages(t *testing.T) {
	f := newFixture(t, nil)
	p := f.load(t, 5, 0)

	require.NoError(t, f.svc.Convert(context.Background(), p.ID, []int{3, 1, 3, 99}))
	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, []int{1, 3}, current.PageNumbers())
	assert.Equal(t, models.StatusCompleted, current.Status)

	assert.ErrorIs(t, f.svc.Convert(context.Background(), p.ID, []int{}), ErrNoTargetPages)
	assert.ErrorIs(t, f.svc.Convert(context.Background(), p.ID, []int{0, 6}), ErrNoTargetPages)
}

func TestConvertFailureKeepsRenderedPages(t *testing.T) {
	f := newFixture(t, nil)
	p := f.load(t, 10, 7)

	err := f.svc.Convert(context.Background(), p.ID, nil)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, 7, renderErr.PageNumber)

	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, models.StatusError, current.Status)
	assert.Equal(t, MessageConversionFailed, current.ErrorMessage)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, current.PageNumbers())
	assert.Equal(t, 60, current.Progress)

	require.NoError(t, f.svc.Convert(context.Background(), p.ID, []int{8, 9, 10}))
	current, _ = f.svc.Project(p.ID)
	assert.Equal(t, models.StatusCompleted, current.Status)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 8, 9, 10}, current.PageNumbers())

	// a full retry only renders what is missing
	require.Error(t, f.svc.Convert(context.Background(), p.ID, nil))
	assert.Equal(t, 7+3+1, f.rasterizer.renderCount())
}

func TestConvertUnknownOrNotReady(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Add(&models.Project{ID: "loading", Status: models.StatusLoading}))

	assert.ErrorIs(t, f.svc.Convert(context.Background(), "missing", nil), ErrProjectNotFound)
	assert.ErrorIs(t, f.svc.Convert(context.Background(), "loading", nil), ErrProjectNotReady)
}

func TestSecondConvertIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.rasterizer.gate = make(chan struct{})
	p := f.load(t, 3, 0)

	batch, err := f.svc.StartConversion(p.ID, nil)
	require.NoError(t, err)
	<-f.rasterizer.started

	assert.ErrorIs(t, f.svc.Convert(context.Background(), p.ID, nil), ErrConversionInProgress)
	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, models.StatusConverting, current.Status)

	close(f.rasterizer.gate)
	require.NoError(t, batch.Wait(context.Background()))
	assert.Equal(t, 3, f.rasterizer.renderCount())
}

func TestCancelConversion(t *testing.T) {
	f := newFixture(t, nil)
	f.rasterizer.gate = make(chan struct{})
	p := f.load(t, 3, 0)

	batch, err := f.svc.StartConversion(p.ID, nil)
	require.NoError(t, err)
	<-f.rasterizer.started

	require.NoError(t, f.svc.CancelConversion(p.ID))
	assert.ErrorIs(t, batch.Wait(context.Background()), ErrBatchCancelled)

	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, models.StatusError, current.Status)
	assert.Equal(t, MessageConversionCancelled, current.ErrorMessage)
	assert.ErrorIs(t, f.svc.CancelConversion(p.ID), ErrNoBatch)
}

func TestRemoveDuringConversion(t *testing.T) {
	f := newFixture(t, nil)
	f.rasterizer.gate = make(chan struct{})
	p := f.load(t, 5, 0)

	batch, err := f.svc.StartConversion(p.ID, nil)
	require.NoError(t, err)
	<-f.rasterizer.started

	require.NoError(t, f.svc.Remove(p.ID))
	assert.ErrorIs(t, batch.Wait(context.Background()), ErrProjectRemoved)

	_, ok := f.svc.Project(p.ID)
	assert.False(t, ok)
	assert.True(t, f.loader.docs[0].closed.Load())
	assert.Equal(t, 1, f.rasterizer.renderCount())
	assert.ErrorIs(t, f.svc.Remove(p.ID), ErrProjectNotFound)
}

func TestAnalysisRequestedOnce(t *testing.T) {
	analyzer := &countingAnalyzer{}
	f := newFixture(t, analyzer)
	p := f.load(t, 4, 0)

	require.NoError(t, f.svc.Convert(context.Background(), p.ID, []int{1, 2}))
	require.NoError(t, f.svc.Convert(context.Background(), p.ID, nil))

	task, ok := f.trigger.Task(p.ID)
	require.True(t, ok)
	result, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "page-1@2.00", result.Summary)

	current, _ := f.svc.Project(p.ID)
	require.NotNil(t, current.Analysis)
	assert.Equal(t, "counting", current.Analysis.Provider)
	assert.EqualValues(t, 1, analyzer.calls.Load())
}

func TestAnalysisNotRequestedWithoutPageOne(t *testing.T) {
	analyzer := &countingAnalyzer{}
	f := newFixture(t, analyzer)
	p := f.load(t, 4, 0)

	require.NoError(t, f.svc.Convert(context.Background(), p.ID, []int{2, 3}))
	_, ok := f.trigger.Task(p.ID)
	assert.False(t, ok)
}

func TestConvertAllContinuesPastFailure(t *testing.T) {
	f := newFixture(t, nil)
	good := f.load(t, 3, 0)
	bad := f.load(t, 10, 7)
	other := f.load(t, 2, 0)
	require.NoError(t, f.store.Add(&models.Project{ID: "loading", Status: models.StatusLoading}))

	report, err := f.svc.ConvertAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Converted)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Outcomes, 3)
	assert.False(t, report.Cancelled)

	for _, id := range []string{good.ID, other.ID} {
		p, _ := f.svc.Project(id)
		assert.Equal(t, models.StatusCompleted, p.Status)
		assert.Equal(t, 100, p.Progress)
	}
	failed, _ := f.svc.Project(bad.ID)
	assert.Equal(t, models.StatusError, failed.Status)
	assert.Len(t, failed.Pages, 6)

	_, running := f.svc.CurrentSweep()
	assert.False(t, running)
}

func TestConvertAllSkipsErrorProjects(t *testing.T) {
	f := newFixture(t, nil)
	bad := f.load(t, 3, 2)
	require.Error(t, f.svc.Convert(context.Background(), bad.ID, nil))

	report, err := f.svc.ConvertAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
}

func TestConvertAllIsExclusiveAndCancellable(t *testing.T) {
	f := newFixture(t, nil)
	f.rasterizer.gate = make(chan struct{})
	f.load(t, 3, 0)
	f.load(t, 3, 0)

	done := make(chan *SweepReport, 1)
	go func() {
		report, err := f.svc.ConvertAll(context.Background())
		assert.NoError(t, err)
		done <- report
	}()
	<-f.rasterizer.started

	_, err := f.svc.ConvertAll(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	sweep, ok := f.svc.CurrentSweep()
	require.True(t, ok)
	assert.Len(t, sweep.ProjectIDs, 2)

	require.NoError(t, f.svc.CancelSweep())
	report := <-done
	assert.True(t, report.Cancelled)
	assert.Equal(t, 2, report.Skipped)
	assert.ErrorIs(t, f.svc.CancelSweep(), ErrNoSweep)
}

func TestHandleTask(t *testing.T) {
	f := newFixture(t, nil)
	p := f.load(t, 2, 0)

	require.NoError(t, f.svc.HandleTask(context.Background(), &queue.Task{ID: "t1", Type: queue.TaskTypeConvertAll}))
	current, _ := f.svc.Project(p.ID)
	assert.Equal(t, models.StatusCompleted, current.Status)

	assert.Error(t, f.svc.HandleTask(context.Background(), &queue.Task{Type: "unknown"}))
	assert.Error(t, f.svc.HandleTask(context.Background(), nil))
}

func TestClosedServiceRejectsWork(t *testing.T) {
	f := newFixture(t, nil)
	p := f.load(t, 2, 0)
	f.svc.Close()

	assert.ErrorIs(t, f.svc.Convert(context.Background(), p.ID, nil), ErrServiceClosed)
	_, err := f.svc.Ingest(context.Background(), pdfUpload("late.pdf", 1, 0))
	assert.ErrorIs(t, err, ErrServiceClosed)
}
