package conversion

import (
	"context"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

// ConversionProcessor is the project lifecycle used by the HTTP API, the queue worker and the CLI.
type ConversionProcessor interface {
	Ingest(ctx context.Context, upload Upload) (*models.Project, error)
	IngestAndLoad(ctx context.Context, upload Upload) (*models.Project, error)
	IngestBatch(ctx context.Context, uploads []Upload) []IngestResult
	Convert(ctx context.Context, projectID string, pages []int) error
	StartConversion(projectID string, pages []int) (*Batch, error)
	CancelConversion(projectID string) error
	Batch(projectID string) (*Batch, bool)
	ConvertAll(ctx context.Context) (*SweepReport, error)
	CurrentSweep() (*Sweep, bool)
	CancelSweep() error
	Project(projectID string) (*models.Project, bool)
	Projects() []*models.Project
	Remove(projectID string) error
	HandleTask(ctx context.Context, task *queue.Task) error
	Close()
}

// UploadValidator rejects uploads that are not acceptable documents.
type UploadValidator interface {
	Validate(filename string, data []byte) error
}

// Upload is a raw file handed to ingest.
type Upload struct {
	Filename string
	Data     []byte
}

// IngestResult pairs each upload of a batch with its project or rejection.
type IngestResult struct {
	Filename string
	Project  *models.Project
	Err      error
}
