package document

import (
	"context"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
)

// NativeDPI is the reference resolution of PDF user space.
const NativeDPI = 72.0

// ScaleForDPI converts an output resolution into a render scale.
func ScaleForDPI(dpi int) float64 {
	return float64(dpi) / NativeDPI
}

// Document is an opened source document held by the rendering engine.
type Document = models.SourceHandle

// LoadResult 文档加载结果
type LoadResult struct {
	Document Document
	Info     models.DocumentMetadata
}

// Loader opens source bytes and resolves document metadata.
type Loader interface {
	Load(ctx context.Context, data []byte) (*LoadResult, error)
}

// Rasterizer renders a single 1-based page at the given scale, where scale 1 is 72 dpi.
type Rasterizer interface {
	Render(ctx context.Context, doc Document, pageNumber int, scale float64) (models.PageArtifact, error)
}

// Analyzer produces a content summary from a rendered page.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error)
}
