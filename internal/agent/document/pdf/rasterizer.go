package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/document"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

const NativeDPI = document.NativeDPI

var (
	ErrPageOutOfRange    = errors.New("page number out of range")
	ErrUnsupportedHandle = errors.New("document was not opened by this engine")
)

// Format 输出图片格式
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpeg"
	}
	return "png"
}

// ContentType returns the MIME type of encoded artifacts.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

type RasterizerConfig struct {
	Format      Format
	JPEGQuality int
}

// Rasterizer renders pages with MuPDF and encodes them with imaging.
type Rasterizer struct {
	config *RasterizerConfig
	logger logger.Logger
}

func NewRasterizer(cfg *RasterizerConfig, log logger.Logger) *Rasterizer {
	if cfg == nil {
		cfg = &RasterizerConfig{Format: FormatPNG, JPEGQuality: 92}
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 92
	}
	return &Rasterizer{
		config: cfg,
		logger: log.Named("rasterizer"),
	}
}

func (r *Rasterizer) Render(ctx context.Context, doc document.Document, pageNumber int, scale float64) (models.PageArtifact, error) {
	if err := ctx.Err(); err != nil {
		return models.PageArtifact{}, err
	}

	fd, ok := doc.(*fitzDocument)
	if !ok {
		return models.PageArtifact{}, ErrUnsupportedHandle
	}
	if pageNumber < 1 || pageNumber > fd.NumPages() {
		return models.PageArtifact{}, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageNumber, fd.NumPages())
	}

	img, err := fd.render(pageNumber, NativeDPI*scale)
	if err != nil {
		return models.PageArtifact{}, fmt.Errorf("failed to render page %d: %w", pageNumber, err)
	}

	return r.Encode(img)
}

// Encode converts a decoded page image into an artifact in the configured format.
func (r *Rasterizer) Encode(img image.Image) (models.PageArtifact, error) {
	var buf bytes.Buffer
	var err error
	switch r.config.Format {
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.config.JPEGQuality))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return models.PageArtifact{}, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds := img.Bounds()
	return models.PageArtifact{
		Format:      r.config.Format.Extension(),
		ContentType: r.config.Format.ContentType(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Data:        buf.Bytes(),
	}, nil
}

func (d *fitzDocument) render(pageNumber int, dpi float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	return d.doc.ImageDPI(pageNumber-1, dpi)
}
