// Package tesseract analyzes pages with local OCR. It needs libtesseract at build time.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

const Name = "tesseract"

type Config struct {
	Languages []string
	Steps     []Step
}

type Processor struct {
	languages string
	steps     []Step
	logger    logger.Logger
}

func NewProcessor(cfg *Config, log logger.Logger) *Processor {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	steps := cfg.Steps
	if steps == nil {
		steps = DefaultSteps()
	}
	return &Processor{
		languages: strings.Join(langs, "+"),
		steps:     steps,
		logger:    log.Named("tesseract"),
	}
}

func (p *Processor) Name() string {
	return Name
}

func (p *Processor) Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error) {
	data, err := Preprocess(artifact.Data, p.steps)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	lines := strings.Split(text, "\n")
	p.logger.Debug("OCR completed", logger.Int("lines", len(lines)))
	return analyzer.FromLines(lines, Name)
}
