package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/pdf-rasterizer/config"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer/ollama"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer/tesseract"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer/textract"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer/vertex"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/document"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

const ProviderNone = "none"

// NewAnalyzer builds the analyzer named by cfg.Provider. It returns a nil
// analyzer when analysis is turned off.
func NewAnalyzer(ctx context.Context, cfg *config.AnalysisConfig, log logger.Logger) (document.Analyzer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	log.Info("Creating analyzer", logger.String("provider", provider))

	switch provider {
	case "", ProviderNone:
		return nil, nil
	case ollama.Name:
		return ollama.NewClient(&ollama.Config{
			Endpoint: cfg.Ollama.Endpoint,
			Model:    cfg.Ollama.Model,
			Timeout:  cfg.Timeout,
		}, log), nil
	case vertex.Name:
		client, err := vertex.NewClient(ctx, &vertex.Config{
			ProjectID: cfg.Vertex.ProjectID,
			Region:    cfg.Vertex.Region,
			Model:     cfg.Vertex.Model,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex analyzer: %w", err)
		}
		return client, nil
	case textract.Name:
		p, err := textract.NewProcessor(ctx, &textract.Config{
			Region:    cfg.Textract.Region,
			Endpoint:  cfg.Textract.Endpoint,
			AccessKey: cfg.Textract.AccessKey,
			SecretKey: cfg.Textract.SecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract analyzer: %w", err)
		}
		return p, nil
	case tesseract.Name:
		return tesseract.NewProcessor(&tesseract.Config{Languages: cfg.Tesseract.Languages}, log), nil
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", cfg.Provider)
	}
}
