package vertex

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

const Name = "vertex"

const systemPrompt = "You are a document analyst. You read a rendered document page and produce a concise abstract and key takeaways as JSON."

type Config struct {
	ProjectID string
	Region    string
	Model     string
}

// Client analyzes pages with a Gemini model on Vertex AI.
type Client struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
	logger     logger.Logger
}

func NewClient(ctx context.Context, cfg *Config, log logger.Logger) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}

	return &Client{
		model:      model,
		baseClient: baseClient,
		logger:     log.Named("vertex"),
	}, nil
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error) {
	image := genai.ImageData(imageFormat(artifact), artifact.Data)
	resp, err := c.model.GenerateContent(ctx, image, genai.Text(analyzer.Prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	return analyzer.ParseResult(responseText(resp), Name)
}

func (c *Client) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

func imageFormat(artifact models.PageArtifact) string {
	if f := strings.TrimPrefix(artifact.ContentType, "image/"); f != "" && f != artifact.ContentType {
		return f
	}
	if artifact.Format != "" {
		return artifact.Format
	}
	return "png"
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
