package textract

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

const Name = "textract"

// API is the subset of the Textract client used here.
type API interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type Config struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

type Processor struct {
	client API
	config *Config
	logger logger.Logger
}

func NewProcessor(ctx context.Context, cfg *Config, log logger.Logger) (*Processor, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg, log), nil
}

func NewWithClient(client API, cfg *Config, log logger.Logger) *Processor {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 80
	}
	return &Processor{client: client, config: cfg, logger: log.Named("textract")}
}

func (p *Processor) Name() string {
	return Name
}

func (p *Processor) Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error) {
	out, err := p.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: artifact.Data},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}

	lines := p.lines(out.Blocks)
	p.logger.Debug("Textract detected lines", logger.Int("lines", len(lines)))
	return analyzer.FromLines(lines, Name)
}

// lines keeps LINE blocks above the confidence threshold in reading order.
func (p *Processor) lines(blocks []types.Block) []string {
	var lines []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < p.config.MinConfidence {
			continue
		}
		lines = append(lines, *block.Text)
	}
	return lines
}
