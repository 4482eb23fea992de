package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feichai0017/pdf-rasterizer/internal/agent/analyzer"
	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

const Name = "ollama"

// GenerateResponse 定义 Ollama API 响应结构
type GenerateResponse struct {
	Response      string `json:"response"`
	Model         string `json:"model"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration,omitempty"`
	EvalCount     int    `json:"eval_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Config struct {
	Endpoint    string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client analyzes page images with a local Ollama vision model.
type Client struct {
	endpoint    string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      logger.Logger
}

func NewClient(cfg *Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.Named("ollama"),
	}
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) Analyze(ctx context.Context, artifact models.PageArtifact) (*models.AnalysisResult, error) {
	reqBody := map[string]interface{}{
		"model":  c.model,
		"prompt": analyzer.Prompt,
		"images": []string{base64.StdEncoding.EncodeToString(artifact.Data)},
		"format": "json",
		"stream": false,
		"options": map[string]interface{}{
			"temperature": c.temperature,
		},
	}

	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", result.Error)
	}

	c.logger.Debug("Ollama responded",
		logger.String("model", result.Model),
		logger.Int("evalCount", result.EvalCount),
	)
	return analyzer.ParseResult(result.Response, Name)
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
