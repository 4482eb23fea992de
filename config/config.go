package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the server and the CLI.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Conversion ConversionConfig `yaml:"conversion"`
	Upload     UploadConfig     `yaml:"upload"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Queue      QueueConfig      `yaml:"queue"`
	Storage    StorageConfig    `yaml:"storage"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
	MaxMultipartMB  int64         `yaml:"maxMultipartMB"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"outputPaths"`
	ErrorPaths  []string `yaml:"errorPaths"`
	Development bool     `yaml:"development"`
}

type ConversionConfig struct {
	DPI         int    `yaml:"dpi"`
	Format      string `yaml:"format"`
	JPEGQuality int    `yaml:"jpegQuality"`
	PaddedNames bool   `yaml:"paddedNames"`
}

type UploadConfig struct {
	MaxFileSize       int64 `yaml:"maxFileSize"`
	MaxPageCount      int   `yaml:"maxPageCount"`
	ValidateStructure bool  `yaml:"validateStructure"`
}

type AnalysisConfig struct {
	Provider  string          `yaml:"provider"`
	Timeout   time.Duration   `yaml:"timeout"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Vertex    VertexConfig    `yaml:"vertex"`
	Textract  TextractConfig  `yaml:"textract"`
	Tesseract TesseractConfig `yaml:"tesseract"`
}

type OllamaConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

type VertexConfig struct {
	ProjectID string `yaml:"projectId"`
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
}

type TesseractConfig struct {
	Languages []string `yaml:"languages"`
}

type QueueConfig struct {
	Driver         string        `yaml:"driver"`
	RedisAddr      string        `yaml:"redisAddr"`
	RedisPassword  string        `yaml:"redisPassword"`
	RedisDB        int           `yaml:"redisDB"`
	Concurrency    int           `yaml:"concurrency"`
	MaxRetries     int           `yaml:"maxRetries"`
	ProcessTimeout time.Duration `yaml:"processTimeout"`
	StatusTTL      time.Duration `yaml:"statusTTL"`
}

type StorageConfig struct {
	Type      string        `yaml:"type"`
	Prefix    string        `yaml:"prefix"`
	Retention time.Duration `yaml:"retention"`
	S3        S3Config      `yaml:"s3"`
	Minio     MinioConfig   `yaml:"minio"`
}

const (
	MinDPI = 72
	MaxDPI = 600
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			AllowOrigins:    []string{"*"},
			MaxMultipartMB:  256,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
			ErrorPaths:  []string{"stderr"},
		},
		Conversion: ConversionConfig{
			DPI:         300,
			Format:      "png",
			JPEGQuality: 92,
			PaddedNames: true,
		},
		Upload: UploadConfig{
			MaxFileSize:       100 * 1024 * 1024,
			ValidateStructure: true,
		},
		Analysis: AnalysisConfig{
			Provider: "none",
			Timeout:  60 * time.Second,
			Ollama: OllamaConfig{
				Endpoint: "http://localhost:11434",
				Model:    "llama3.2-vision",
			},
			Vertex: VertexConfig{
				Region: "us-central1",
				Model:  "gemini-1.5-flash",
			},
			Tesseract: TesseractConfig{Languages: []string{"eng"}},
		},
		Queue: QueueConfig{
			Driver:         "memory",
			RedisAddr:      "localhost:6379",
			Concurrency:    1,
			MaxRetries:     0,
			ProcessTimeout: 30 * time.Minute,
			StatusTTL:      24 * time.Hour,
		},
		Storage: StorageConfig{
			Type:      "none",
			Prefix:    "exports/",
			Retention: 24 * time.Hour,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory and the process environment, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(dst *bool, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&c.Server.Addr, "SERVER_ADDR")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Encoding, "LOG_ENCODING")

	num(&c.Conversion.DPI, "RASTER_DPI")
	str(&c.Conversion.Format, "RASTER_FORMAT")
	num(&c.Conversion.JPEGQuality, "RASTER_JPEG_QUALITY")
	flag(&c.Conversion.PaddedNames, "RASTER_PADDED_NAMES")

	if v, ok := os.LookupEnv("UPLOAD_MAX_FILE_SIZE"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("UPLOAD_MAX_FILE_SIZE: %w", err))
		} else {
			c.Upload.MaxFileSize = n
		}
	}

	str(&c.Analysis.Provider, "ANALYSIS_PROVIDER")
	dur(&c.Analysis.Timeout, "ANALYSIS_TIMEOUT")
	str(&c.Analysis.Ollama.Endpoint, "OLLAMA_ENDPOINT")
	str(&c.Analysis.Ollama.Model, "OLLAMA_MODEL")
	str(&c.Analysis.Vertex.ProjectID, "VERTEX_PROJECT_ID")
	str(&c.Analysis.Vertex.Region, "VERTEX_REGION")
	str(&c.Analysis.Vertex.Model, "VERTEX_MODEL")
	c.Analysis.Textract.applyEnv(str)

	str(&c.Queue.Driver, "QUEUE_DRIVER")
	str(&c.Queue.RedisAddr, "REDIS_ADDR")
	str(&c.Queue.RedisPassword, "REDIS_PASSWORD")
	num(&c.Queue.RedisDB, "REDIS_DB")

	str(&c.Storage.Type, "STORAGE_TYPE")
	str(&c.Storage.Prefix, "STORAGE_PREFIX")
	c.Storage.S3.applyEnv(str)
	c.Storage.Minio.applyEnv(str, flag)

	return errors.Join(errs...)
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Conversion.DPI < MinDPI || c.Conversion.DPI > MaxDPI {
		errs = append(errs, fmt.Errorf("conversion.dpi must be between %d and %d, got %d", MinDPI, MaxDPI, c.Conversion.DPI))
	}
	c.Conversion.Format = strings.ToLower(c.Conversion.Format)
	if c.Conversion.Format == "jpg" {
		c.Conversion.Format = "jpeg"
	}
	if c.Conversion.Format != "png" && c.Conversion.Format != "jpeg" {
		errs = append(errs, fmt.Errorf("conversion.format must be png or jpeg, got %q", c.Conversion.Format))
	}
	if c.Conversion.JPEGQuality < 1 || c.Conversion.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("conversion.jpegQuality must be between 1 and 100"))
	}
	if c.Upload.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("upload.maxFileSize must not be negative"))
	}

	switch c.Analysis.Provider {
	case "none", "ollama", "tesseract":
	case "vertex":
		if c.Analysis.Vertex.ProjectID == "" {
			errs = append(errs, fmt.Errorf("analysis.vertex.projectId is required for the vertex provider"))
		}
	case "textract":
		if c.Analysis.Textract.Region == "" {
			errs = append(errs, fmt.Errorf("analysis.textract.region is required for the textract provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown analysis provider %q", c.Analysis.Provider))
	}
	if c.Analysis.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("analysis.timeout must be positive"))
	}

	switch c.Queue.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown queue driver %q", c.Queue.Driver))
	}

	switch c.Storage.Type {
	case "none":
	case "s3":
		if c.Storage.S3.BucketName == "" {
			errs = append(errs, fmt.Errorf("storage.s3.bucketName is required"))
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "" {
			errs = append(errs, fmt.Errorf("storage.minio endpoint and bucketName are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	return errors.Join(errs...)
}
