package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.Conversion.DPI)
	assert.Equal(t, "png", cfg.Conversion.Format)
	assert.True(t, cfg.Conversion.PaddedNames)
	assert.Equal(t, 60*time.Second, cfg.Analysis.Timeout)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
conversion:
  dpi: 150
  format: JPG
  paddedNames: false
analysis:
  provider: ollama
  timeout: 5s
storage:
  type: minio
  minio:
    endpoint: localhost:9000
    bucketName: exports
`), 0o600))

	t.Setenv("RASTER_DPI", "200")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Conversion.DPI)
	assert.Equal(t, "jpeg", cfg.Conversion.Format)
	assert.False(t, cfg.Conversion.PaddedNames)
	assert.Equal(t, "ollama", cfg.Analysis.Provider)
	assert.Equal(t, 5*time.Second, cfg.Analysis.Timeout)
	assert.True(t, cfg.Storage.Minio.UseSSL)
	assert.Equal(t, "exports", cfg.Storage.Minio.BucketName)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANALYSIS_PROVIDER=tesseract\nQUEUE_DRIVER=redis\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("ANALYSIS_PROVIDER")
		os.Unsetenv("QUEUE_DRIVER")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tesseract", cfg.Analysis.Provider)
	assert.Equal(t, "redis", cfg.Queue.Driver)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dpi too low", func(c *Config) { c.Conversion.DPI = 50 }},
		{"dpi too high", func(c *Config) { c.Conversion.DPI = 1200 }},
		{"format", func(c *Config) { c.Conversion.Format = "tiff" }},
		{"provider", func(c *Config) { c.Analysis.Provider = "magic" }},
		{"vertex without project", func(c *Config) { c.Analysis.Provider = "vertex" }},
		{"queue driver", func(c *Config) { c.Queue.Driver = "kafka" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBadEnvValue(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RASTER_DPI", "high")
	_, err := Load("")
	assert.Error(t, err)
}
