package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rasterizer/config"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

func TestNewAnalyzer(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	t.Run("none", func(t *testing.T) {
		a, err := NewAnalyzer(ctx, &config.AnalysisConfig{Provider: "none"}, log)
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("ollama", func(t *testing.T) {
		cfg := config.Default().Analysis
		cfg.Provider = "Ollama"
		a, err := NewAnalyzer(ctx, &cfg, log)
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, "ollama", a.Name())
	})

	t.Run("tesseract", func(t *testing.T) {
		a, err := NewAnalyzer(ctx, &config.AnalysisConfig{Provider: "tesseract"}, log)
		require.NoError(t, err)
		assert.Equal(t, "tesseract", a.Name())
	})

	t.Run("vertex without project", func(t *testing.T) {
		_, err := NewAnalyzer(ctx, &config.AnalysisConfig{Provider: "vertex"}, log)
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewAnalyzer(ctx, &config.AnalysisConfig{Provider: "crystal-ball"}, log)
		assert.ErrorContains(t, err, "unsupported analysis provider")
	})
}
