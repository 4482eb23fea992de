package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLoggerSharesEntriesWithChildren(t *testing.T) {
	log := NewTestLogger()
	child := log.Named("conversion").With(String("project_id", "p1"))

	child.Warn("analysis failed")
	log.Info("root entry")

	entries := log.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "conversion", entries[0].Logger)
	assert.Len(t, entries[0].Fields, 1)
	assert.True(t, log.Contains("WARN", "analysis failed"))
	assert.False(t, log.Contains("ERROR", "analysis failed"))

	log.Clear()
	assert.Empty(t, log.GetEntries())
}

func TestFromContext(t *testing.T) {
	log := NewTestLogger()
	ctx := WithProjectID(WithRequestID(context.Background(), "req-1"), "p1")

	FromContext(ctx, log).Info("hello")

	entries := log.GetEntries()
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Fields, 2)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}), WithErrorPaths(nil))
	assert.Error(t, err)
}
