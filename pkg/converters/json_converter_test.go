package converters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
)

func TestProjectView(t *testing.T) {
	p := &models.Project{
		ID:       "p1",
		Metadata: models.DocumentMetadata{Name: "report.pdf", SizeBytes: 2048, TotalPages: 3},
		Status:   models.StatusConverting,
		Progress: 33,
		Pages: []models.ConvertedPage{
			{PageNumber: 2, Artifact: models.PageArtifact{Format: "png", ContentType: "image/png", Width: 10, Height: 20, Data: []byte("abcd")}},
		},
	}

	view := NewJSONConverter().Project(p)
	assert.Equal(t, []int{2}, view.Converted)
	assert.Equal(t, []int{}, view.SelectedPages)
	require.Len(t, view.Pages, 1)
	assert.Equal(t, 4, view.Pages[0].SizeBytes)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"selectedPages":[]`)
	assert.Contains(t, string(raw), `"status":"converting"`)
	assert.NotContains(t, string(raw), "YWJjZA==")
}

func TestProjectsEmpty(t *testing.T) {
	raw, err := json.Marshal(NewJSONConverter().Projects(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
