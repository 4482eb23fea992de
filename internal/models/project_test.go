package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergePageKeepsOrderAndUniqueness(t *testing.T) {
	p := &Project{}
	for _, n := range []int{5, 1, 3, 3, 2, 5} {
		p.MergePage(ConvertedPage{PageNumber: n})
	}
	assert.Equal(t, []int{1, 2, 3, 5}, p.PageNumbers())
	assert.True(t, p.HasPage(3))
	assert.False(t, p.HasPage(4))
}

func TestMergePageFirstWriteWins(t *testing.T) {
	p := &Project{}
	assert.True(t, p.MergePage(ConvertedPage{PageNumber: 1, Artifact: PageArtifact{Format: "png"}}))
	assert.False(t, p.MergePage(ConvertedPage{PageNumber: 1, Artifact: PageArtifact{Format: "jpeg"}}))
	page, ok := p.Page(1)
	assert.True(t, ok)
	assert.Equal(t, "png", page.Artifact.Format)
}

func TestCloneIsDeep(t *testing.T) {
	p := &Project{
		Pages:         []ConvertedPage{{PageNumber: 1}},
		SelectedPages: []int{1},
		Analysis:      &AnalysisResult{KeyPoints: []string{"a"}},
	}
	c := p.Clone()
	c.Pages[0].PageNumber = 7
	c.SelectedPages[0] = 7
	c.Analysis.KeyPoints[0] = "b"

	assert.Equal(t, 1, p.Pages[0].PageNumber)
	assert.Equal(t, []int{1}, p.SelectedPages)
	assert.Equal(t, "a", p.Analysis.KeyPoints[0])
}

func TestStatusCanConvert(t *testing.T) {
	assert.True(t, StatusIdle.CanConvert())
	assert.True(t, StatusCompleted.CanConvert())
	assert.True(t, StatusError.CanConvert())
	assert.False(t, StatusLoading.CanConvert())
	assert.False(t, StatusConverting.CanConvert())
}
