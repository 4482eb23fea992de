package converters

import (
	"time"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
)

// ProjectView is the API representation of a project. Artifact bytes are never included.
type ProjectView struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	SizeBytes     int64                  `json:"sizeBytes"`
	TotalPages    int                    `json:"totalPages"`
	Title         string                 `json:"title,omitempty"`
	Author        string                 `json:"author,omitempty"`
	Status        string                 `json:"status"`
	Progress      int                    `json:"progress"`
	ErrorMessage  string                 `json:"errorMessage,omitempty"`
	SelectedPages []int                  `json:"selectedPages"`
	Converted     []int                  `json:"convertedPages"`
	Pages         []PageView             `json:"pages"`
	Analysis      *models.AnalysisResult `json:"analysis,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// PageView describes one converted page.
type PageView struct {
	PageNumber  int    `json:"pageNumber"`
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	SizeBytes   int    `json:"sizeBytes"`
}

// JSONConverter turns domain records into API views.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Project(p *models.Project) ProjectView {
	view := ProjectView{
		ID:            p.ID,
		Name:          p.Metadata.Name,
		SizeBytes:     p.Metadata.SizeBytes,
		TotalPages:    p.Metadata.TotalPages,
		Title:         p.Metadata.Title,
		Author:        p.Metadata.Author,
		Status:        string(p.Status),
		Progress:      p.Progress,
		ErrorMessage:  p.ErrorMessage,
		SelectedPages: nonNil(p.SelectedPages),
		Converted:     nonNil(p.PageNumbers()),
		Pages:         make([]PageView, 0, len(p.Pages)),
		Analysis:      p.Analysis,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	for _, page := range p.Pages {
		view.Pages = append(view.Pages, PageView{
			PageNumber:  page.PageNumber,
			Format:      page.Artifact.Format,
			ContentType: page.Artifact.ContentType,
			Width:       page.Artifact.Width,
			Height:      page.Artifact.Height,
			SizeBytes:   len(page.Artifact.Data),
		})
	}
	return view
}

func (c *JSONConverter) Projects(projects []*models.Project) []ProjectView {
	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, c.Project(p))
	}
	return views
}

func nonNil(pages []int) []int {
	if pages == nil {
		return []int{}
	}
	return pages
}
