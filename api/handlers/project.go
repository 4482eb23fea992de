package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/pagerange"
	"github.com/feichai0017/pdf-rasterizer/internal/service/conversion"
	"github.com/feichai0017/pdf-rasterizer/internal/utils/validator"
	"github.com/feichai0017/pdf-rasterizer/pkg/converters"
)

type ProjectHandler struct {
	*base
	maxUploadBytes int64
}

// Rejection describes an upload that did not become a project.
type Rejection struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type CreateResponse struct {
	Projects []converters.ProjectView `json:"projects"`
	Rejected []Rejection              `json:"rejected"`
}

// ConvertRequest selects the pages of a conversion. An empty request converts every page.
type ConvertRequest struct {
	Pages    []int  `json:"pages"`
	Range    string `json:"range"`
	Selected bool   `json:"selected"`
}

type ConvertResponse struct {
	ProjectID string    `json:"projectId"`
	Pages     []int     `json:"pages"`
	StartedAt time.Time `json:"startedAt"`
}

// CreateProjects ingests one (`file`) or many (`files`) uploaded documents.
func (h *ProjectHandler) CreateProjects(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	headers := append(form.File["file"], form.File["files"]...)
	if len(headers) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	uploads := make([]conversion.Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := h.readUpload(header)
		if err != nil {
			h.fail(c, "Failed to read upload", err)
			return
		}
		uploads = append(uploads, upload)
	}

	resp := CreateResponse{
		Projects: []converters.ProjectView{},
		Rejected: []Rejection{},
	}
	var firstErr error
	for _, result := range h.projects.IngestBatch(c.Request.Context(), uploads) {
		if result.Err != nil {
			if firstErr == nil {
				firstErr = result.Err
			}
			resp.Rejected = append(resp.Rejected, Rejection{Filename: result.Filename, Error: result.Err.Error()})
			continue
		}
		resp.Projects = append(resp.Projects, h.converter.Project(result.Project))
	}

	if len(resp.Projects) == 0 {
		h.fail(c, "No document accepted", firstErr)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *ProjectHandler) readUpload(header *multipart.FileHeader) (conversion.Upload, error) {
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return conversion.Upload{}, fmt.Errorf("%s: %w", header.Filename, validator.ErrFileTooLarge)
	}
	file, err := header.Open()
	if err != nil {
		return conversion.Upload{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return conversion.Upload{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return conversion.Upload{Filename: header.Filename, Data: data}, nil
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, h.converter.Projects(h.projects.Projects()))
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, ok := h.project(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.converter.Project(p))
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.projects.Remove(c.Param("id")); err != nil {
		h.fail(c, "Failed to remove project", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartConversion begins a batch in the background and reports its target pages.
func (h *ProjectHandler) StartConversion(c *gin.Context) {
	var req ConvertRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	p, ok := h.project(c)
	if !ok {
		return
	}

	batch, err := h.projects.StartConversion(p.ID, targetPages(p, req))
	if err != nil {
		h.fail(c, "Failed to start conversion", err)
		return
	}
	c.JSON(http.StatusAccepted, ConvertResponse{
		ProjectID: batch.ProjectID,
		Pages:     batch.Pages,
		StartedAt: batch.StartedAt,
	})
}

// targetPages resolves the request into the page list handed to the orchestrator.
// nil means all pages; any explicit form yields a non-nil slice.
func targetPages(p *models.Project, req ConvertRequest) []int {
	switch {
	case req.Pages != nil:
		return req.Pages
	case req.Range != "":
		return append([]int{}, pagerange.Parse(req.Range, p.Metadata.TotalPages)...)
	case req.Selected:
		return append([]int{}, p.SelectedPages...)
	default:
		return nil
	}
}

func (h *ProjectHandler) CancelConversion(c *gin.Context) {
	if err := h.projects.CancelConversion(c.Param("id")); err != nil {
		h.fail(c, "Failed to cancel conversion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Conversion cancelled",
		"projectId": c.Param("id"),
	})
}

func (h *ProjectHandler) GetAnalysis(c *gin.Context) {
	p, ok := h.project(c)
	if !ok {
		return
	}
	if p.Analysis == nil {
		h.handleError(c, http.StatusNotFound, "Analysis not available", nil)
		return
	}
	c.JSON(http.StatusOK, p.Analysis)
}
