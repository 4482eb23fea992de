package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rasterizer/internal/service/export"
)

type ExportHandler struct {
	*base
	export *export.Service
}

// Export streams the project archive. 204 when no page qualifies.
func (h *ExportHandler) Export(c *gin.Context) {
	p, ok := h.project(c)
	if !ok {
		return
	}

	file, err := h.export.Pack(p, c.Query("selected") == "true")
	if errors.Is(err, export.ErrNothingToExport) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, "Failed to build export", err)
		return
	}
	attach(c, file)
}

func (h *ExportHandler) Publish(c *gin.Context) {
	p, ok := h.project(c)
	if !ok {
		return
	}

	key, err := h.export.Publish(c.Request.Context(), p, c.Query("selected") == "true")
	if errors.Is(err, export.ErrNothingToExport) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, "Failed to publish export", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

func (h *ExportHandler) DownloadPage(c *gin.Context) {
	p, ok := h.project(c)
	if !ok {
		return
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid page number", err)
		return
	}

	file, err := h.export.Download(p, page)
	if err != nil {
		h.fail(c, "Failed to download page", err)
		return
	}
	attach(c, file)
}

func attach(c *gin.Context, file *export.File) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
