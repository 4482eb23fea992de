package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rasterizer/internal/service/conversion"
	"github.com/feichai0017/pdf-rasterizer/internal/service/selection"
)

type SelectionHandler struct {
	*base
	selection *selection.Manager
}

type RangeRequest struct {
	Range string `json:"range"`
}

type SelectionResponse struct {
	ProjectID     string `json:"projectId"`
	SelectedPages []int  `json:"selectedPages"`
}

func (h *SelectionHandler) Toggle(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid page number", err)
		return
	}
	h.respond(c, func(id string) ([]int, bool) { return h.selection.Toggle(id, page) })
}

func (h *SelectionHandler) SelectAll(c *gin.Context) {
	h.respond(c, h.selection.SelectAll)
}

func (h *SelectionHandler) SelectRange(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.respond(c, func(id string) ([]int, bool) { return h.selection.SelectRange(id, req.Range) })
}

func (h *SelectionHandler) Clear(c *gin.Context) {
	h.respond(c, h.selection.Clear)
}

func (h *SelectionHandler) respond(c *gin.Context, fn func(projectID string) ([]int, bool)) {
	id := c.Param("id")
	pages, ok := fn(id)
	if !ok {
		h.handleError(c, http.StatusNotFound, "Project not found", conversion.ErrProjectNotFound)
		return
	}
	if pages == nil {
		pages = []int{}
	}
	c.JSON(http.StatusOK, SelectionResponse{ProjectID: id, SelectedPages: pages})
}
