package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feichai0017/pdf-rasterizer/internal/service/conversion"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

type TaskHandler struct {
	*base
	queue queue.Queue
}

// ConvertAll queues a sweep over every convertible project.
func (h *TaskHandler) ConvertAll(c *gin.Context) {
	if sw, busy := h.projects.CurrentSweep(); busy {
		c.Header("X-Sweep-ID", sw.ID)
		h.handleError(c, http.StatusConflict, "Convert all already running", conversion.ErrSweepInProgress)
		return
	}

	task := &queue.Task{
		ID:        uuid.New().String(),
		Type:      queue.TaskTypeConvertAll,
		Priority:  2,
		CreatedAt: time.Now(),
	}
	if err := h.queue.Enqueue(c.Request.Context(), task); err != nil {
		h.fail(c, "Failed to queue convert all", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": task.ID})
}

func (h *TaskHandler) GetSweep(c *gin.Context) {
	sw, ok := h.projects.CurrentSweep()
	if !ok {
		h.handleError(c, http.StatusNotFound, "No convert all running", conversion.ErrNoSweep)
		return
	}
	c.JSON(http.StatusOK, sw)
}

func (h *TaskHandler) CancelSweep(c *gin.Context) {
	if err := h.projects.CancelSweep(); err != nil {
		h.fail(c, "Failed to cancel convert all", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Convert all cancelled"})
}

// GetStatus 获取任务状态
func (h *TaskHandler) GetStatus(c *gin.Context) {
	status, err := h.queue.GetTaskStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.fail(c, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// CancelTask 取消处理任务
func (h *TaskHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.queue.CancelTask(c.Request.Context(), taskID); err != nil {
		h.fail(c, "Failed to cancel task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}
