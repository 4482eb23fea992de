package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
	"github.com/feichai0017/pdf-rasterizer/internal/service/conversion"
	"github.com/feichai0017/pdf-rasterizer/internal/service/export"
	"github.com/feichai0017/pdf-rasterizer/internal/service/selection"
	"github.com/feichai0017/pdf-rasterizer/internal/utils/validator"
	"github.com/feichai0017/pdf-rasterizer/pkg/converters"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
	"github.com/feichai0017/pdf-rasterizer/pkg/queue"
)

type Handlers struct {
	Project   *ProjectHandler
	Selection *SelectionHandler
	Export    *ExportHandler
	Task      *TaskHandler
}

type Options struct {
	MaxUploadBytes int64
}

func NewHandlers(
	conversionService conversion.ConversionProcessor,
	selectionManager *selection.Manager,
	exportService *export.Service,
	taskQueue queue.Queue,
	opts Options,
	log logger.Logger,
) *Handlers {
	log = log.Named("api")
	base := &base{
		projects:  conversionService,
		converter: converters.NewJSONConverter(),
		logger:    log,
	}
	return &Handlers{
		Project:   &ProjectHandler{base: base, maxUploadBytes: opts.MaxUploadBytes},
		Selection: &SelectionHandler{base: base, selection: selectionManager},
		Export:    &ExportHandler{base: base, export: exportService},
		Task:      &TaskHandler{base: base, queue: taskQueue},
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type base struct {
	projects  conversion.ConversionProcessor
	converter *converters.JSONConverter
	logger    logger.Logger
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, conversion.ErrProjectNotFound),
		errors.Is(err, conversion.ErrNoBatch),
		errors.Is(err, conversion.ErrNoSweep),
		errors.Is(err, export.ErrPageNotConverted),
		errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversion.ErrConversionInProgress),
		errors.Is(err, conversion.ErrSweepInProgress),
		errors.Is(err, conversion.ErrProjectNotReady):
		return http.StatusConflict
	case errors.Is(err, conversion.ErrNoTargetPages):
		return http.StatusUnprocessableEntity
	case errors.Is(err, validator.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, validator.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, validator.ErrEmptyFile),
		errors.Is(err, validator.ErrMalformedPDF),
		errors.Is(err, validator.ErrTooManyPages):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrPublishingDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, conversion.ErrServiceClosed), errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *base) fail(c *gin.Context, message string, err error) {
	h.handleError(c, statusFor(err), message, err)
}

// handleError 统一错误处理
func (h *base) handleError(c *gin.Context, status int, message string, err error) {
	log := logger.FromContext(c.Request.Context(), h.logger)
	fields := []logger.Field{logger.String("path", c.Request.URL.Path), logger.Int("status", status)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Info(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, response)
}

// project loads the :id project or writes a 404.
func (h *base) project(c *gin.Context) (*models.Project, bool) {
	p, ok := h.projects.Project(c.Param("id"))
	if !ok {
		h.handleError(c, http.StatusNotFound, "Project not found", conversion.ErrProjectNotFound)
		return nil, false
	}
	return p, true
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
