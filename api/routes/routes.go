package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-rasterizer/api/handlers"
	"github.com/feichai0017/pdf-rasterizer/api/middleware"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

type Options struct {
	AllowOrigins []string
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options, log logger.Logger) {
	r.Use(middleware.RequestID(), middleware.Logging(log), middleware.CORS(opts.AllowOrigins))

	r.GET("/health", handlers.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/health", handlers.Health)

	projects := v1.Group("/projects")
	{
		projects.POST("", h.Project.CreateProjects)
		projects.GET("", h.Project.ListProjects)
		projects.POST("/convert-all", h.Task.ConvertAll)
		projects.GET("/:id", h.Project.GetProject)
		projects.DELETE("/:id", h.Project.DeleteProject)

		projects.POST("/:id/convert", h.Project.StartConversion)
		projects.DELETE("/:id/convert", h.Project.CancelConversion)
		projects.GET("/:id/analysis", h.Project.GetAnalysis)

		projects.POST("/:id/selection/toggle/:page", h.Selection.Toggle)
		projects.POST("/:id/selection/all", h.Selection.SelectAll)
		projects.POST("/:id/selection/range", h.Selection.SelectRange)
		projects.DELETE("/:id/selection", h.Selection.Clear)

		projects.GET("/:id/export", h.Export.Export)
		projects.POST("/:id/export/publish", h.Export.Publish)
		projects.GET("/:id/pages/:page/download", h.Export.DownloadPage)
	}

	v1.GET("/sweep", h.Task.GetSweep)
	v1.DELETE("/sweep", h.Task.CancelSweep)

	tasks := v1.Group("/tasks")
	{
		tasks.GET("/:taskId", h.Task.GetStatus)
		tasks.DELETE("/:taskId", h.Task.CancelTask)
	}
}
