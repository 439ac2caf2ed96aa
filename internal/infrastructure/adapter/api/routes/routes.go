package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/middleware"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker func(ctx context.Context) error

// SetupRoutes configures all the routes for the API.
// requestScope runs before every note handler; metrics may be nil.
func SetupRoutes(
	router *gin.Engine,
	noteHandler *handler.NoteHandler,
	requestScope gin.HandlerFunc,
	metrics http.Handler,
	health HealthChecker,
) {
	router.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	notes := router.Group("/api/v1/tenants/:tenant/notes")
	if requestScope != nil {
		notes.Use(requestScope)
	}
	{
		notes.POST("", noteHandler.CreateNote)
		notes.POST("/import", noteHandler.ImportNotes)
		notes.GET("/:id", noteHandler.GetNote)
		notes.PATCH("/:id", noteHandler.RenameNote)
		notes.POST("/:id/archive", noteHandler.ArchiveNote)
		notes.DELETE("/:id", noteHandler.DeleteNote)
	}
}

// SetupMiddlewares configures global middlewares for the API; observer may be nil
func SetupMiddlewares(router *gin.Engine, logger core.Logger, timeProvider core.TimeProvider, observer middleware.HTTPObserver) {
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger, timeProvider))
	if observer != nil {
		router.Use(middleware.Metrics(observer, timeProvider))
	}
	router.Use(middleware.CORS())
	router.Use(middleware.ErrorHandler(logger))
}
