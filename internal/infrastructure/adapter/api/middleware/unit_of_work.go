package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/workscope/internal/domain/unitofwork"
)

// unitOfWorkKey is the gin context key holding the request's unit of work
const unitOfWorkKey = "unit_of_work"

// UnitOfWork opens one owning unit of work per request and binds it to the request context,
// so every unit the handlers create with the reuse mode joins it. Handlers call CommitRequest
// before writing a success response; work of a request that never commits is discarded.
func UnitOfWork[H persistence.ResourceHandle](provider *unitofwork.Provider[H], logger core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, uow := provider.CreateWithOptions(c.Request.Context(), unitofwork.Options{
			Mode: unitofwork.AlwaysCreateOwnContext,
			Name: c.Request.Method + " " + c.FullPath(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(unitOfWorkKey, persistence.UnitOfWork(uow))

		defer dispose(c, uow, logger)
		c.Next()
	}
}

func dispose(c *gin.Context, uow persistence.UnitOfWork, logger core.Logger) {
	err := uow.Dispose(c.Request.Context())
	if err == nil {
		return
	}

	// A failed request disposes its unit with nested commits still pending on purpose
	if errs.IsChildCommitPendingError(err) && (len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest) {
		logger.Debug("Discarded uncommitted request work", map[string]any{
			"unit_of_work": uow.ID(),
			"request_id":   c.GetString(RequestIDKey),
		})
		return
	}

	logger.Error("Failed to dispose request unit of work", map[string]any{
		"unit_of_work": uow.ID(),
		"request_id":   c.GetString(RequestIDKey),
		"error":        err.Error(),
	})
	_ = c.Error(err)
}

// CommitRequest commits the request's unit of work. Without the UnitOfWork middleware it does nothing.
//
// Possible errors:
// - ErrBackendUnavailable: If the backend write fails
// - ErrDuplicateEntity: If an insert hits an existing key
func CommitRequest(c *gin.Context) error {
	value, ok := c.Get(unitOfWorkKey)
	if !ok {
		return nil
	}
	uow, ok := value.(persistence.UnitOfWork)
	if !ok {
		return fmt.Errorf("%w: request unit of work has type %T", errs.ErrInternalServer, value)
	}
	if _, err := uow.Commit(c.Request.Context()); err != nil {
		return err
	}
	return nil
}
