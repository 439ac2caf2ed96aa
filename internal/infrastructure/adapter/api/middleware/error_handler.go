package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/dto"
)

// ErrorHandler middleware recovers from panics and renders errors handlers attached with c.Error
func ErrorHandler(logger core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered in API request", map[string]any{
					"error":      err,
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"client_ip":  c.ClientIP(),
					"request_id": c.GetString(RequestIDKey),
					"user_agent": c.Request.UserAgent(),
				})

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Code:    errs.CodeInternalServer,
					Message: "Internal server error",
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := StatusCode(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", map[string]any{
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"request_id": c.GetString(RequestIDKey),
				"error":      err.Error(),
			})
			message = http.StatusText(status)
		}

		c.AbortWithStatusJSON(status, dto.ErrorResponse{
			Code:    errs.ErrorCode(err),
			Message: message,
		})
	}
}

// StatusCode maps a domain error to the HTTP status returned to clients.
// Usage errors are programming faults and surface as 500.
func StatusCode(err error) int {
	switch errs.ErrorCode(err) {
	case errs.CodeInvalidRequest:
		return http.StatusBadRequest
	case errs.CodeEntityNotFound:
		return http.StatusNotFound
	case errs.CodeDuplicateEntity, errs.CodeChildCommitPending:
		return http.StatusConflict
	case errs.CodeConstraintViolation:
		return http.StatusUnprocessableEntity
	case errs.CodeBatchTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
