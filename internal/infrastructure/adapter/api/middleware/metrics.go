package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

// HTTPObserver records one finished request
type HTTPObserver interface {
	ObserveHTTP(method, route string, statusCode int, duration time.Duration)
}

// Metrics reports every request to observer, labelled by its route template
func Metrics(observer HTTPObserver, timeProvider core.TimeProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := timeProvider.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), timeProvider.Since(start).Std())
	}
}
