package diag

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/blade-inspector/internal/auth"
	"github.com/your-org/blade-inspector/internal/observability"
)

// LoggingMiddleware logs each request with slog, mirroring the teacher's
// api.LoggingMiddleware.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		slog.Info("diag request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", duration.String(),
			"ip", c.ClientIP(),
		)

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}

// APIKeyMiddleware guards the /v1 group; empty key disables the check,
// useful for local simulate/replay runs where nothing else reaches the
// diagnostics port.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return auth.APIKeyMiddleware(apiKey)
}
