package logger

import (
	"time"

	"github.com/gin-gonic/gin"

	"client-optimizer/pkg/config"
)

// GinMiddleware attaches a correlation ID and a request-scoped logger to
// every request and logs its completion.
func GinMiddleware(logger *Logger, cfg *config.CorrelationIDConfig) gin.HandlerFunc {
	header := "X-Correlation-ID"
	if cfg != nil && cfg.Header != "" {
		header = cfg.Header
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		correlationID := c.GetHeader(header)
		if correlationID == "" {
			correlationID = GenerateCorrelationID(cfg)
		}
		if correlationID != "" {
			ctx = WithCorrelationID(ctx, correlationID)
			c.Header(header, correlationID)
		}

		requestLogger := logger.WithCorrelationIDFromContext(ctx)
		ctx = WithLogger(ctx, requestLogger)
		c.Request = c.Request.WithContext(ctx)

		requestLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Request.ContentLength)

		c.Next()

		requestLogger.LogResponse(c.Writer.Status(), c.Writer.Size(), time.Since(start))
	}
}
