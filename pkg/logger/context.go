package logger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"client-optimizer/pkg/config"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	loggerKey
)

// GenerateCorrelationID returns a new ID, or "" when generation is disabled.
func GenerateCorrelationID(cfg *config.CorrelationIDConfig) string {
	if cfg == nil || !cfg.Enabled {
		return ""
	}
	return uuid.NewString()
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
			return l
		}
	}
	return NewNop()
}

// WithCorrelationIDFromContext tags the logger with the context's ID if any.
func (l *Logger) WithCorrelationIDFromContext(ctx context.Context) *Logger {
	if id := GetCorrelationID(ctx); id != "" {
		return l.WithCorrelationID(id)
	}
	return l
}

// StartOperation tags ctx with a correlation ID and an operation-scoped
// logger. The returned func logs completion with the elapsed time.
func StartOperation(ctx context.Context, logger *Logger, operation string) (context.Context, func(error)) {
	id := GetCorrelationID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = WithCorrelationID(ctx, id)
	}

	opLogger := logger.WithCorrelationID(id).WithOperation(operation)
	ctx = WithLogger(ctx, opLogger)

	start := time.Now()
	opLogger.Debug("Operation started")

	return ctx, func(err error) {
		elapsed := time.Since(start)
		if err != nil {
			opLogger.WithError(err).Error("Operation failed", "duration", elapsed)
			return
		}
		opLogger.Info("Operation completed", "duration", elapsed)
	}
}

func (l *Logger) LogRequest(method, path string, contentLength int64) {
	l.Debug("Request received",
		"method", method,
		"path", path,
		"content_length", contentLength)
}

func (l *Logger) LogResponse(statusCode int, size int, duration time.Duration) {
	fields := []zap.Field{
		zap.Int("status_code", statusCode),
		zap.Int("response_size", size),
		zap.Duration("duration", duration),
	}
	if statusCode >= 500 {
		l.WithFields(fields...).Error("Request completed")
		return
	}
	l.WithFields(fields...).Info("Request completed")
}
