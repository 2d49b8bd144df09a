package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"client-optimizer/pkg/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.LoggingConfig
		expectError bool
	}{
		{
			name: "valid console config",
			config: &config.LoggingConfig{
				Level:  "info",
				Format: "console",
				Output: []string{"stdout"},
			},
		},
		{
			name: "valid JSON config",
			config: &config.LoggingConfig{
				Level:  "debug",
				Format: "json",
				Output: []string{"stdout"},
			},
		},
		{
			name: "multiple outputs",
			config: &config.LoggingConfig{
				Level:  "warn",
				Format: "json",
				Output: []string{"stdout", "stderr"},
			},
		},
		{
			name:        "nil config",
			expectError: true,
		},
		{
			name: "invalid log level",
			config: &config.LoggingConfig{
				Level:  "invalid",
				Format: "json",
				Output: []string{"stdout"},
			},
			expectError: true,
		},
		{
			name: "invalid format",
			config: &config.LoggingConfig{
				Level:  "info",
				Format: "invalid",
				Output: []string{"stdout"},
			},
			expectError: true,
		},
		{
			name: "file output without path",
			config: &config.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: []string{"file"},
			},
			expectError: true,
		},
		{
			name: "unknown output",
			config: &config.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: []string{"syslog"},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if logger == nil {
				t.Errorf("expected logger but got nil")
			}
		})
	}
}

func TestFieldSanitizer(t *testing.T) {
	sanitizer := NewFieldSanitizer([]string{"password", "token", "secret", "uri"})

	fields := []zap.Field{
		zap.String("subject_id", "user-1"),
		zap.String("redis_password", "hunter2"),
		zap.String("api_token", "abc123"),
		zap.String("mongo_uri", "mongodb://user:pw@db"),
		zap.String("trigger", "manual"),
	}

	sanitized := sanitizer.SanitizeFields(fields)

	for i, field := range sanitized {
		name := fields[i].Key
		shouldRedact := strings.Contains(name, "password") || strings.Contains(name, "token") || strings.Contains(name, "uri")
		if shouldRedact && field.String != redacted {
			t.Errorf("expected field %s to be redacted, got: %v", name, field.String)
		}
		if !shouldRedact && field.String == redacted {
			t.Errorf("expected field %s to not be redacted", name)
		}
	}

	if got := NewFieldSanitizer(nil).SanitizeFields(fields); len(got) != len(fields) || got[1].String != "hunter2" {
		t.Errorf("empty sanitizer must pass fields through")
	}
}

func TestCorrelationIDGeneration(t *testing.T) {
	id := GenerateCorrelationID(&config.CorrelationIDConfig{Enabled: true})
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Errorf("expected a uuid, got %q", id)
	}

	if id := GenerateCorrelationID(&config.CorrelationIDConfig{Enabled: false}); id != "" {
		t.Errorf("expected no id when disabled, got %q", id)
	}
	if id := GenerateCorrelationID(nil); id != "" {
		t.Errorf("expected no id for nil config, got %q", id)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "test-correlation-id")
	if got := GetCorrelationID(ctx); got != "test-correlation-id" {
		t.Errorf("expected correlation ID test-correlation-id, got %s", got)
	}

	if FromContext(context.Background()) == nil {
		t.Errorf("expected no-op logger for empty context")
	}

	logger := NewNop()
	ctx = WithLogger(ctx, logger)
	if FromContext(ctx) != logger {
		t.Errorf("expected the stored logger")
	}
}

func TestStartOperation(t *testing.T) {
	logger := NewNop()

	ctx, complete := StartOperation(context.Background(), logger, "optimization_sweep")
	id := GetCorrelationID(ctx)
	if id == "" {
		t.Fatalf("expected correlation ID to be set")
	}
	if FromContext(ctx) == logger {
		t.Errorf("expected an operation-scoped logger in context")
	}
	complete(errors.New("store unavailable"))

	ctx2, complete2 := StartOperation(ctx, logger, "nested")
	complete2(nil)
	if GetCorrelationID(ctx2) != id {
		t.Errorf("expected nested operation to reuse the correlation ID")
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.CorrelationIDConfig{Enabled: true, Header: "X-Correlation-ID", FieldName: "correlation_id"}

	router := gin.New()
	router.Use(GinMiddleware(NewNop(), cfg))
	router.GET("/test", func(c *gin.Context) {
		if GetCorrelationID(c.Request.Context()) == "" {
			t.Errorf("expected correlation ID in request context")
		}
		c.String(http.StatusOK, "OK")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "test-correlation-123" {
		t.Errorf("expected correlation ID test-correlation-123, got %s", got)
	}

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/test", nil))
	if w2.Header().Get("X-Correlation-ID") == "" {
		t.Errorf("expected generated correlation ID")
	}
}

func TestLoggerWithMethods(t *testing.T) {
	logger, err := NewLogger(&config.LoggingConfig{
		Level:          "debug",
		Format:         "json",
		Output:         []string{"stderr"},
		SanitizeFields: []string{"password"},
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.WithFields(zap.String("sweep", "optimization")).Info("sweep started")
	logger.WithError(errors.New("test error")).Error("error occurred")
	logger.WithOperation("apply_settings").WithSubject("user-1").Info("settings applied")
	logger.WithCorrelationID("abc").Warn("odd", "key")

	if logger.Zap() == nil {
		t.Errorf("expected underlying zap logger")
	}
}

func TestLogRotation(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "optimizer.log")

	logger, err := NewLogger(&config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     []string{"file"},
		FilePath:   logFile,
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     1,
		Compress:   true,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for i := 0; i < 10; i++ {
		logger.Info("test log message", "iteration", i)
	}
	_ = logger.Sync()

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("log file does not exist: %s", logFile)
	}
}

func BenchmarkFieldSanitization(b *testing.B) {
	sanitizer := NewFieldSanitizer([]string{"password", "token", "secret"})

	fields := []zap.Field{
		zap.String("subject_id", "user-1"),
		zap.String("password", "secret123"),
		zap.String("api_token", "abc123"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sanitizer.SanitizeFields(fields)
	}
}
