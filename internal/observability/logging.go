package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/model"
)

type loggerKey struct{}

// Redacted replaces the value of a sensitive field in logged payloads.
const Redacted = "[REDACTED]"

// NewLogger builds the console's JSON logger on stdout. An unknown level
// falls back to info.
//
// Levels: error for panics and 5xx answers; warn for backend failures,
// an open circuit and rejected logins; info for request completion,
// mutations and sessions; debug for caches, guard decisions and redacted
// payloads.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	return zap.Config{
		Level:            level,
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the session, subject,
// role and correlation id of the request. Municipio and trace id are added
// only when set.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 6)
	fields = append(fields,
		zap.String("session_id", rctx.SessionID),
		zap.String("subject_id", rctx.SubjectID),
		zap.String("role", string(rctx.Role)),
		zap.String("correlation_id", rctx.CorrelationID),
	)
	for key, val := range map[string]string{"municipio_id": rctx.MunicipioID, "trace_id": rctx.TraceID} {
		if val != "" {
			fields = append(fields, zap.String(key, val))
		}
	}
	return logger.With(fields...)
}

// sensitiveFields are always redacted. Matching ignores case.
var sensitiveFields = []string{"senha", "password", "token", "backendToken", "authorization", "cpf", "secret"}

// RedactBody returns a copy of body in which sensitive fields, and any of
// extra, are replaced by Redacted. Nested objects and arrays of objects are
// redacted too; body itself is never modified.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		if isSensitive(k, extra) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v, extra)
	}
	return out
}

func redactValue(v any, extra []string) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactBody(val, extra)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = redactValue(item, extra)
		}
		return items
	}
	return v
}

func isSensitive(key string, extra []string) bool {
	for _, f := range sensitiveFields {
		if strings.EqualFold(f, key) {
			return true
		}
	}
	for _, f := range extra {
		if strings.EqualFold(f, key) {
			return true
		}
	}
	return false
}
