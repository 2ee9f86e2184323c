// Package logger builds the zap loggers used across the service and the structured fields
// shared by every tier failure and inbound request.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// NewLogger creates a new zap logger with the specified level and format
func NewLogger(level, format string) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var config zap.Config
	switch format {
	case FormatJSON:
		config = zap.NewProductionConfig()
	case FormatConsole:
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// NewDevelopmentLogger creates a development logger with console output
func NewDevelopmentLogger() (*zap.Logger, error) {
	return NewLogger("debug", FormatConsole)
}

// NewProductionLogger creates a production logger with JSON output
func NewProductionLogger() (*zap.Logger, error) {
	return NewLogger("info", FormatJSON)
}

// TierFields are the fields logged with every cache, store or remote failure.
// op is one of cache.get, cache.put, store.get, store.upsert or remote.fetch
func TierFields(kind string, key any, op string, err error) []zap.Field {
	return []zap.Field{
		zap.String("kind", kind),
		zap.String("key", fmt.Sprint(key)),
		zap.String("op", op),
		zap.Error(err),
	}
}

// Transports tagging inbound requests
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// RequestFields are the fields logged with every inbound request
func RequestFields(requestID, transport, method string) []zap.Field {
	return []zap.Field{
		zap.String("request_id", requestID),
		zap.String("transport", transport),
		zap.String("method", method),
	}
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying log
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the request logger stored in ctx, or fallback when there is none
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if log, ok := ctx.Value(contextKey{}).(*zap.Logger); ok && log != nil {
		return log
	}
	return fallback
}
