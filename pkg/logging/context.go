package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey int

const (
	// loggerKey is the context key for the logger.
	loggerKey contextKey = iota
	// operationIDKey is the context key for the sync operation ID.
	operationIDKey
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}

	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
		return logger
	}

	return Default()
}

// Ctx returns a logger from the context or the default logger.
// This is a shorter alias for FromContext.
func Ctx(ctx context.Context) *zerolog.Logger {
	return FromContext(ctx)
}

// WithOperationID tags the context logger with a sync operation ID so
// every log line inside one reconciliation run can be correlated.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	ctx = context.WithValue(ctx, operationIDKey, operationID)

	logger := FromContext(ctx)
	newLogger := logger.With().Str("operation_id", operationID).Logger()
	return WithLogger(ctx, &newLogger)
}

// OperationID extracts the sync operation ID from context.
func OperationID(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithFabric tags the context logger with the fabric being reconciled.
func WithFabric(ctx context.Context, fabricID string) context.Context {
	logger := FromContext(ctx)
	newLogger := logger.With().Str("fabric", fabricID).Logger()
	return WithLogger(ctx, &newLogger)
}
