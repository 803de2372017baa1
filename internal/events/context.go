package events

import (
	"context"
	"os"
)

type contextKey int

const (
	loggerKey contextKey = iota
	runIDKey
	taskIndexKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRunID tags the context and its logger with a batch run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("run_id", id)
	ctx = context.WithValue(ctx, runIDKey, id)
	return WithLogger(ctx, logger)
}

// WithTask tags the context and its logger with a task index and source path.
func WithTask(ctx context.Context, index int, source string) context.Context {
	logger := FromContext(ctx).WithFields(map[string]interface{}{
		"task":   index,
		"source": source,
	})
	ctx = context.WithValue(ctx, taskIndexKey, index)
	return WithLogger(ctx, logger)
}

// GetRunID retrieves run ID from context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// GetTaskIndex retrieves the task index, or -1 outside a task.
func GetTaskIndex(ctx context.Context) int {
	if idx, ok := ctx.Value(taskIndexKey).(int); ok {
		return idx
	}
	return -1
}

var defaultLogger = NewTestLogger(InfoLevel, "text", os.Stderr)

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
