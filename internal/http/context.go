package http

import (
	"context"
	"log/slog"

	"github.com/example/timetable-scheduler/internal/logging"
)

type contextKey string

const scheduleIDContextKey contextKey = "schedule_id"

// ContextWithScheduleID injects the raw schedule identifier resolved from the
// request path.
func ContextWithScheduleID(ctx context.Context, scheduleID string) context.Context {
	return context.WithValue(ctx, scheduleIDContextKey, scheduleID)
}

// ScheduleIDFromContext extracts a schedule identifier previously associated
// with the context.
func ScheduleIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scheduleIDContextKey).(string)
	return id, ok
}

// ContextWithLogger returns a derived context carrying the request logger so
// downstream services log with the request attributes attached.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request logger attached by the middleware.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
