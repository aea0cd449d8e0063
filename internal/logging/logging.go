// Package logging builds the shared slog setup and carries request-scoped
// loggers through contexts.
package logging

import (
	"context"
	"log/slog"
	"os"
)

type loggerKey struct{}

// New builds the process-wide structured logger for a service binary. All
// binaries log JSON to stderr and tag every record with the service name so
// interleaved logs from the three processes stay attributable.
func New(service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("service", service)
}

// ContextWithLogger attaches logger to the context. A nil logger leaves the
// context untouched.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached by ContextWithLogger, or nil when
// the context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger
}
