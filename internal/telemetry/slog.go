package telemetry

import (
	"context"
	"log/slog"
)

// SlogLogger adapts the standard library's structured logger to Logger. The
// teacher delegates all logging to Clue; this module drops Clue along with
// the rest of the Goa transport stack (see DESIGN.md) and uses log/slog
// instead, since it is the stdlib's own structured logger rather than a
// third-party one and needs no separate justification entry.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger, or slog.Default() if logger is nil.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{logger: logger}
}

func (l SlogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.logger.DebugContext(ctx, msg, keyvals...)
}

func (l SlogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.logger.InfoContext(ctx, msg, keyvals...)
}

func (l SlogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.logger.WarnContext(ctx, msg, keyvals...)
}

func (l SlogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.logger.ErrorContext(ctx, msg, keyvals...)
}
