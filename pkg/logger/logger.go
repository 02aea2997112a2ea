package logger

import (
	"context"
	"log/slog"
	"os"
)

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// WithCall attaches call-scoped attributes. Empty values are omitted.
func WithCall(l *slog.Logger, callID, organizationID string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	var attrs []any
	if callID != "" {
		attrs = append(attrs, "call_id", callID)
	}
	if organizationID != "" {
		attrs = append(attrs, "organization_id", organizationID)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
