package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	// Business context keys propagated through the pipeline for observability.
	RequestIDKey ContextKey = "pipeline.request.id"
	UserIDKey    ContextKey = "pipeline.user.id"
)

// ContextHandler decorates a slog.Handler with request-scoped ids carried in
// the context. Records logged through the *Context slog methods pick up the
// request id set by the HTTP middleware and the user id set by the handlers.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner with pipeline context extraction.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		r.AddAttrs(slog.String("request_id", requestID))
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		r.AddAttrs(slog.String("user_id", userID))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

// WithRequestID adds the request id to the context for observability.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds the user id to the context for observability.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
