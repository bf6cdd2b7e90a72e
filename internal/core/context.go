package core

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type requestIDKey struct{}
type userIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	if ctx == nil || userID == 0 {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(userIDKey{}).(int64); ok {
		return v
	}
	return 0
}

// SpanAttributes returns the request and user ids carried by ctx as span attributes.
func SpanAttributes(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("request.id", id))
	}
	if id := UserIDFromContext(ctx); id != 0 {
		attrs = append(attrs, attribute.Int64("telegram.user_id", id))
	}
	return attrs
}
