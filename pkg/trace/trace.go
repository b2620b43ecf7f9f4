// Package trace carries a request id from the HTTP edge through the outbox
// and RabbitMQ headers into the consumers.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// HeaderName is the HTTP header and AMQP header carrying the trace id.
const HeaderName = "X-Trace-ID"

const maxLen = 64

// GenerateTraceID 生成一个新的 trace ID (32 位 hex)
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// FromHeader keeps a client-supplied id when it is short and made of
// [A-Za-z0-9._-]; anything else is replaced with a fresh id.
func FromHeader(v string) string {
	if valid(v) {
		return v
	}
	return GenerateTraceID()
}

func valid(v string) bool {
	if v == "" || len(v) > maxLen {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
