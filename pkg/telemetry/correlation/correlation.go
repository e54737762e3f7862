// Package correlation generates and propagates correlation identifiers.
package correlation

import (
	"context"
	"crypto/rand"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// correlationKey is an unexported type for context keys within this package.
type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating
// one when missing. The trace id is preferred so logs line up with spans.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		id := sc.TraceID().String()
		return ContextWithCorrelationID(ctx, id), id
	}
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()
	return ContextWithCorrelationID(ctx, id), id
}
