package eventsourcing

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	correlationIDKey ctxKey = "correlationID"
	userIDKey        ctxKey = "userID"
	tenantIDKey      ctxKey = "tenantID"
	envelopeKey      ctxKey = "envelope"
)

// ContextWithCorrelationID returns a context carrying the given correlation
// id. Correlation identity is always threaded explicitly through contexts,
// never held in process-wide state.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation id or "" if not present.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// EnsureCorrelationID returns a context guaranteed to carry a correlation id,
// generating a fresh one when absent.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return ContextWithCorrelationID(ctx, id), id
}

// WithUserID returns a context carrying the acting user's id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the user id or "" if not present.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTenantID returns a context carrying the tenant id.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// TenantIDFromContext returns the tenant id or "" if not present.
func TenantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		return v
	}
	return ""
}

// WithEnvelope returns a context carrying the envelope being delivered.
// Buses set this before invoking subscriber handlers.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	ctx = context.WithValue(ctx, envelopeKey, env)
	if env.CorrelationID != "" {
		ctx = ContextWithCorrelationID(ctx, env.CorrelationID)
	}
	return ctx
}

// EnvelopeFromContext returns the envelope being delivered, or nil.
func EnvelopeFromContext(ctx context.Context) *Envelope {
	if v, ok := ctx.Value(envelopeKey).(*Envelope); ok {
		return v
	}
	return nil
}

// ContextMetadata collects the identity values carried by the context into an
// envelope metadata map. Useful as a Raise option:
//
//	aggregate.Raise(event, WithMetadata(ContextMetadata(ctx)))
func ContextMetadata(ctx context.Context) map[string]any {
	metadata := make(map[string]any)
	if v := UserIDFromContext(ctx); v != "" {
		metadata["userId"] = v
	}
	if v := TenantIDFromContext(ctx); v != "" {
		metadata["tenantId"] = v
	}
	return metadata
}
