package audit

import (
	"context"
	"strings"
	"time"
)

// Severity classifies audit events for security review.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is an append-only record of one guard evaluation or security
// observation. Every guard call emits exactly one event before its decision
// is returned.
type Event struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Allowed      bool           `json:"allowed"`
	Severity     Severity       `json:"severity"`
	Details      map[string]any `json:"details,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Sink receives audit events. Append must complete (or durably enqueue)
// before the caller proceeds.
type Sink interface {
	Append(ctx context.Context, evt Event) error
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// MultiSink fans an event out to several sinks; the first error wins but all
// sinks see the event.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, evt Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
