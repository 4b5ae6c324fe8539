package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"soundoff.org/internal/audit"
	"soundoff.org/internal/ids"
)

// AuditSink appends guard evaluations into the audit_events table.
type AuditSink struct {
	db *sql.DB
}

var _ audit.Sink = (*AuditSink)(nil)

// NewAuditSink constructs the sink over an existing pool.
func NewAuditSink(db *sql.DB) *AuditSink { return &AuditSink{db: db} }

func (s *AuditSink) Append(ctx context.Context, evt audit.Event) error {
	if evt.ID == "" {
		evt.ID = ids.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if evt.RequestID == "" {
		evt.RequestID = audit.RequestIDFromContext(ctx)
	}
	details, err := json.Marshal(evt.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_events(id, actor_id, action, resource_type, resource_id,
		                         allowed, severity, details, request_id, occurred_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7,$8,nullif($9,''),$10)
	`, evt.ID, evt.ActorID, evt.Action, evt.ResourceType, evt.ResourceID,
		evt.Allowed, string(evt.Severity), details, evt.RequestID, evt.OccurredAt)
	return err
}
