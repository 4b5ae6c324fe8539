package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"soundoff.org/internal/obs"
)

// LogSink writes audit events as JSON lines through the shared logger.
// It is the default sink when no database is configured.
type LogSink struct{}

// NewLogSink constructs a LogSink.
func NewLogSink() LogSink { return LogSink{} }

func (LogSink) Append(ctx context.Context, evt Event) error {
	if strings.TrimSpace(evt.Action) == "" {
		return errors.New("audit: action is required")
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if evt.RequestID == "" {
		evt.RequestID = RequestIDFromContext(ctx)
	}
	entry := map[string]any{
		"ts":    evt.OccurredAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": evt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
