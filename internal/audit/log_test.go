package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"soundoff.org/internal/obs"
)

func TestLogSinkAppend(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := WithRequestID(context.Background(), "req-123")
	evt := Event{
		ID:           "evt-1",
		ActorID:      "user-42",
		Action:       "edit_result",
		ResourceType: "competition_result",
		ResourceID:   "res-7",
		Allowed:      true,
		Severity:     SeverityInfo,
		Details:      map[string]any{"foo": "bar"},
		OccurredAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := NewLogSink().Append(ctx, evt); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}
	var entry struct {
		Type  string `json:"type"`
		Event Event  `json:"event"`
	}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry.Type != "audit" {
		t.Fatalf("unexpected type: %v", entry.Type)
	}
	if entry.Event.Action != "edit_result" || entry.Event.ActorID != "user-42" {
		t.Fatalf("unexpected event: %+v", entry.Event)
	}
	if entry.Event.RequestID != "req-123" {
		t.Fatalf("request id not picked up from context: %+v", entry.Event)
	}
}

func TestLogSinkRejectsEmptyAction(t *testing.T) {
	if err := NewLogSink().Append(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestMultiSinkFanOut(t *testing.T) {
	a := NewMemory()
	b := NewMemory()
	sink := MultiSink{a, b}

	if err := sink.Append(context.Background(), Event{Action: "view_result"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("both sinks should receive the event: %d, %d", a.Len(), b.Len())
	}
}

type errSink struct{}

func (errSink) Append(ctx context.Context, evt Event) error { return errors.New("boom") }

func TestMultiSinkReportsFirstError(t *testing.T) {
	mem := NewMemory()
	sink := MultiSink{errSink{}, mem}

	err := sink.Append(context.Background(), Event{Action: "view_result"})
	if err == nil {
		t.Fatal("expected error")
	}
	if mem.Len() != 1 {
		t.Fatal("later sinks must still receive the event")
	}
}
