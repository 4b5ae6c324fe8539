package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"soundoff.org/internal/auth"
	"soundoff.org/internal/guard"
)

// StreamEvents handles Server-Sent Events for the live security feed.
// Admin-only: audit details are not for general consumption.
func (a *API) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	if actor.Membership != guard.MembershipAdmin {
		writeError(w, r, http.StatusForbidden, "admin membership required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.events.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
