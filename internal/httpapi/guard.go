package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"soundoff.org/internal/auth"
	"soundoff.org/internal/guard"
)

type decisionContextKey struct{}

// ContextWithDecision attaches the guard's decision for the downstream
// handler (restrictions, requires_verification) to consume.
func ContextWithDecision(ctx context.Context, d guard.Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey{}, d)
}

// DecisionFromContext extracts the guard decision stored by withGuard.
func DecisionFromContext(ctx context.Context) (guard.Decision, bool) {
	if ctx == nil {
		return guard.Decision{}, false
	}
	d, ok := ctx.Value(decisionContextKey{}).(guard.Decision)
	return d, ok
}

// withGuard gates a single-result route: it resolves the actor, evaluates the
// operation against the {id} path segment and either rejects the request or
// passes control on with the decision in context.
func (a *API) withGuard(op guard.Operation, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}

		pc := guard.Context{
			Actor:      actor,
			SourceAddr: clientIP(r),
			ClientID:   r.Header.Get("User-Agent"),
		}
		resultID := r.PathValue("id")

		var d guard.Decision
		switch op {
		case guard.OpView:
			d = a.guard.CanView(r.Context(), resultID, pc)
		case guard.OpEdit:
			d = a.guard.CanEdit(r.Context(), resultID, pc)
		case guard.OpDelete:
			d = a.guard.CanDelete(r.Context(), resultID, pc)
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		if !d.Allowed {
			writeGuardDenial(w, r, d)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), d)))
	})
}

// writeGuardDenial maps a denied decision onto an HTTP response. Callers
// trust the decision completely; no reinterpretation happens here beyond
// status-code selection.
func writeGuardDenial(w http.ResponseWriter, r *http.Request, d guard.Decision) {
	code := http.StatusForbidden
	switch {
	case d.Reason == guard.ReasonResultNotFound, d.Reason == guard.ReasonCompetitionNotFound:
		code = http.StatusNotFound
	case d.Reason == guard.ReasonInputValidationFailed:
		code = http.StatusBadRequest
	case d.Reason == guard.ReasonRateLimitExceeded:
		code = http.StatusTooManyRequests
		secs := int64(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	case d.Infra:
		code = http.StatusServiceUnavailable
	}

	payload := map[string]any{
		"error": string(d.Reason),
	}
	if d.Message != "" {
		payload["message"] = d.Message
	}
	if d.RequiresVerification {
		payload["requires_verification"] = true
	}
	if d.RetryAfter > 0 {
		payload["retry_after_seconds"] = int64(d.RetryAfter.Seconds())
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
