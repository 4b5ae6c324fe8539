package httpapi

import (
	"net/http"
	"strings"

	"soundoff.org/internal/auth"
	"soundoff.org/internal/guard"
	"soundoff.org/internal/results"
)

type createResultRequest struct {
	CompetitionID string  `json:"competition_id"`
	OwnerID       string  `json:"owner_id,omitempty"`
	Category      string  `json:"category"`
	Placement     int     `json:"placement,omitempty"`
	Score         float64 `json:"score"`
	Notes         string  `json:"notes,omitempty"`
}

type updateResultRequest struct {
	Category  string  `json:"category"`
	Placement int     `json:"placement,omitempty"`
	Score     float64 `json:"score"`
	Notes     string  `json:"notes,omitempty"`
	Revision  int64   `json:"revision"`
}

type resultResponse struct {
	Result               results.Result      `json:"result"`
	RequiresVerification bool                `json:"requires_verification,omitempty"`
	Restrictions         []guard.Restriction `json:"restrictions,omitempty"`
}

func (a *API) createResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createResultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Admins may create on someone else's behalf; everyone else targets
	// their own account and the guard enforces it.
	target := strings.TrimSpace(req.OwnerID)
	if target == "" {
		target = actor.ID
	}

	// Organization affiliation belongs to the record's owner. On-behalf
	// records stay unaffiliated rather than inheriting the caller's org.
	orgID := actor.OrganizationID
	if target != actor.ID {
		orgID = ""
	}

	pc := guard.Context{
		Actor:      actor,
		SourceAddr: clientIP(r),
		ClientID:   r.Header.Get("User-Agent"),
	}
	d := a.guard.CanCreate(r.Context(), target, req.CompetitionID, pc)
	if !d.Allowed {
		writeGuardDenial(w, r, d)
		return
	}

	created, err := a.store.CreateResult(r.Context(), results.Result{
		CompetitionID:  req.CompetitionID,
		OwnerID:        target,
		OrganizationID: orgID,
		Category:       req.Category,
		Placement:      req.Placement,
		Score:          req.Score,
		Notes:          req.Notes,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resultResponse{
		Result:               created,
		RequiresVerification: d.RequiresVerification,
		Restrictions:         d.Restrictions,
	})
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := a.store.GetResult(r.Context(), r.PathValue("id"))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	d, _ := DecisionFromContext(r.Context())
	writeJSON(w, http.StatusOK, resultResponse{
		Result:       res,
		Restrictions: d.Restrictions,
	})
}

func (a *API) updateResult(w http.ResponseWriter, r *http.Request) {
	var req updateResultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	current, err := a.store.GetResult(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	// Clients may pin the revision they read; otherwise the mutation is
	// conditional on the revision fetched just now.
	expected := req.Revision
	if expected == 0 {
		expected = current.Revision
	}

	current.Category = req.Category
	current.Placement = req.Placement
	current.Score = req.Score
	current.Notes = req.Notes

	updated, err := a.store.UpdateResult(r.Context(), current, expected)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	d, _ := DecisionFromContext(r.Context())
	writeJSON(w, http.StatusOK, resultResponse{
		Result:               updated,
		RequiresVerification: d.RequiresVerification,
		Restrictions:         d.Restrictions,
	})
}

func (a *API) deleteResult(w http.ResponseWriter, r *http.Request) {
	d, _ := DecisionFromContext(r.Context())

	// Granted delete decisions always require explicit confirmation.
	if d.RequiresVerification && r.Header.Get("X-Confirm-Delete") != "true" {
		payload := map[string]any{
			"error":                 "confirmation_required",
			"message":               "re-send the request with X-Confirm-Delete: true",
			"requires_verification": true,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusPreconditionRequired, payload)
		return
	}

	id := r.PathValue("id")
	current, err := a.store.GetResult(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if err := a.store.DeleteResult(r.Context(), id, current.Revision); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
