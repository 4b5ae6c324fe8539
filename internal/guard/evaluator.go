// Package guard decides whether an actor may create, view, edit or delete a
// competition result. Every evaluation emits exactly one audit event before
// its decision is returned, and infrastructure failures convert to an
// explicit default-deny: the guard never fails open.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soundoff.org/internal/audit"
	"soundoff.org/internal/ids"
	"soundoff.org/internal/obs"
	"soundoff.org/internal/ratelimit"
	"soundoff.org/internal/results"
)

const resourceType = "competition_result"

const (
	defaultEditWindow   = 24 * time.Hour
	defaultDeleteWindow = time.Hour
	defaultCreateLimit  = 10
	defaultCreateWindow = time.Hour
)

// Evaluator is the permission guard. All collaborators are injected so the
// evaluator can be exercised against fakes.
type Evaluator struct {
	store   results.Store
	limiter ratelimit.Counter
	sink    audit.Sink
	now     func() time.Time

	editWindow   time.Duration
	deleteWindow time.Duration
	createLimit  int
	createWindow time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEditWindow overrides the owner edit window.
func WithEditWindow(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.editWindow = d
		}
	}
}

// WithDeleteWindow overrides the owner delete window.
func WithDeleteWindow(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.deleteWindow = d
		}
	}
}

// WithCreateLimit overrides the creation rate limit and its window.
func WithCreateLimit(limit int, window time.Duration) Option {
	return func(e *Evaluator) {
		if limit > 0 {
			e.createLimit = limit
		}
		if window > 0 {
			e.createWindow = window
		}
	}
}

// NewEvaluator constructs the guard.
func NewEvaluator(store results.Store, limiter ratelimit.Counter, sink audit.Sink, opts ...Option) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("guard: result store is required")
	}
	if limiter == nil {
		return nil, errors.New("guard: rate-limit counter is required")
	}
	if sink == nil {
		return nil, errors.New("guard: audit sink is required")
	}
	e := &Evaluator{
		store:        store,
		limiter:      limiter,
		sink:         sink,
		now:          time.Now,
		editWindow:   defaultEditWindow,
		deleteWindow: defaultDeleteWindow,
		createLimit:  defaultCreateLimit,
		createWindow: defaultCreateWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CanCreate decides whether a result may be created for targetActorID in the
// given competition. The target may differ from the calling actor only for
// admin-initiated creation.
func (e *Evaluator) CanCreate(ctx context.Context, targetActorID, competitionID string, pc Context) Decision {
	pc.Operation = OpCreate
	caps := ResolveCapabilities(pc.Actor)

	if violated := validateIDs(map[string]string{
		"actor_id":       targetActorID,
		"competition_id": competitionID,
	}); len(violated) > 0 {
		d := deny(ReasonInputValidationFailed, "malformed identifiers")
		d.Details = map[string]any{"fields": violated}
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityInfo)
	}

	if caps.Admin {
		d := allow()
		d.Restrictions = []Restriction{RestrictionAdminCreated}
		return e.conclude(ctx, pc, "create_result_admin_bypass", competitionID, d, audit.SeverityInfo)
	}

	if targetActorID != pc.Actor.ID {
		d := deny(ReasonOwnershipViolation, "results may only be created for your own account")
		d.Details = map[string]any{"target_actor_id": targetActorID}
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityInfo)
	}

	if !caps.HasAny(PermCreateResults, PermEditResults) {
		d := deny(ReasonInsufficientPermissions, "missing permission to create results")
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityInfo)
	}

	comp, err := e.store.GetCompetition(ctx, competitionID)
	if errors.Is(err, results.ErrNotFound) {
		d := deny(ReasonCompetitionNotFound, "competition does not exist")
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityInfo)
	}
	if err != nil {
		return e.infraDeny(ctx, pc, OpCreate, competitionID, err)
	}
	if reason := competitionOpen(comp, e.now()); reason != "" {
		d := deny(reason, competitionDenialMessage(reason))
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityInfo)
	}

	exists, err := e.store.HasResult(ctx, competitionID, targetActorID)
	if err != nil {
		return e.infraDeny(ctx, pc, OpCreate, competitionID, err)
	}
	if exists {
		d := deny(ReasonDuplicateResultPrevented, "a result already exists for this competition")
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityInfo)
	}

	key := fmt.Sprintf("create_result:%s:%s", pc.Actor.ID, pc.SourceAddr)
	rl, err := e.limiter.CheckAndIncrement(ctx, key, e.createWindow, e.createLimit)
	if err != nil {
		return e.infraDeny(ctx, pc, OpCreate, competitionID, err)
	}
	if !rl.Allowed {
		d := deny(ReasonRateLimitExceeded, "too many creation attempts, slow down")
		d.RetryAfter = rl.RetryAfter
		d.Details = map[string]any{"retry_after_seconds": int64(rl.RetryAfter.Seconds())}
		return e.conclude(ctx, pc, "create_result_denied", competitionID, d, audit.SeverityMedium)
	}

	d := allow()
	d.RequiresVerification = !caps.Organizational
	return e.conclude(ctx, pc, "create_result", competitionID, d, audit.SeverityInfo)
}

// CanView decides whether the actor may read a result.
func (e *Evaluator) CanView(ctx context.Context, resultID string, pc Context) Decision {
	pc.Operation = OpView
	caps := ResolveCapabilities(pc.Actor)

	if violated := validateIDs(map[string]string{"result_id": resultID}); len(violated) > 0 {
		d := deny(ReasonInputValidationFailed, "malformed identifiers")
		d.Details = map[string]any{"fields": violated}
		return e.conclude(ctx, pc, "view_result_denied", resultID, d, audit.SeverityInfo)
	}

	r, concluded, done := e.fetchResult(ctx, pc, OpView, resultID)
	if done {
		return concluded
	}

	if caps.Admin {
		return e.conclude(ctx, pc, "view_result_admin_bypass", resultID, allow(), audit.SeverityInfo)
	}

	isOwner := r.OwnerID == pc.Actor.ID
	orgMatch := pc.Actor.OrganizationID != "" && pc.Actor.OrganizationID == r.OrganizationID
	orgView := orgMatch && caps.HasAny(PermViewOrgResults, PermManageOrganization)
	publicView := r.Verified && caps.Has(PermViewResults)

	if isOwner || orgView || publicView {
		return e.conclude(ctx, pc, "view_result", resultID, allow(), audit.SeverityInfo)
	}

	d := deny(ReasonInsufficientAccess, "no access path to this result")
	d.Details = map[string]any{
		"is_owner":           isOwner,
		"organization_match": orgMatch,
		"organization_view":  orgView,
		"verified_public":    publicView,
	}
	return e.conclude(ctx, pc, "view_result_denied", resultID, d, audit.SeverityInfo)
}

// CanEdit decides whether the actor may modify a result.
func (e *Evaluator) CanEdit(ctx context.Context, resultID string, pc Context) Decision {
	pc.Operation = OpEdit
	caps := ResolveCapabilities(pc.Actor)

	if violated := validateIDs(map[string]string{"result_id": resultID}); len(violated) > 0 {
		d := deny(ReasonInputValidationFailed, "malformed identifiers")
		d.Details = map[string]any{"fields": violated}
		return e.conclude(ctx, pc, "edit_result_denied", resultID, d, audit.SeverityInfo)
	}

	r, concluded, done := e.fetchResult(ctx, pc, OpEdit, resultID)
	if done {
		return concluded
	}

	if caps.Admin {
		d := allow()
		d.Restrictions = []Restriction{RestrictionAdminModified}
		d.RequiresVerification = r.Verified
		return e.conclude(ctx, pc, "edit_result_admin_bypass", resultID, d, audit.SeverityInfo)
	}

	if !caps.HasAny(PermEditOwnResults, PermEditResults, PermManageOrganization) {
		d := deny(ReasonInsufficientPermissions, "missing permission to edit results")
		return e.conclude(ctx, pc, "edit_result_denied", resultID, d, audit.SeverityInfo)
	}

	isOwner := r.OwnerID == pc.Actor.ID
	delegated := caps.HasAny(PermEditResults, PermManageOrganization)

	if !isOwner && !delegated {
		d := deny(ReasonOwnershipViolation, "only the owner may edit this result")
		return e.conclude(ctx, pc, "edit_result_denied", resultID, d, audit.SeverityInfo)
	}
	if !isOwner && (pc.Actor.OrganizationID == "" || pc.Actor.OrganizationID != r.OrganizationID) {
		d := deny(ReasonOrganizationBoundary, "result belongs to another organization")
		return e.conclude(ctx, pc, "edit_result_denied", resultID, d, audit.SeverityInfo)
	}

	if age := e.now().Sub(r.CreatedAt); age > e.editWindow && !delegated {
		d := deny(ReasonTimeLimitExceeded, "edit window has closed")
		d.Details = map[string]any{
			"age_seconds":    int64(age.Seconds()),
			"window_seconds": int64(e.editWindow.Seconds()),
		}
		return e.conclude(ctx, pc, "edit_result_denied", resultID, d, audit.SeverityInfo)
	}

	if r.Verified && !caps.Has(PermEditVerifiedResults) {
		d := deny(ReasonVerifiedResultProtection, "verified results require elevated permission to edit")
		return e.conclude(ctx, pc, "edit_result_denied", resultID, d, audit.SeverityInfo)
	}

	d := allow()
	d.RequiresVerification = r.Verified
	if r.Verified {
		d.Restrictions = append(d.Restrictions, RestrictionVerifiedEdit)
	}
	if !isOwner {
		d.Restrictions = append(d.Restrictions, RestrictionOrgEdit)
	}
	return e.conclude(ctx, pc, "edit_result", resultID, d, audit.SeverityInfo)
}

// CanDelete decides whether the actor may delete a result. Deliberately
// stricter than CanEdit: the owner window is one hour and verified results
// are deletable by admins only.
func (e *Evaluator) CanDelete(ctx context.Context, resultID string, pc Context) Decision {
	pc.Operation = OpDelete
	caps := ResolveCapabilities(pc.Actor)

	if violated := validateIDs(map[string]string{"result_id": resultID}); len(violated) > 0 {
		d := deny(ReasonInputValidationFailed, "malformed identifiers")
		d.Details = map[string]any{"fields": violated}
		return e.conclude(ctx, pc, "delete_result_denied", resultID, d, audit.SeverityInfo)
	}

	r, concluded, done := e.fetchResult(ctx, pc, OpDelete, resultID)
	if done {
		return concluded
	}

	if caps.Admin {
		d := allow()
		d.Restrictions = []Restriction{RestrictionAdminDeleted}
		d.RequiresVerification = true
		return e.conclude(ctx, pc, "delete_result_admin_bypass", resultID, d, audit.SeverityInfo)
	}

	if !caps.HasAny(PermDeleteOwnResults, PermDeleteResults, PermManageOrganization) {
		d := deny(ReasonInsufficientPermissions, "missing permission to delete results")
		return e.conclude(ctx, pc, "delete_result_denied", resultID, d, audit.SeverityInfo)
	}

	isOwner := r.OwnerID == pc.Actor.ID
	delegated := caps.HasAny(PermDeleteResults, PermManageOrganization)

	if !isOwner && !delegated {
		d := deny(ReasonOwnershipViolation, "only the owner may delete this result")
		return e.conclude(ctx, pc, "delete_result_denied", resultID, d, audit.SeverityInfo)
	}
	if !isOwner && (pc.Actor.OrganizationID == "" || pc.Actor.OrganizationID != r.OrganizationID) {
		d := deny(ReasonOrganizationBoundary, "result belongs to another organization")
		return e.conclude(ctx, pc, "delete_result_denied", resultID, d, audit.SeverityInfo)
	}

	if age := e.now().Sub(r.CreatedAt); age > e.deleteWindow && !delegated {
		d := deny(ReasonTimeLimitExceeded, "delete window has closed")
		d.Details = map[string]any{
			"age_seconds":    int64(age.Seconds()),
			"window_seconds": int64(e.deleteWindow.Seconds()),
		}
		return e.conclude(ctx, pc, "delete_result_denied", resultID, d, audit.SeverityInfo)
	}

	// No escape hatch here: verified results can never be deleted by a
	// non-administrative actor, whatever permissions they hold.
	if r.Verified {
		d := deny(ReasonVerifiedResultProtection, "verified results cannot be deleted")
		return e.conclude(ctx, pc, "delete_result_denied", resultID, d, audit.SeverityInfo)
	}

	d := allow()
	d.RequiresVerification = true
	if !isOwner {
		d.Restrictions = append(d.Restrictions, RestrictionOrgDelete)
	}
	return e.conclude(ctx, pc, "delete_result", resultID, d, audit.SeverityInfo)
}

// fetchResult loads the target unless the caller already supplied it. When it
// returns done=true the evaluation is over and the decision has been audited.
func (e *Evaluator) fetchResult(ctx context.Context, pc Context, op Operation, resultID string) (results.Result, Decision, bool) {
	if pc.Resource != nil && pc.Resource.ID == resultID {
		return *pc.Resource, Decision{}, false
	}
	r, err := e.store.GetResult(ctx, resultID)
	if errors.Is(err, results.ErrNotFound) {
		d := deny(ReasonResultNotFound, "result does not exist")
		return results.Result{}, e.conclude(ctx, pc, string(op)+"_result_denied", resultID, d, audit.SeverityInfo), true
	}
	if err != nil {
		return results.Result{}, e.infraDeny(ctx, pc, op, resultID, err), true
	}
	return r, Decision{}, false
}

// infraDeny converts a collaborator failure into the explicit default-deny
// variant, audited as a high-severity security event.
func (e *Evaluator) infraDeny(ctx context.Context, pc Context, op Operation, resourceID string, cause error) Decision {
	d := deny(ReasonGuardError, "authorization temporarily unavailable")
	d.Infra = true
	d.Details = map[string]any{"error": cause.Error()}
	return e.conclude(ctx, pc, string(op)+"_result_guard_error", resourceID, d, audit.SeverityHigh)
}

// conclude appends the single audit event for this evaluation and records
// metrics. If the sink itself fails, the decision degrades to default-deny
// and the loss is logged out of band.
func (e *Evaluator) conclude(ctx context.Context, pc Context, action, resourceID string, d Decision, severity audit.Severity) Decision {
	details := make(map[string]any, len(d.Details)+2)
	for k, v := range d.Details {
		details[k] = v
	}
	if d.Reason != "" {
		details["reason"] = string(d.Reason)
	}
	if len(d.Restrictions) > 0 {
		restrictions := make([]string, len(d.Restrictions))
		for i, restr := range d.Restrictions {
			restrictions[i] = string(restr)
		}
		details["restrictions"] = restrictions
	}

	evt := audit.Event{
		ID:           ids.New(),
		ActorID:      pc.Actor.ID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Allowed:      d.Allowed,
		Severity:     severity,
		Details:      details,
		RequestID:    audit.RequestIDFromContext(ctx),
		OccurredAt:   e.now().UTC(),
	}
	if err := e.sink.Append(ctx, evt); err != nil {
		obs.ObserveAuditFailure()
		obs.LogSecurity(action+"_audit_failed", string(audit.SeverityHigh), map[string]any{
			"actor_id":    pc.Actor.ID,
			"resource_id": resourceID,
			"error":       err.Error(),
		})
		d = deny(ReasonGuardError, "authorization temporarily unavailable")
		d.Infra = true
	}
	obs.ObserveGuardDecision(string(pc.Operation), d.Allowed, string(d.Reason))
	return d
}

func competitionDenialMessage(reason Reason) string {
	switch reason {
	case ReasonCompetitionInactive:
		return "competition is not active"
	case ReasonCompetitionDeadlinePassed:
		return "results submission deadline has passed"
	default:
		return "competition is not accepting results"
	}
}
