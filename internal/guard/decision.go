package guard

import (
	"time"

	"soundoff.org/internal/results"
)

// Operation names one of the four guarded mutations.
type Operation string

const (
	OpCreate Operation = "create"
	OpView   Operation = "view"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// Reason is a stable machine-readable code attached to every denial.
type Reason string

const (
	ReasonInputValidationFailed     Reason = "input_validation_failed"
	ReasonInsufficientPermissions   Reason = "insufficient_permissions"
	ReasonCompetitionNotFound       Reason = "competition_not_found"
	ReasonCompetitionInactive       Reason = "competition_inactive"
	ReasonCompetitionDeadlinePassed Reason = "competition_deadline_passed"
	ReasonDuplicateResultPrevented  Reason = "duplicate_result_prevented"
	ReasonRateLimitExceeded         Reason = "rate_limit_exceeded"
	ReasonResultNotFound            Reason = "result_not_found"
	ReasonInsufficientAccess        Reason = "insufficient_access"
	ReasonOwnershipViolation        Reason = "ownership_violation"
	ReasonOrganizationBoundary      Reason = "organization_boundary_violation"
	ReasonTimeLimitExceeded         Reason = "time_limit_exceeded"
	ReasonVerifiedResultProtection  Reason = "verified_result_protection"
	ReasonGuardError                Reason = "guard_error"
)

// Restriction qualifies an allowed decision for downstream audit enrichment.
type Restriction string

const (
	RestrictionAdminCreated  Restriction = "admin_created"
	RestrictionAdminModified Restriction = "admin_modified"
	RestrictionAdminDeleted  Restriction = "admin_deleted"
	RestrictionVerifiedEdit  Restriction = "verified_edit"
	RestrictionOrgEdit       Restriction = "organizational_edit"
	RestrictionOrgDelete     Restriction = "organizational_delete"
)

// Decision is the guard's answer. Denials are normal control flow, never an
// error: every path through the evaluator terminates in a Decision.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Reason is set on every denial; empty on a plain allow.
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	// RequiresVerification tells the caller to obtain an explicit
	// confirmation step even though the permission check passed.
	RequiresVerification bool `json:"requires_verification,omitempty"`

	Restrictions []Restriction `json:"restrictions,omitempty"`

	// RetryAfter is set on rate-limit denials.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Infra marks the explicit default-deny taken when a collaborator
	// (store, rate counter, audit sink) failed mid-evaluation.
	Infra bool `json:"infra,omitempty"`

	// Details carries per-rule diagnostics, mirrored into the audit event.
	Details map[string]any `json:"details,omitempty"`
}

// Context bundles the actor and request metadata for one evaluation. It is
// constructed fresh per call and never persisted.
type Context struct {
	Actor      Actor
	SourceAddr string
	ClientID   string
	Operation  Operation

	// Resource, when non-nil, is the already-fetched target; the evaluator
	// skips its own fetch and uses it as-is.
	Resource *results.Result
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason, msg string) Decision {
	return Decision{Allowed: false, Reason: reason, Message: msg}
}
