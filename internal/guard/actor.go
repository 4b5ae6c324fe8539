package guard

// Membership is the closed set of account classes on the platform.
type Membership string

const (
	MembershipBasic        Membership = "basic"
	MembershipCompetitor   Membership = "competitor"
	MembershipOrganization Membership = "organization"
	MembershipAdmin        Membership = "admin"
)

// Valid reports whether m is one of the known membership classes.
func (m Membership) Valid() bool {
	switch m {
	case MembershipBasic, MembershipCompetitor, MembershipOrganization, MembershipAdmin:
		return true
	}
	return false
}

// Permission is a named capability. Using a closed enumeration instead of
// free-form strings keeps typos from silently granting or withholding access.
type Permission string

const (
	PermCreateResults       Permission = "create_results"
	PermViewResults         Permission = "view_results"
	PermViewOrgResults      Permission = "view_organization_results"
	PermEditOwnResults      Permission = "edit_own_results"
	PermEditResults         Permission = "edit_results"
	PermEditVerifiedResults Permission = "edit_verified_results"
	PermDeleteOwnResults    Permission = "delete_own_results"
	PermDeleteResults       Permission = "delete_results"
	PermManageOrganization  Permission = "manage_organization"
)

// KnownPermissions lists every permission the guard understands.
var KnownPermissions = []Permission{
	PermCreateResults,
	PermViewResults,
	PermViewOrgResults,
	PermEditOwnResults,
	PermEditResults,
	PermEditVerifiedResults,
	PermDeleteOwnResults,
	PermDeleteResults,
	PermManageOrganization,
}

// ParsePermission maps a raw string onto the enumeration; unknown strings are
// dropped by the caller rather than carried along.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range KnownPermissions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Actor is the authenticated caller, constructed per-request from session
// state and immutable for the duration of one evaluation.
type Actor struct {
	ID             string
	Membership     Membership
	Permissions    []Permission
	OrganizationID string
}

// Capabilities is the resolved view of an actor, computed once per evaluation
// and consumed uniformly by all four operations.
type Capabilities struct {
	Admin          bool
	Organizational bool
	perms          map[Permission]struct{}
}

// ResolveCapabilities derives the capability set for an actor.
func ResolveCapabilities(a Actor) Capabilities {
	caps := Capabilities{
		Admin:          a.Membership == MembershipAdmin,
		Organizational: a.Membership == MembershipOrganization,
		perms:          make(map[Permission]struct{}, len(a.Permissions)),
	}
	for _, p := range a.Permissions {
		caps.perms[p] = struct{}{}
	}
	return caps
}

// Has reports whether the capability set includes p.
func (c Capabilities) Has(p Permission) bool {
	_, ok := c.perms[p]
	return ok
}

// HasAny reports whether the capability set includes at least one of ps.
func (c Capabilities) HasAny(ps ...Permission) bool {
	for _, p := range ps {
		if c.Has(p) {
			return true
		}
	}
	return false
}
