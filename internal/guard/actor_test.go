package guard

import (
	"testing"
	"time"

	"soundoff.org/internal/results"
)

func TestResolveCapabilities(t *testing.T) {
	admin := ResolveCapabilities(Actor{ID: adminID, Membership: MembershipAdmin})
	if !admin.Admin || admin.Organizational {
		t.Fatalf("unexpected admin capabilities: %+v", admin)
	}

	org := ResolveCapabilities(Actor{
		ID:          orgOneID,
		Membership:  MembershipOrganization,
		Permissions: []Permission{PermEditResults, PermEditResults},
	})
	if org.Admin || !org.Organizational {
		t.Fatalf("unexpected organization capabilities: %+v", org)
	}
	if !org.Has(PermEditResults) || org.Has(PermDeleteResults) {
		t.Fatal("permission resolution incorrect")
	}
	if !org.HasAny(PermDeleteResults, PermEditResults) {
		t.Fatal("HasAny should match any listed permission")
	}
}

func TestParsePermission(t *testing.T) {
	if p, ok := ParsePermission("edit_results"); !ok || p != PermEditResults {
		t.Fatalf("expected edit_results, got %q ok=%v", p, ok)
	}
	if _, ok := ParsePermission("edit_resutls"); ok {
		t.Fatal("typo must not resolve to a permission")
	}
}

func TestMembershipValid(t *testing.T) {
	for _, m := range []Membership{MembershipBasic, MembershipCompetitor, MembershipOrganization, MembershipAdmin} {
		if !m.Valid() {
			t.Fatalf("%s should be valid", m)
		}
	}
	if Membership("superuser").Valid() {
		t.Fatal("unknown membership must be invalid")
	}
}

func TestWellFormedID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{ownerID, true},                      // UUID
		{"01BX5ZZKBKACTAV9WEVGEMMVRZ", true}, // ULID
		{"", false},
		{"not-an-id", false},
		{" " + ownerID + " ", true}, // surrounding whitespace is trimmed
	}
	for _, tc := range cases {
		if got := wellFormedID(tc.id); got != tc.want {
			t.Fatalf("wellFormedID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestCompetitionOpen(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	comp := func(active bool, deadline time.Time) results.Competition {
		return results.Competition{ID: compID, Active: active, ResultsDeadline: deadline}
	}
	if r := competitionOpen(comp(true, now.Add(time.Hour)), now); r != "" {
		t.Fatalf("expected open competition, got %s", r)
	}
	if r := competitionOpen(comp(false, now.Add(time.Hour)), now); r != ReasonCompetitionInactive {
		t.Fatalf("expected inactive, got %s", r)
	}
	if r := competitionOpen(comp(true, now.Add(-time.Second)), now); r != ReasonCompetitionDeadlinePassed {
		t.Fatalf("expected deadline passed, got %s", r)
	}
}
