package guard

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"soundoff.org/internal/ids"
	"soundoff.org/internal/results"
)

// wellFormedID accepts the two identifier formats in use: UUIDs issued by the
// account system and ULIDs issued by this service.
func wellFormedID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	return ids.Valid(s)
}

// validateIDs returns the names of malformed identifier fields, empty when
// everything is well-formed.
func validateIDs(fields map[string]string) []string {
	var violated []string
	for name, value := range fields {
		if !wellFormedID(value) {
			violated = append(violated, name)
		}
	}
	sort.Strings(violated)
	return violated
}

// competitionOpen checks that a competition accepts new results right now.
// Returns the empty reason when it does.
func competitionOpen(c results.Competition, now time.Time) Reason {
	if !c.Active {
		return ReasonCompetitionInactive
	}
	if !c.ResultsDeadline.IsZero() && now.After(c.ResultsDeadline) {
		return ReasonCompetitionDeadlinePassed
	}
	return ""
}
