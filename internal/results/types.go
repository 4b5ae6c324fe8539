package results

import "time"

// Result is a single competitor's scored entry in a competition.
type Result struct {
	ID             string    `json:"id"`
	CompetitionID  string    `json:"competition_id"`
	OwnerID        string    `json:"owner_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Category       string    `json:"category"`
	Placement      int       `json:"placement,omitempty"`
	Score          float64   `json:"score"`
	Notes          string    `json:"notes,omitempty"`
	Verified       bool      `json:"verified"`
	Revision       int64     `json:"revision"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Competition describes an event that accepts result submissions.
type Competition struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Active          bool      `json:"active"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	ResultsDeadline time.Time `json:"results_deadline"`
}
