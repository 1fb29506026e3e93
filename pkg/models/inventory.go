package models

import "time"

// Team owns certificates and service IDs and carries the alert contact tiers.
// The contact fields hold the raw comma-delimited strings as stored; use
// Team.Contacts to pick a tier.
type Team struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Alert1     string    `json:"alert1,omitempty"`
	Alert2     string    `json:"alert2,omitempty"`
	Alert3     string    `json:"alert3,omitempty"`
	Escalation string    `json:"escalation,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ContactTier names one of the four contact slots on a team.
type ContactTier string

const (
	ContactTierAlert1     ContactTier = "alert1"
	ContactTierAlert2     ContactTier = "alert2"
	ContactTierAlert3     ContactTier = "alert3"
	ContactTierEscalation ContactTier = "escalation"
)

// Contacts returns the raw stored value for the given tier.
func (t *Team) Contacts(tier ContactTier) string {
	if t == nil {
		return ""
	}
	switch tier {
	case ContactTierAlert1:
		return t.Alert1
	case ContactTierAlert2:
		return t.Alert2
	case ContactTierAlert3:
		return t.Alert3
	case ContactTierEscalation:
		return t.Escalation
	default:
		return ""
	}
}

// Certificate is an onboarded TLS certificate.
type Certificate struct {
	ID         string     `json:"id"`
	CommonName string     `json:"common_name"`
	TeamID     string     `json:"team_id"`
	ValidTo    time.Time  `json:"valid_to"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ServiceID is a service credential renewed by a team.
type ServiceID struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	RenewingTeamID string    `json:"renewing_team_id"`
	ExpDate        time.Time `json:"exp_date"`
	CreatedAt      time.Time `json:"created_at"`
}
