package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Funnel phases, in order. Transitions only ever move forward.
const (
	PhaseLeads    = "LEADS"
	PhaseInterest = "INTEREST"
	PhaseClosing  = "CLOSING"
)

// PhaseRank returns the ordering of a phase, higher is further down the
// funnel. Unknown phases rank below LEADS.
func PhaseRank(phase string) int {
	switch phase {
	case PhaseLeads:
		return 1
	case PhaseInterest:
		return 2
	case PhaseClosing:
		return 3
	}
	return 0
}

// PhaseAttributes holds structured signals extracted from a contact's
// messages. All fields are additive: extractors append or fill, never erase.
type PhaseAttributes struct {
	Packages       []string `json:"packages,omitempty"` // package names the contact asked about
	PreferredMonth string   `json:"preferred_month,omitempty"`
	BudgetJuta     float64  `json:"budget_juta,omitempty"` // budget in juta rupiah
	DepartureCity  string   `json:"departure_city,omitempty"`
	PartySize      int      `json:"party_size,omitempty"`
	Concerns       []string `json:"concerns,omitempty"`
	Tags           []string `json:"tags,omitempty"` // workflow action tags
}

// CustomerPhase is the funnel state of one contact. Created at LEADS on the
// contact's first message and never deleted.
type CustomerPhase struct {
	gorm.Model

	ContactID    string    `json:"contact_id" gorm:"uniqueIndex"`
	Phase        string    `json:"phase" gorm:"default:LEADS"`
	Source       string    `json:"source"` // inferred acquisition source
	EnteredAt    time.Time `json:"entered_at"`
	Attributes   string    `json:"attributes"` // JSON PhaseAttributes
	Interactions int       `json:"interactions" gorm:"default:0"`
}

// BeforeCreate hook to default the phase and entry timestamp
func (p *CustomerPhase) BeforeCreate(tx *gorm.DB) error {
	if p.Phase == "" {
		p.Phase = PhaseLeads
	}
	if p.EnteredAt.IsZero() {
		p.EnteredAt = time.Now()
	}
	return nil
}

// GetAttributes parses the stored attribute JSON
func (p *CustomerPhase) GetAttributes() PhaseAttributes {
	var attrs PhaseAttributes
	if p.Attributes != "" {
		_ = json.Unmarshal([]byte(p.Attributes), &attrs)
	}
	return attrs
}

// SetAttributes serializes attributes back onto the record
func (p *CustomerPhase) SetAttributes(attrs PhaseAttributes) {
	data, err := json.Marshal(attrs)
	if err != nil {
		return
	}
	p.Attributes = string(data)
}

// PhaseTransition is an audit record of one funnel move
type PhaseTransition struct {
	gorm.Model

	ContactID string `json:"contact_id" gorm:"index"`
	FromPhase string `json:"from_phase"`
	ToPhase   string `json:"to_phase"`
	Reason    string `json:"reason"` // the pattern that matched
}
