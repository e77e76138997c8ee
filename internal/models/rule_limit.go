package models

import (
	"time"

	"gorm.io/gorm"
)

// ContactRuleLimit tracks how often a rule has fired for one contact.
// Lazily created on first evaluation. TriggerCount only ever increases and
// CooldownUntil only ever moves forward.
type ContactRuleLimit struct {
	gorm.Model

	RuleID        string     `json:"rule_id" gorm:"index:idx_rule_contact,unique"`
	ContactID     string     `json:"contact_id" gorm:"index:idx_rule_contact,unique"`
	TriggerCount  int        `json:"trigger_count" gorm:"default:0"`
	CooldownUntil *time.Time `json:"cooldown_until"`
	IsBlocked     bool       `json:"is_blocked" gorm:"default:false"`
	BlockReason   string     `json:"block_reason"`
	LastTriggerAt *time.Time `json:"last_trigger_at"`
}

// InCooldown reports whether the limit is still inside its cooldown window
func (l *ContactRuleLimit) InCooldown(now time.Time) bool {
	return l.CooldownUntil != nil && now.Before(*l.CooldownUntil)
}
