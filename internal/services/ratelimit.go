package services

import (
	"fmt"
	"log"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// Rate-limit denial reasons
const (
	DenyBlocked     = "blocked"
	DenyCooldown    = "cooldown"
	DenyMaxTriggers = "max_triggers"
)

// RateLimitDecision is the outcome of one gate check
type RateLimitDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RateLimiter gates rule execution per (rule, contact)
type RateLimiter struct {
	store storage.Store
	now   func() time.Time
}

// NewRateLimiter creates a rate limiter over the given store
func NewRateLimiter(store storage.Store) *RateLimiter {
	return &RateLimiter{
		store: store,
		now:   time.Now,
	}
}

// loadOrCreate fetches the (rule, contact) limit, lazily creating it
func (r *RateLimiter) loadOrCreate(ruleID, contactID string) (*models.ContactRuleLimit, error) {
	limit, err := r.store.GetRuleLimit(ruleID, contactID)
	if err == nil {
		return limit, nil
	}

	limit, err = r.store.CreateRuleLimit(&models.ContactRuleLimit{
		RuleID:    ruleID,
		ContactID: contactID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rule limit: %w", err)
	}
	return limit, nil
}

// Check decides whether a rule may fire for a contact
func (r *RateLimiter) Check(rule *models.Rule, contactID string) (*RateLimitDecision, error) {
	limit, err := r.loadOrCreate(rule.RuleID, contactID)
	if err != nil {
		return nil, err
	}

	if limit.IsBlocked {
		return &RateLimitDecision{Allowed: false, Reason: DenyBlocked}, nil
	}
	if limit.InCooldown(r.now()) {
		return &RateLimitDecision{Allowed: false, Reason: DenyCooldown}, nil
	}
	if rule.MaxTriggersPerContact > 0 && limit.TriggerCount >= rule.MaxTriggersPerContact {
		return &RateLimitDecision{Allowed: false, Reason: DenyMaxTriggers}, nil
	}
	return &RateLimitDecision{Allowed: true}, nil
}

// Record registers a completed trigger: bumps the counter and refreshes the
// cooldown window when the rule configures one. Counters never regress and
// the cooldown only ever moves forward.
func (r *RateLimiter) Record(rule *models.Rule, contactID string) error {
	limit, err := r.loadOrCreate(rule.RuleID, contactID)
	if err != nil {
		return err
	}

	now := r.now()
	limit.TriggerCount++
	limit.LastTriggerAt = &now

	if rule.CooldownMinutes > 0 {
		until := now.Add(time.Duration(rule.CooldownMinutes) * time.Minute)
		if limit.CooldownUntil == nil || until.After(*limit.CooldownUntil) {
			limit.CooldownUntil = &until
		}
	}

	if err := r.store.UpdateRuleLimit(limit); err != nil {
		return fmt.Errorf("failed to update rule limit: %w", err)
	}

	log.Printf("Rate limit recorded for rule %s contact %s (count=%d)", rule.RuleID, contactID, limit.TriggerCount)
	return nil
}

// Block marks a (rule, contact) pair as permanently denied
func (r *RateLimiter) Block(ruleID, contactID, reason string) error {
	limit, err := r.loadOrCreate(ruleID, contactID)
	if err != nil {
		return err
	}
	limit.IsBlocked = true
	limit.BlockReason = reason
	return r.store.UpdateRuleLimit(limit)
}
