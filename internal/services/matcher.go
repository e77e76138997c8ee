package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// RuleMatcher evaluates rule predicates against one inbound message.
// Rules arrive pre-sorted priority-descending; the orchestrator walks them
// in order and keeps scanning past rules the rate limiter denies.
type RuleMatcher struct {
	store storage.Store
	now   func() time.Time
}

// NewRuleMatcher creates a matcher over the given store
func NewRuleMatcher(store storage.Store) *RuleMatcher {
	return &RuleMatcher{
		store: store,
		now:   time.Now,
	}
}

// Match runs the type-specific predicate for one rule. Returns whether the
// predicate passed and the signals (matched keywords/patterns) for audit
// logging. Only inbound messages are ever considered.
func (m *RuleMatcher) Match(rule *models.Rule, msg *models.Message, contact *models.Contact, phase *models.CustomerPhase, conv *models.Conversation) (bool, []string, error) {
	if !msg.IsInbound() {
		return false, nil, nil
	}

	switch rule.Type {
	case models.RuleTypeWelcome:
		return m.matchWelcome(conv)
	case models.RuleTypeAway:
		return m.matchAway(rule)
	case models.RuleTypeKeyword:
		return m.matchKeyword(rule, msg)
	case models.RuleTypeWorkflow:
		return m.matchWorkflow(rule, msg, contact)
	case models.RuleTypeLLMAgent:
		return m.matchLLMAgent(rule, msg, phase)
	case models.RuleTypeTemplate:
		// Always eligible; concrete matching happens at execution against
		// the template store
		return true, nil, nil
	default:
		return false, nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// matchWelcome passes only for the contact's first inbound message in the
// conversation. The message under evaluation has already been recorded.
func (m *RuleMatcher) matchWelcome(conv *models.Conversation) (bool, []string, error) {
	count, err := m.store.CountInboundMessages(conv.ConversationID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to count messages: %w", err)
	}
	return count <= 1, nil, nil
}

// matchAway passes when the current time falls outside the configured
// business-hours window. A rule with no schedule never triggers.
func (m *RuleMatcher) matchAway(rule *models.Rule) (bool, []string, error) {
	schedule := rule.AwayScheduleConfig()
	if schedule == nil {
		return false, nil, nil
	}

	now := m.now()
	openDay := false
	for _, day := range schedule.Days {
		if now.Weekday() == day {
			openDay = true
			break
		}
	}
	inWindow := openDay && now.Hour() >= schedule.StartHour && now.Hour() < schedule.EndHour
	return !inWindow, nil, nil
}

// matchKeyword passes when the message contains any configured keyword,
// case-insensitively. Returns the matched subset for logging.
func (m *RuleMatcher) matchKeyword(rule *models.Rule, msg *models.Message) (bool, []string, error) {
	lower := strings.ToLower(msg.Content)
	var matched []string
	for _, kw := range rule.KeywordList() {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched, nil
}

// matchWorkflow passes when an active session already exists for this
// rule's workflow and contact (continuation), or the message contains a
// configured start keyword.
func (m *RuleMatcher) matchWorkflow(rule *models.Rule, msg *models.Message, contact *models.Contact) (bool, []string, error) {
	if rule.WorkflowID == "" {
		return false, nil, fmt.Errorf("workflow rule %s has no workflow configured", rule.RuleID)
	}

	if _, err := m.store.GetActiveSession(rule.WorkflowID, contact.ContactID); err == nil {
		return true, []string{"active_session"}, nil
	}

	startKeywords := rule.KeywordList()
	if len(startKeywords) == 0 {
		if workflow, err := m.store.GetWorkflow(rule.WorkflowID); err == nil {
			startKeywords = workflow.StartKeywordList()
		}
	}

	lower := strings.ToLower(msg.Content)
	for _, kw := range startKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true, []string{kw}, nil
		}
	}
	return false, nil, nil
}

// matchLLMAgent passes unless a keyword allow-list excludes the message, a
// phase allow-list excludes the contact's phase, or the message is shorter
// than 3 characters.
func (m *RuleMatcher) matchLLMAgent(rule *models.Rule, msg *models.Message, phase *models.CustomerPhase) (bool, []string, error) {
	if len(strings.TrimSpace(msg.Content)) < 3 {
		return false, nil, nil
	}

	var signals []string
	if keywords := rule.KeywordList(); len(keywords) > 0 {
		lower := strings.ToLower(msg.Content)
		matched := false
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				matched = true
				signals = append(signals, kw)
			}
		}
		if !matched {
			return false, nil, nil
		}
	}

	if phases := rule.AllowedPhaseList(); len(phases) > 0 {
		current := models.PhaseLeads
		if phase != nil {
			current = phase.Phase
		}
		allowed := false
		for _, p := range phases {
			if strings.EqualFold(p, current) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil, nil
		}
	}

	return true, signals, nil
}
