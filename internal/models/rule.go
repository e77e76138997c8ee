package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Rule types
const (
	RuleTypeWelcome  = "welcome"
	RuleTypeAway     = "away"
	RuleTypeKeyword  = "keyword"
	RuleTypeWorkflow = "workflow"
	RuleTypeLLMAgent = "llm_agent"
	RuleTypeTemplate = "template"
)

// Response kinds after normalization
const (
	ResponseKindText     = "text"
	ResponseKindSequence = "sequence"
	ResponseKindMedia    = "media"
	ResponseKindButtons  = "buttons"
)

// ResponseMessage is a single message inside a normalized response
type ResponseMessage struct {
	Text         string `json:"text"`
	MediaURL     string `json:"media_url,omitempty"`
	DelaySeconds int    `json:"delay_seconds,omitempty"`
}

// RuleResponse is the tagged union a raw response config is normalized into.
// Raw configs arrive in several legacy shapes (single string, single-field
// object, message array); they are normalized exactly once, at load time.
type RuleResponse struct {
	Kind     string            `json:"kind"`
	Text     string            `json:"text,omitempty"`
	Messages []ResponseMessage `json:"messages,omitempty"`
	MediaURL string            `json:"media_url,omitempty"`
	Buttons  []string          `json:"buttons,omitempty"`
}

// AwaySchedule describes the business-hours window for away rules.
// The away predicate fires outside this window. No schedule means the
// rule never triggers.
type AwaySchedule struct {
	Days      []time.Weekday `json:"days"`       // days the business is open
	StartHour int            `json:"start_hour"` // inclusive, 0-23
	EndHour   int            `json:"end_hour"`   // exclusive, 0-23
}

// Rule is an operator-configured automation directive. The engine never
// edits a rule except to bump its counters.
type Rule struct {
	gorm.Model

	RuleID   string `json:"rule_id" gorm:"uniqueIndex"`
	Name     string `json:"name"`
	Type     string `json:"type" gorm:"index"`
	Priority int    `json:"priority" gorm:"index;default:0"`
	IsActive bool   `json:"is_active" gorm:"default:true"`

	// Predicate config
	Keywords      string `json:"keywords"`       // JSON array of trigger keywords
	Schedule      string `json:"schedule"`       // JSON AwaySchedule, away rules only
	AllowedPhases string `json:"allowed_phases"` // JSON array of phase names, llm_agent only
	WorkflowID    string `json:"workflow_id"`    // workflow rules only
	SystemPrompt  string `json:"system_prompt"`  // llm_agent only

	// Response config
	ResponseRaw          string `json:"response_raw"` // operator-supplied shape, normalized at load
	ResponseDelaySeconds int    `json:"response_delay_seconds" gorm:"default:0"`

	// Rate-limit policy
	CooldownMinutes       int `json:"cooldown_minutes" gorm:"default:0"`
	MaxTriggersPerContact int `json:"max_triggers_per_contact" gorm:"default:0"` // 0 = unlimited

	// Counters (engine-owned)
	TriggerCount int `json:"trigger_count" gorm:"default:0"`
	SuccessCount int `json:"success_count" gorm:"default:0"`
	FailureCount int `json:"failure_count" gorm:"default:0"`

	// Populated by NormalizeResponse, not persisted
	Response *RuleResponse `json:"-" gorm:"-"`
}

// BeforeCreate hook to auto-generate RuleID
func (r *Rule) BeforeCreate(tx *gorm.DB) error {
	if r.RuleID == "" {
		r.RuleID = fmt.Sprintf("RL%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	return nil
}

// KeywordList parses the configured keywords
func (r *Rule) KeywordList() []string {
	return parseStringList(r.Keywords)
}

// AllowedPhaseList parses the configured phase allow-list
func (r *Rule) AllowedPhaseList() []string {
	return parseStringList(r.AllowedPhases)
}

// AwayScheduleConfig parses the away schedule. Returns nil when no
// schedule is configured.
func (r *Rule) AwayScheduleConfig() *AwaySchedule {
	if strings.TrimSpace(r.Schedule) == "" {
		return nil
	}
	var s AwaySchedule
	if err := json.Unmarshal([]byte(r.Schedule), &s); err != nil {
		return nil
	}
	return &s
}

// NormalizeResponse parses ResponseRaw into the tagged union and caches it
// on the rule. Legacy shapes are accepted:
//
//	"text"                                  -> Text
//	{"message": "text"}                     -> Text
//	{"text": "text"}                        -> Text
//	{"media_url": "...", "caption": "..."}  -> Media
//	{"messages": [{...}, {...}]}            -> Sequence
//	{"buttons": [...], "text": "..."}       -> Buttons
//
// Malformed config is a validation error; the rule must be rejected at load.
func (r *Rule) NormalizeResponse() error {
	raw := strings.TrimSpace(r.ResponseRaw)
	if raw == "" {
		// Workflow and llm_agent rules produce their responses at execution time
		if r.Type == RuleTypeWorkflow || r.Type == RuleTypeLLMAgent || r.Type == RuleTypeTemplate {
			r.Response = nil
			return nil
		}
		return fmt.Errorf("rule %s: empty response config", r.RuleID)
	}

	// Bare string form
	if !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[") {
		r.Response = &RuleResponse{Kind: ResponseKindText, Text: raw}
		return nil
	}
	var quoted string
	if err := json.Unmarshal([]byte(raw), &quoted); err == nil {
		r.Response = &RuleResponse{Kind: ResponseKindText, Text: quoted}
		return nil
	}

	var obj struct {
		Message  string            `json:"message"`
		Text     string            `json:"text"`
		MediaURL string            `json:"media_url"`
		Caption  string            `json:"caption"`
		Messages []ResponseMessage `json:"messages"`
		Buttons  []string          `json:"buttons"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return fmt.Errorf("rule %s: invalid response config: %w", r.RuleID, err)
	}

	switch {
	case len(obj.Buttons) > 0:
		r.Response = &RuleResponse{Kind: ResponseKindButtons, Text: firstNonEmpty(obj.Text, obj.Message), Buttons: obj.Buttons}
	case len(obj.Messages) > 0:
		r.Response = &RuleResponse{Kind: ResponseKindSequence, Messages: obj.Messages}
	case obj.MediaURL != "":
		r.Response = &RuleResponse{Kind: ResponseKindMedia, MediaURL: obj.MediaURL, Text: firstNonEmpty(obj.Caption, obj.Text, obj.Message)}
	case obj.Message != "" || obj.Text != "":
		r.Response = &RuleResponse{Kind: ResponseKindText, Text: firstNonEmpty(obj.Text, obj.Message)}
	default:
		return fmt.Errorf("rule %s: response config has no recognizable shape", r.RuleID)
	}
	return nil
}

// Preview returns a short preview of the normalized response for audit logs
func (resp *RuleResponse) Preview() string {
	if resp == nil {
		return ""
	}
	text := resp.Text
	if resp.Kind == ResponseKindSequence && len(resp.Messages) > 0 {
		text = resp.Messages[0].Text
	}
	return TruncatePreview(text)
}

func parseStringList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		// Fall back to comma-separated legacy form
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				list = append(list, p)
			}
		}
	}
	return list
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
