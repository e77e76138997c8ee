package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workflow step types
const (
	StepTypeTemplate    = "template"
	StepTypeKeyword     = "keyword"
	StepTypeAIAgent     = "ai_agent"
	StepTypeInput       = "input"
	StepTypeConditional = "conditional"
	StepTypeAction      = "action"
)

// Condition kinds for next-step resolution
const (
	ConditionKeywordMatch     = "keyword_match"
	ConditionVariableEquals   = "variable_equals"
	ConditionVariableContains = "variable_contains"
	ConditionResponseLength   = "response_length"
)

// Numeric comparators for response_length conditions
const (
	CompareEquals         = "equals"
	CompareGreater        = "greater"
	CompareLess           = "less"
	CompareGreaterOrEqual = "greaterOrEqual"
	CompareLessOrEqual    = "lessOrEqual"
)

// Input validation kinds for input steps
const (
	InputKindText   = "text"
	InputKindNumber = "number"
	InputKindChoice = "choice"
	InputKindDate   = "date"
)

// Action kinds for action steps
const (
	ActionUpdatePhase = "update_phase"
	ActionAddTag      = "add_tag"
	ActionNotify      = "notify"
	ActionCreateTask  = "create_task"
)

// Workflow session status
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusError     = "error"
)

// StepCondition is one conditional next-step rule. Conditions are
// evaluated in declared order; the first match wins.
type StepCondition struct {
	Kind       string `json:"kind"`
	Keyword    string `json:"keyword,omitempty"`  // keyword_match
	Variable   string `json:"variable,omitempty"` // variable_equals / variable_contains
	Value      string `json:"value,omitempty"`
	Comparator string `json:"comparator,omitempty"` // response_length
	Length     int    `json:"length,omitempty"`     // response_length
	NextStep   string `json:"next_step"`
}

// InputSpec declares how an input step validates the contact's reply
type InputSpec struct {
	Kind      string   `json:"kind"`
	Min       *float64 `json:"min,omitempty"`        // number range
	Max       *float64 `json:"max,omitempty"`        // number range
	MinLength int      `json:"min_length,omitempty"` // text
	MaxLength int      `json:"max_length,omitempty"` // text
	Pattern   string   `json:"pattern,omitempty"`    // text regex
	Choices   []string `json:"choices,omitempty"`    // choice
	Layouts   []string `json:"layouts,omitempty"`    // date parse layouts
}

// WorkflowStep is one node of a workflow template
type WorkflowStep struct {
	StepID       string          `json:"step_id"`
	Type         string          `json:"type"`
	Prompt       string          `json:"prompt,omitempty"` // text sent for template/keyword/input steps
	MediaURL     string          `json:"media_url,omitempty"`
	DelaySeconds int             `json:"delay_seconds,omitempty"` // pre-delay before executing
	SaveAs       string          `json:"save_as,omitempty"`       // variable-capture target
	Keywords     []string        `json:"keywords,omitempty"`      // keyword steps
	Input        *InputSpec      `json:"input,omitempty"`         // input steps
	SystemPrompt string          `json:"system_prompt,omitempty"` // ai_agent steps
	Action       string          `json:"action,omitempty"`        // action steps
	ActionValue  string          `json:"action_value,omitempty"`
	DefaultNext  string          `json:"default_next,omitempty"`
	Conditions   []StepCondition `json:"conditions,omitempty"`
}

// Workflow is an operator-configured multi-step dialog template
type Workflow struct {
	gorm.Model

	WorkflowID      string `json:"workflow_id" gorm:"uniqueIndex"`
	Name            string `json:"name"`
	StartKeywords   string `json:"start_keywords"` // JSON array
	RootStepID      string `json:"root_step_id"`
	Steps           string `json:"steps"` // JSON array of WorkflowStep
	FallbackMessage string `json:"fallback_message"`
	IsActive        bool   `json:"is_active" gorm:"default:true"`
}

// BeforeCreate hook to auto-generate WorkflowID
func (w *Workflow) BeforeCreate(tx *gorm.DB) error {
	if w.WorkflowID == "" {
		w.WorkflowID = fmt.Sprintf("WF%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	return nil
}

// StartKeywordList parses the configured start keywords
func (w *Workflow) StartKeywordList() []string {
	return parseStringList(w.StartKeywords)
}

// StepList parses the step definitions
func (w *Workflow) StepList() ([]WorkflowStep, error) {
	var steps []WorkflowStep
	if err := json.Unmarshal([]byte(w.Steps), &steps); err != nil {
		return nil, fmt.Errorf("workflow %s: invalid steps config: %w", w.WorkflowID, err)
	}
	return steps, nil
}

// FindStep looks up a step by ID
func (w *Workflow) FindStep(stepID string) (*WorkflowStep, error) {
	steps, err := w.StepList()
	if err != nil {
		return nil, err
	}
	for i := range steps {
		if steps[i].StepID == stepID {
			return &steps[i], nil
		}
	}
	return nil, fmt.Errorf("workflow %s: step %q not found", w.WorkflowID, stepID)
}

// Validate rejects malformed workflow config at load time
func (w *Workflow) Validate() error {
	steps, err := w.StepList()
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("workflow %s: no steps configured", w.WorkflowID)
	}
	ids := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.StepID == "" {
			return fmt.Errorf("workflow %s: step with empty id", w.WorkflowID)
		}
		if ids[s.StepID] {
			return fmt.Errorf("workflow %s: duplicate step id %q", w.WorkflowID, s.StepID)
		}
		ids[s.StepID] = true
		switch s.Type {
		case StepTypeTemplate, StepTypeKeyword, StepTypeAIAgent, StepTypeInput, StepTypeConditional, StepTypeAction:
		default:
			return fmt.Errorf("workflow %s: step %q has unknown type %q", w.WorkflowID, s.StepID, s.Type)
		}
	}
	if !ids[w.RootStepID] {
		return fmt.Errorf("workflow %s: root step %q not found", w.WorkflowID, w.RootStepID)
	}
	for _, s := range steps {
		if s.DefaultNext != "" && !ids[s.DefaultNext] {
			return fmt.Errorf("workflow %s: step %q default next %q not found", w.WorkflowID, s.StepID, s.DefaultNext)
		}
		for _, c := range s.Conditions {
			if c.NextStep != "" && !ids[c.NextStep] {
				return fmt.Errorf("workflow %s: step %q condition next %q not found", w.WorkflowID, s.StepID, c.NextStep)
			}
		}
	}
	return nil
}

// StepRecord is one entry of a session's step history
type StepRecord struct {
	StepID     string    `json:"step_id"`
	Type       string    `json:"type"`
	ExecutedAt time.Time `json:"executed_at"`
	Response   string    `json:"response,omitempty"` // contact reply consumed by this step
}

// WorkflowSession is one active run of a workflow for one contact.
// At most one active session exists per (workflow, contact).
type WorkflowSession struct {
	gorm.Model

	SessionID      string    `json:"session_id" gorm:"uniqueIndex"`
	WorkflowID     string    `json:"workflow_id" gorm:"index"`
	ContactID      string    `json:"contact_id" gorm:"index"`
	CurrentStepID  string    `json:"current_step_id"`
	Variables      string    `json:"variables"` // JSON map[string]string
	History        string    `json:"history"`   // JSON array of StepRecord
	Errors         string    `json:"errors"`    // JSON array of error strings
	Status         string    `json:"status" gorm:"default:active;index"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// BeforeCreate hook to auto-generate SessionID
func (s *WorkflowSession) BeforeCreate(tx *gorm.DB) error {
	if s.SessionID == "" {
		s.SessionID = "WS" + uuid.NewString()
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = time.Now()
	}
	return nil
}

// GetVariables parses the session variable map
func (s *WorkflowSession) GetVariables() map[string]string {
	vars := make(map[string]string)
	if s.Variables != "" {
		_ = json.Unmarshal([]byte(s.Variables), &vars)
	}
	return vars
}

// SetVariables serializes the variable map back onto the session
func (s *WorkflowSession) SetVariables(vars map[string]string) {
	data, err := json.Marshal(vars)
	if err != nil {
		return
	}
	s.Variables = string(data)
}

// GetHistory parses the step history
func (s *WorkflowSession) GetHistory() []StepRecord {
	var history []StepRecord
	if s.History != "" {
		_ = json.Unmarshal([]byte(s.History), &history)
	}
	return history
}

// AppendHistory adds one record to the step history
func (s *WorkflowSession) AppendHistory(record StepRecord) {
	history := append(s.GetHistory(), record)
	data, err := json.Marshal(history)
	if err != nil {
		return
	}
	s.History = string(data)
}

// AppendError adds one entry to the session error log
func (s *WorkflowSession) AppendError(msg string) {
	var errors []string
	if s.Errors != "" {
		_ = json.Unmarshal([]byte(s.Errors), &errors)
	}
	errors = append(errors, msg)
	data, err := json.Marshal(errors)
	if err != nil {
		return
	}
	s.Errors = string(data)
}
