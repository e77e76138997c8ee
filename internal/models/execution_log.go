package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Execution outcomes
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
	ExecutionSkipped = "skipped"
)

// ExecutionLog is an append-only audit record of one rule evaluation
type ExecutionLog struct {
	gorm.Model

	LogID           string `json:"log_id" gorm:"uniqueIndex"`
	ContactID       string `json:"contact_id" gorm:"index"`
	MessageID       string `json:"message_id" gorm:"index"`
	RuleID          string `json:"rule_id" gorm:"index"`
	RuleType        string `json:"rule_type"`
	Status          string `json:"status" gorm:"index"`
	Reason          string `json:"reason"`
	MatchedSignals  string `json:"matched_signals"` // JSON array of matched keywords/patterns
	ResponsePreview string `json:"response_preview"`
	DurationMs      int64  `json:"duration_ms"`
}

// BeforeCreate hook to auto-generate LogID
func (l *ExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if l.LogID == "" {
		l.LogID = "EX" + uuid.NewString()
	}
	return nil
}

// SetMatchedSignals serializes the matched signal list
func (l *ExecutionLog) SetMatchedSignals(signals []string) {
	if len(signals) == 0 {
		return
	}
	data, err := json.Marshal(signals)
	if err != nil {
		return
	}
	l.MatchedSignals = string(data)
}

// TruncatePreview trims a response text for audit storage. Cuts on a rune
// boundary so emoji in the copy deck survive.
func TruncatePreview(text string) string {
	runes := []rune(text)
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}
	return text
}

// SinceMs returns elapsed milliseconds for duration stamping
func SinceMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
