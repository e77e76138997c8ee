package storage

import (
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
)

// LogFilter narrows execution-log queries
type LogFilter struct {
	ContactID string
	Status    string
	Limit     int
	Offset    int
}

// Store defines the interface for storage operations
type Store interface {
	// Contact operations
	CreateContact(contact *models.Contact) (*models.Contact, error)
	GetContactByPhone(phone string) (*models.Contact, error)
	GetContactByID(contactID string) (*models.Contact, error)
	UpdateContact(contact *models.Contact) error

	// Conversation operations
	GetConversation(contactID, channelSession string) (*models.Conversation, error)
	CreateConversation(conv *models.Conversation) (*models.Conversation, error)
	UpdateConversation(conv *models.Conversation) error

	// Message operations
	CreateMessage(msg *models.Message) (*models.Message, error)
	UpdateMessageStatus(messageID, status string) error
	CountInboundMessages(conversationID string) (int64, error)
	GetRecentMessages(contactID string, limit int) ([]*models.Message, error)

	// Rule operations
	GetActiveRules() ([]*models.Rule, error)
	GetRule(ruleID string) (*models.Rule, error)
	UpdateRule(rule *models.Rule) error

	// Rate-limit operations
	GetRuleLimit(ruleID, contactID string) (*models.ContactRuleLimit, error)
	CreateRuleLimit(limit *models.ContactRuleLimit) (*models.ContactRuleLimit, error)
	UpdateRuleLimit(limit *models.ContactRuleLimit) error
	PurgeExpiredCooldowns(before time.Time) (int64, error)

	// Phase operations
	GetPhase(contactID string) (*models.CustomerPhase, error)
	CreatePhase(phase *models.CustomerPhase) (*models.CustomerPhase, error)
	UpdatePhase(phase *models.CustomerPhase) error
	CreatePhaseTransition(t *models.PhaseTransition) error

	// Workflow operations
	GetWorkflow(workflowID string) (*models.Workflow, error)
	GetActiveWorkflows() ([]*models.Workflow, error)

	// Workflow session operations
	GetActiveSession(workflowID, contactID string) (*models.WorkflowSession, error)
	GetActiveSessionByContact(contactID string) (*models.WorkflowSession, error)
	CreateSession(session *models.WorkflowSession) (*models.WorkflowSession, error)
	UpdateSession(session *models.WorkflowSession) error
	GetStaleSessions(inactiveSince time.Time) ([]*models.WorkflowSession, error)

	// Execution log operations
	CreateExecutionLog(entry *models.ExecutionLog) error
	GetExecutionLogs(filter LogFilter) ([]*models.ExecutionLog, error)
}
