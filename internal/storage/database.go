package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/AzkaWisata/autochat-backend/internal/models"
)

// DatabaseStore is the gorm/PostgreSQL-backed storage implementation
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Contact operations

func (d *DatabaseStore) CreateContact(contact *models.Contact) (*models.Contact, error) {
	if err := d.db.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

func (d *DatabaseStore) GetContactByPhone(phone string) (*models.Contact, error) {
	var contact models.Contact
	if err := d.db.Where("phone = ?", phone).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("contact not found")
		}
		return nil, err
	}
	return &contact, nil
}

func (d *DatabaseStore) GetContactByID(contactID string) (*models.Contact, error) {
	var contact models.Contact
	if err := d.db.Where("contact_id = ?", contactID).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("contact not found")
		}
		return nil, err
	}
	return &contact, nil
}

func (d *DatabaseStore) UpdateContact(contact *models.Contact) error {
	return d.db.Save(contact).Error
}

// Conversation operations

func (d *DatabaseStore) GetConversation(contactID, channelSession string) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.Where("contact_id = ? AND channel_session = ?", contactID, channelSession).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation not found")
		}
		return nil, err
	}
	return &conv, nil
}

func (d *DatabaseStore) CreateConversation(conv *models.Conversation) (*models.Conversation, error) {
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = time.Now()
	}
	if err := d.db.Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (d *DatabaseStore) UpdateConversation(conv *models.Conversation) error {
	return d.db.Save(conv).Error
}

// Message operations

func (d *DatabaseStore) CreateMessage(msg *models.Message) (*models.Message, error) {
	if err := d.db.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (d *DatabaseStore) UpdateMessageStatus(messageID, status string) error {
	return d.db.Model(&models.Message{}).
		Where("message_id = ?", messageID).
		Update("status", status).Error
}

func (d *DatabaseStore) CountInboundMessages(conversationID string) (int64, error) {
	var count int64
	err := d.db.Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ?", conversationID, models.DirectionInbound).
		Count(&count).Error
	return count, err
}

func (d *DatabaseStore) GetRecentMessages(contactID string, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := d.db.Where("contact_id = ?", contactID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// Rule operations

func (d *DatabaseStore) GetActiveRules() ([]*models.Rule, error) {
	var rules []*models.Rule
	err := d.db.Where("is_active = ?", true).
		Order("priority DESC").
		Find(&rules).Error
	return rules, err
}

func (d *DatabaseStore) GetRule(ruleID string) (*models.Rule, error) {
	var rule models.Rule
	if err := d.db.Where("rule_id = ?", ruleID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule not found")
		}
		return nil, err
	}
	return &rule, nil
}

func (d *DatabaseStore) UpdateRule(rule *models.Rule) error {
	return d.db.Save(rule).Error
}

// Rate-limit operations

func (d *DatabaseStore) GetRuleLimit(ruleID, contactID string) (*models.ContactRuleLimit, error) {
	var limit models.ContactRuleLimit
	err := d.db.Where("rule_id = ? AND contact_id = ?", ruleID, contactID).First(&limit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule limit not found")
		}
		return nil, err
	}
	return &limit, nil
}

func (d *DatabaseStore) CreateRuleLimit(limit *models.ContactRuleLimit) (*models.ContactRuleLimit, error) {
	if err := d.db.Create(limit).Error; err != nil {
		return nil, fmt.Errorf("failed to create rule limit: %w", err)
	}
	return limit, nil
}

func (d *DatabaseStore) UpdateRuleLimit(limit *models.ContactRuleLimit) error {
	return d.db.Save(limit).Error
}

func (d *DatabaseStore) PurgeExpiredCooldowns(before time.Time) (int64, error) {
	result := d.db.Model(&models.ContactRuleLimit{}).
		Where("cooldown_until IS NOT NULL AND cooldown_until < ?", before).
		Update("cooldown_until", nil)
	return result.RowsAffected, result.Error
}

// Phase operations

func (d *DatabaseStore) GetPhase(contactID string) (*models.CustomerPhase, error) {
	var phase models.CustomerPhase
	if err := d.db.Where("contact_id = ?", contactID).First(&phase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("phase not found")
		}
		return nil, err
	}
	return &phase, nil
}

func (d *DatabaseStore) CreatePhase(phase *models.CustomerPhase) (*models.CustomerPhase, error) {
	if err := d.db.Create(phase).Error; err != nil {
		return nil, fmt.Errorf("failed to create phase: %w", err)
	}
	return phase, nil
}

func (d *DatabaseStore) UpdatePhase(phase *models.CustomerPhase) error {
	return d.db.Save(phase).Error
}

func (d *DatabaseStore) CreatePhaseTransition(t *models.PhaseTransition) error {
	return d.db.Create(t).Error
}

// Workflow operations

func (d *DatabaseStore) GetWorkflow(workflowID string) (*models.Workflow, error) {
	var w models.Workflow
	if err := d.db.Where("workflow_id = ?", workflowID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("workflow not found")
		}
		return nil, err
	}
	return &w, nil
}

func (d *DatabaseStore) GetActiveWorkflows() ([]*models.Workflow, error) {
	var workflows []*models.Workflow
	err := d.db.Where("is_active = ?", true).Find(&workflows).Error
	return workflows, err
}

// Workflow session operations

func (d *DatabaseStore) GetActiveSession(workflowID, contactID string) (*models.WorkflowSession, error) {
	var session models.WorkflowSession
	err := d.db.Where("workflow_id = ? AND contact_id = ? AND status = ?",
		workflowID, contactID, models.SessionStatusActive).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session not found")
		}
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) GetActiveSessionByContact(contactID string) (*models.WorkflowSession, error) {
	var session models.WorkflowSession
	err := d.db.Where("contact_id = ? AND status = ?", contactID, models.SessionStatusActive).
		Order("last_activity_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session not found")
		}
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) CreateSession(session *models.WorkflowSession) (*models.WorkflowSession, error) {
	// Guard the one-active-session-per-(workflow, contact) invariant inside
	// a transaction so concurrent starts cannot both slip through.
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.WorkflowSession{}).
			Where("workflow_id = ? AND contact_id = ? AND status = ?",
				session.WorkflowID, session.ContactID, models.SessionStatusActive).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("active session already exists")
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (d *DatabaseStore) UpdateSession(session *models.WorkflowSession) error {
	return d.db.Save(session).Error
}

func (d *DatabaseStore) GetStaleSessions(inactiveSince time.Time) ([]*models.WorkflowSession, error) {
	var sessions []*models.WorkflowSession
	err := d.db.Where("status = ? AND last_activity_at < ?", models.SessionStatusActive, inactiveSince).
		Find(&sessions).Error
	return sessions, err
}

// Execution log operations

func (d *DatabaseStore) CreateExecutionLog(entry *models.ExecutionLog) error {
	return d.db.Create(entry).Error
}

func (d *DatabaseStore) GetExecutionLogs(filter LogFilter) ([]*models.ExecutionLog, error) {
	query := d.db.Model(&models.ExecutionLog{}).Order("created_at DESC")
	if filter.ContactID != "" {
		query = query.Where("contact_id = ?", filter.ContactID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var logs []*models.ExecutionLog
	err := query.Find(&logs).Error
	return logs, err
}
