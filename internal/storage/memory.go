package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AzkaWisata/autochat-backend/internal/models"
)

// MemoryStore holds all data in memory, used for tests and local development
type MemoryStore struct {
	contacts      map[string]*models.Contact          // by ContactID
	conversations map[string]*models.Conversation     // by ConversationID
	messages      map[string]*models.Message          // by MessageID
	rules         map[string]*models.Rule             // by RuleID
	limits        map[string]*models.ContactRuleLimit // by ruleID|contactID
	phases        map[string]*models.CustomerPhase    // by ContactID
	transitions   []*models.PhaseTransition
	workflows     map[string]*models.Workflow        // by WorkflowID
	sessions      map[string]*models.WorkflowSession // by SessionID
	logs          []*models.ExecutionLog

	mu sync.RWMutex

	contactCounter      int
	conversationCounter int
	messageCounter      int
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts:      make(map[string]*models.Contact),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		rules:         make(map[string]*models.Rule),
		limits:        make(map[string]*models.ContactRuleLimit),
		phases:        make(map[string]*models.CustomerPhase),
		workflows:     make(map[string]*models.Workflow),
		sessions:      make(map[string]*models.WorkflowSession),
	}
}

// Contact operations

func (m *MemoryStore) CreateContact(contact *models.Contact) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.contacts {
		if existing.Phone == contact.Phone {
			return nil, fmt.Errorf("contact already exists")
		}
	}

	m.contactCounter++
	if contact.ContactID == "" {
		contact.ContactID = fmt.Sprintf("CT%05d", m.contactCounter)
	}
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = time.Now()

	m.contacts[contact.ContactID] = contact
	return contact, nil
}

func (m *MemoryStore) GetContactByPhone(phone string) (*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, contact := range m.contacts {
		if contact.Phone == phone {
			return contact, nil
		}
	}
	return nil, fmt.Errorf("contact not found")
}

func (m *MemoryStore) GetContactByID(contactID string) (*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contact, exists := m.contacts[contactID]
	if !exists {
		return nil, fmt.Errorf("contact not found")
	}
	return contact, nil
}

func (m *MemoryStore) UpdateContact(contact *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.contacts[contact.ContactID]; !exists {
		return fmt.Errorf("contact not found")
	}
	contact.UpdatedAt = time.Now()
	m.contacts[contact.ContactID] = contact
	return nil
}

// Conversation operations

func (m *MemoryStore) GetConversation(contactID, channelSession string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conv := range m.conversations {
		if conv.ContactID == contactID && conv.ChannelSession == channelSession {
			return conv, nil
		}
	}
	return nil, fmt.Errorf("conversation not found")
}

func (m *MemoryStore) CreateConversation(conv *models.Conversation) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversationCounter++
	if conv.ConversationID == "" {
		conv.ConversationID = fmt.Sprintf("CV%05d", m.conversationCounter)
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = time.Now()
	}
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()

	m.conversations[conv.ConversationID] = conv
	return conv, nil
}

func (m *MemoryStore) UpdateConversation(conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ConversationID]; !exists {
		return fmt.Errorf("conversation not found")
	}
	conv.UpdatedAt = time.Now()
	m.conversations[conv.ConversationID] = conv
	return nil
}

// Message operations

func (m *MemoryStore) CreateMessage(msg *models.Message) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messageCounter++
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("MSG%05d", m.messageCounter)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusReceived
	}
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = time.Now()

	m.messages[msg.MessageID] = msg
	return msg, nil
}

func (m *MemoryStore) UpdateMessageStatus(messageID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, exists := m.messages[messageID]
	if !exists {
		return fmt.Errorf("message not found")
	}
	msg.Status = status
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CountInboundMessages(conversationID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.Direction == models.DirectionInbound {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetRecentMessages(contactID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*models.Message
	for _, msg := range m.messages {
		if msg.ContactID == contactID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Rule operations

// SeedRule inserts a rule directly, for tests and local bootstrapping
func (m *MemoryStore) SeedRule(rule *models.Rule) *models.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.RuleID == "" {
		rule.RuleID = "RL" + uuid.NewString()
	}
	m.rules[rule.RuleID] = rule
	return rule
}

func (m *MemoryStore) GetActiveRules() ([]*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rules []*models.Rule
	for _, rule := range m.rules {
		if rule.IsActive {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules, nil
}

func (m *MemoryStore) GetRule(ruleID string) (*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, exists := m.rules[ruleID]
	if !exists {
		return nil, fmt.Errorf("rule not found")
	}
	return rule, nil
}

func (m *MemoryStore) UpdateRule(rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.RuleID]; !exists {
		return fmt.Errorf("rule not found")
	}
	m.rules[rule.RuleID] = rule
	return nil
}

// Rate-limit operations

func limitKey(ruleID, contactID string) string {
	return ruleID + "|" + contactID
}

func (m *MemoryStore) GetRuleLimit(ruleID, contactID string) (*models.ContactRuleLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit, exists := m.limits[limitKey(ruleID, contactID)]
	if !exists {
		return nil, fmt.Errorf("rule limit not found")
	}
	return limit, nil
}

func (m *MemoryStore) CreateRuleLimit(limit *models.ContactRuleLimit) (*models.ContactRuleLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := limitKey(limit.RuleID, limit.ContactID)
	if existing, exists := m.limits[key]; exists {
		return existing, nil
	}
	limit.CreatedAt = time.Now()
	limit.UpdatedAt = time.Now()
	m.limits[key] = limit
	return limit, nil
}

func (m *MemoryStore) UpdateRuleLimit(limit *models.ContactRuleLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := limitKey(limit.RuleID, limit.ContactID)
	if _, exists := m.limits[key]; !exists {
		return fmt.Errorf("rule limit not found")
	}
	limit.UpdatedAt = time.Now()
	m.limits[key] = limit
	return nil
}

func (m *MemoryStore) PurgeExpiredCooldowns(before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for _, limit := range m.limits {
		if limit.CooldownUntil != nil && limit.CooldownUntil.Before(before) {
			limit.CooldownUntil = nil
			purged++
		}
	}
	return purged, nil
}

// Phase operations

func (m *MemoryStore) GetPhase(contactID string) (*models.CustomerPhase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	phase, exists := m.phases[contactID]
	if !exists {
		return nil, fmt.Errorf("phase not found")
	}
	return phase, nil
}

func (m *MemoryStore) CreatePhase(phase *models.CustomerPhase) (*models.CustomerPhase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.phases[phase.ContactID]; exists {
		return existing, nil
	}
	if phase.Phase == "" {
		phase.Phase = models.PhaseLeads
	}
	if phase.EnteredAt.IsZero() {
		phase.EnteredAt = time.Now()
	}
	phase.CreatedAt = time.Now()
	phase.UpdatedAt = time.Now()
	m.phases[phase.ContactID] = phase
	return phase, nil
}

func (m *MemoryStore) UpdatePhase(phase *models.CustomerPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.phases[phase.ContactID]; !exists {
		return fmt.Errorf("phase not found")
	}
	phase.UpdatedAt = time.Now()
	m.phases[phase.ContactID] = phase
	return nil
}

func (m *MemoryStore) CreatePhaseTransition(t *models.PhaseTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.CreatedAt = time.Now()
	m.transitions = append(m.transitions, t)
	return nil
}

// GetPhaseTransitions returns recorded transitions for a contact (test helper)
func (m *MemoryStore) GetPhaseTransitions(contactID string) []*models.PhaseTransition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.PhaseTransition
	for _, t := range m.transitions {
		if t.ContactID == contactID {
			result = append(result, t)
		}
	}
	return result
}

// Workflow operations

// SeedWorkflow inserts a workflow directly, for tests and local bootstrapping
func (m *MemoryStore) SeedWorkflow(w *models.Workflow) *models.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.WorkflowID == "" {
		w.WorkflowID = "WF" + uuid.NewString()
	}
	m.workflows[w.WorkflowID] = w
	return w
}

func (m *MemoryStore) GetWorkflow(workflowID string) (*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, exists := m.workflows[workflowID]
	if !exists {
		return nil, fmt.Errorf("workflow not found")
	}
	return w, nil
}

func (m *MemoryStore) GetActiveWorkflows() ([]*models.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var workflows []*models.Workflow
	for _, w := range m.workflows {
		if w.IsActive {
			workflows = append(workflows, w)
		}
	}
	return workflows, nil
}

// Workflow session operations

func (m *MemoryStore) GetActiveSession(workflowID, contactID string) (*models.WorkflowSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.WorkflowID == workflowID && s.ContactID == contactID && s.Status == models.SessionStatusActive {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session not found")
}

func (m *MemoryStore) GetActiveSessionByContact(contactID string) (*models.WorkflowSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.ContactID == contactID && s.Status == models.SessionStatusActive {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session not found")
}

func (m *MemoryStore) CreateSession(session *models.WorkflowSession) (*models.WorkflowSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.WorkflowID == session.WorkflowID && s.ContactID == session.ContactID && s.Status == models.SessionStatusActive {
			return nil, fmt.Errorf("active session already exists")
		}
	}

	if session.SessionID == "" {
		session.SessionID = "WS" + uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusActive
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = time.Now()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	m.sessions[session.SessionID] = session
	return session, nil
}

func (m *MemoryStore) UpdateSession(session *models.WorkflowSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.SessionID]; !exists {
		return fmt.Errorf("session not found")
	}
	session.UpdatedAt = time.Now()
	m.sessions[session.SessionID] = session
	return nil
}

func (m *MemoryStore) GetStaleSessions(inactiveSince time.Time) ([]*models.WorkflowSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []*models.WorkflowSession
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive && s.LastActivityAt.Before(inactiveSince) {
			stale = append(stale, s)
		}
	}
	return stale, nil
}

// Execution log operations

func (m *MemoryStore) CreateExecutionLog(entry *models.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.LogID == "" {
		entry.LogID = "EX" + uuid.NewString()
	}
	entry.CreatedAt = time.Now()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MemoryStore) GetExecutionLogs(filter LogFilter) ([]*models.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.ExecutionLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		entry := m.logs[i]
		if filter.ContactID != "" && entry.ContactID != filter.ContactID {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(entry.Status, filter.Status) {
			continue
		}
		result = append(result, entry)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}
