package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// AutomationService orchestrates the full decision pipeline for one inbound
// message: phase tracking, rule matching, rate limiting, and dispatch. All
// state mutation for a contact happens under that contact's lock, so
// concurrent webhooks for different contacts proceed in parallel while two
// messages from the same contact are serialized.
type AutomationService struct {
	store      storage.Store
	matcher    *RuleMatcher
	limiter    *RateLimiter
	phases     *PhaseService
	workflows  *WorkflowEngine
	gateway    MessageGateway
	generator  TextGenerator
	templates  TemplateStore
	classifier IntentClassifier
	extractor  EntityExtractor
	messages   *SystemMessages
	locks      *ContactLocks

	enabled atomic.Bool
	delay   func(time.Duration)
	now     func() time.Time
}

// NewAutomationService wires the orchestrator. generator and templates may
// be nil; llm_agent and template rules then fail at dispatch instead of
// taking the whole pipeline down.
func NewAutomationService(
	store storage.Store,
	matcher *RuleMatcher,
	limiter *RateLimiter,
	phases *PhaseService,
	workflows *WorkflowEngine,
	gateway MessageGateway,
	generator TextGenerator,
	templates TemplateStore,
	classifier IntentClassifier,
	extractor EntityExtractor,
	messages *SystemMessages,
) *AutomationService {
	s := &AutomationService{
		store:      store,
		matcher:    matcher,
		limiter:    limiter,
		phases:     phases,
		workflows:  workflows,
		gateway:    gateway,
		generator:  generator,
		templates:  templates,
		classifier: classifier,
		extractor:  extractor,
		messages:   messages,
		locks:      NewContactLocks(),
		delay:      time.Sleep,
		now:        time.Now,
	}
	s.enabled.Store(true)
	return s
}

// SetEnabled toggles the whole engine. Disabled means inbound messages are
// stored but never answered.
func (s *AutomationService) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
	log.Printf("Automation enabled=%v", enabled)
}

// IsEnabled reports the engine toggle
func (s *AutomationService) IsEnabled() bool {
	return s.enabled.Load()
}

// ProcessInbound runs the decision pipeline for one stored inbound message.
// Group messages, outbound echoes, and blocked contacts are ignored.
func (s *AutomationService) ProcessInbound(contact *models.Contact, conv *models.Conversation, msg *models.Message) error {
	unlock := s.locks.Lock(contact.ContactID)
	defer unlock()
	return s.process(contact, conv, msg)
}

// QueueInbound reserves the contact's next processing slot before returning
// and runs the pipeline on its own goroutine. The synchronous reservation
// keeps per-contact processing in arrival order even though webhooks are
// handled concurrently.
func (s *AutomationService) QueueInbound(contact *models.Contact, conv *models.Conversation, msg *models.Message) {
	wait, release := s.locks.Acquire(contact.ContactID)
	go func() {
		wait()
		defer release()
		if err := s.process(contact, conv, msg); err != nil {
			log.Printf("❌ Automation failed for contact %s: %v", contact.ContactID, err)
		}
	}()
}

func (s *AutomationService) process(contact *models.Contact, conv *models.Conversation, msg *models.Message) error {
	if !s.enabled.Load() {
		return nil
	}
	if conv.IsGroup || !msg.IsInbound() || contact.IsBlocked {
		return nil
	}

	started := s.now()

	// Phase tracking is best-effort: a storage failure here degrades the
	// pipeline, it does not abort it
	phase, err := s.phases.EnsurePhase(contact.ContactID, msg.Content, "whatsapp")
	if err != nil {
		log.Printf("⚠️ Phase lookup failed for %s: %v", contact.ContactID, err)
	} else {
		if _, _, err := s.phases.Advance(phase, msg.Content); err != nil {
			log.Printf("⚠️ Phase advance failed for %s: %v", contact.ContactID, err)
		}
	}

	intent := &Intent{Label: IntentNeutral}
	if s.classifier != nil {
		if classified, err := s.classifier.Classify(msg.Content); err == nil {
			intent = classified
		}
	}
	if s.extractor != nil && phase != nil {
		if entities, err := s.extractor.Extract(msg.Content, intent.Label); err == nil && len(entities) > 0 {
			s.mergeEntities(phase, entities)
		}
	}

	contact.Interaction++
	if err := s.store.UpdateContact(contact); err != nil {
		log.Printf("⚠️ Could not bump interaction counter for %s: %v", contact.ContactID, err)
	}

	// An active workflow session owns the conversation: the reply goes
	// straight to the engine, bypassing the rule scan
	if session, err := s.store.GetActiveSessionByContact(contact.ContactID); err == nil {
		return s.continueWorkflow(session, contact, msg, started)
	}

	rules, err := s.store.GetActiveRules()
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	for _, rule := range rules {
		if err := rule.NormalizeResponse(); err != nil {
			log.Printf("❌ Skipping rule %s: %v", rule.RuleID, err)
			s.logExecution(contact, msg, rule, models.ExecutionSkipped, "invalid_response_config", nil, "", started)
			continue
		}

		matched, signals, err := s.matcher.Match(rule, msg, contact, phase, conv)
		if err != nil {
			// Predicate errors are non-matches; keep scanning
			log.Printf("⚠️ Predicate error on rule %s: %v", rule.RuleID, err)
			continue
		}
		if !matched {
			continue
		}

		decision, err := s.limiter.Check(rule, contact.ContactID)
		if err != nil {
			log.Printf("❌ Rate-limit check failed for rule %s: %v", rule.RuleID, err)
			s.logExecution(contact, msg, rule, models.ExecutionFailed, "rate_limit_error", signals, "", started)
			continue
		}
		if !decision.Allowed {
			// Rate-limited rules do not consume the message; lower-priority
			// rules still get their shot
			s.logExecution(contact, msg, rule, models.ExecutionSkipped, decision.Reason, signals, "", started)
			continue
		}

		if err := s.limiter.Record(rule, contact.ContactID); err != nil {
			log.Printf("⚠️ Could not record trigger for rule %s: %v", rule.RuleID, err)
		}

		preview, dispatchErr := s.dispatch(rule, contact, conv, msg, intent)
		s.bumpRuleCounters(rule, dispatchErr == nil)

		if dispatchErr != nil {
			// One response per message: a failed dispatch does not fall
			// through to other rules
			log.Printf("❌ Rule %s failed for contact %s: %v", rule.RuleID, contact.ContactID, dispatchErr)
			s.logExecution(contact, msg, rule, models.ExecutionFailed, dispatchErr.Error(), signals, "", started)
			s.markProcessed(msg)
			return dispatchErr
		}

		s.logExecution(contact, msg, rule, models.ExecutionSuccess, "", signals, preview, started)
		s.markProcessed(msg)
		return nil
	}

	s.markProcessed(msg)
	return nil
}

func (s *AutomationService) continueWorkflow(session *models.WorkflowSession, contact *models.Contact, msg *models.Message, started time.Time) error {
	err := s.workflows.ProcessMessage(session, contact, msg)

	entry := &models.ExecutionLog{
		ContactID:  contact.ContactID,
		MessageID:  msg.MessageID,
		RuleType:   models.RuleTypeWorkflow,
		Status:     models.ExecutionSuccess,
		Reason:     "session:" + session.SessionID,
		DurationMs: models.SinceMs(started),
	}
	if err != nil {
		entry.Status = models.ExecutionFailed
		entry.Reason = err.Error()
	}
	if logErr := s.store.CreateExecutionLog(entry); logErr != nil {
		log.Printf("⚠️ Could not write execution log: %v", logErr)
	}

	s.markProcessed(msg)
	return err
}

// dispatch executes the matched rule and returns a response preview for
// the audit log.
func (s *AutomationService) dispatch(rule *models.Rule, contact *models.Contact, conv *models.Conversation, msg *models.Message, intent *Intent) (string, error) {
	switch rule.Type {
	case models.RuleTypeWelcome, models.RuleTypeAway, models.RuleTypeKeyword:
		return s.executeResponse(rule, contact, conv)
	case models.RuleTypeWorkflow:
		_, err := s.workflows.StartWorkflow(rule.WorkflowID, contact, msg)
		return "", err
	case models.RuleTypeLLMAgent:
		return s.executeLLM(rule, contact, conv, msg)
	case models.RuleTypeTemplate:
		return s.executeTemplate(rule, contact, conv, msg, intent)
	default:
		return "", fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// executeResponse sends a normalized static response. The rule-level delay
// runs first; sequence messages honor their own per-message delays.
func (s *AutomationService) executeResponse(rule *models.Rule, contact *models.Contact, conv *models.Conversation) (string, error) {
	resp := rule.Response
	if resp == nil {
		return "", fmt.Errorf("rule %s has no normalized response", rule.RuleID)
	}

	if rule.ResponseDelaySeconds > 0 {
		s.delay(time.Duration(rule.ResponseDelaySeconds) * time.Second)
	}

	switch resp.Kind {
	case models.ResponseKindText:
		return resp.Preview(), s.sendAndRecord(contact, conv, resp.Text, "")

	case models.ResponseKindMedia:
		return resp.Preview(), s.sendAndRecord(contact, conv, resp.Text, resp.MediaURL)

	case models.ResponseKindSequence:
		for i, m := range resp.Messages {
			if i > 0 && m.DelaySeconds > 0 {
				s.delay(time.Duration(m.DelaySeconds) * time.Second)
			}
			if err := s.sendAndRecord(contact, conv, m.Text, m.MediaURL); err != nil {
				return resp.Preview(), fmt.Errorf("sequence message %d: %w", i+1, err)
			}
		}
		return resp.Preview(), nil

	case models.ResponseKindButtons:
		// Twilio freeform WhatsApp has no native buttons; render as a
		// numbered list the contact can reply to
		var b strings.Builder
		b.WriteString(resp.Text)
		for i, btn := range resp.Buttons {
			b.WriteString(fmt.Sprintf("\n%d. %s", i+1, btn))
		}
		return resp.Preview(), s.sendAndRecord(contact, conv, b.String(), "")

	default:
		return "", fmt.Errorf("unknown response kind %q", resp.Kind)
	}
}

func (s *AutomationService) executeLLM(rule *models.Rule, contact *models.Contact, conv *models.Conversation, msg *models.Message) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("no text generator configured")
	}

	var contextMsgs []string
	if recent, err := s.store.GetRecentMessages(contact.ContactID, 6); err == nil {
		for i := len(recent) - 1; i >= 0; i-- {
			prefix := "customer"
			if !recent[i].IsInbound() {
				prefix = "agent"
			}
			contextMsgs = append(contextMsgs, prefix+": "+recent[i].Content)
		}
	}

	gen, err := s.generator.Generate(context.Background(), msg.Content, contextMsgs, rule.SystemPrompt, GenerateOptions{})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	text := SanitizeGenerated(gen.Text)
	if text == "" {
		return "", fmt.Errorf("generator returned no usable text")
	}

	if rule.ResponseDelaySeconds > 0 {
		s.delay(time.Duration(rule.ResponseDelaySeconds) * time.Second)
	}
	return models.TruncatePreview(text), s.sendAndRecord(contact, conv, text, "")
}

func (s *AutomationService) executeTemplate(rule *models.Rule, contact *models.Contact, conv *models.Conversation, msg *models.Message, intent *Intent) (string, error) {
	if s.templates == nil {
		return "", fmt.Errorf("no template store configured")
	}

	tmpl, err := s.templates.FindBestMatch(msg.Content, "", intent.Label)
	if err != nil {
		return "", fmt.Errorf("template lookup failed: %w", err)
	}

	vars := BuiltinVariables(contact.ContactID, "", s.now())
	if contact.Name != "" {
		vars["contact_name"] = contact.Name
	}
	text := tmpl.Render(vars)

	if rule.ResponseDelaySeconds > 0 {
		s.delay(time.Duration(rule.ResponseDelaySeconds) * time.Second)
	}
	return models.TruncatePreview(text), s.sendAndRecord(contact, conv, text, "")
}

// sendAndRecord delivers a message through the gateway and stores the
// outbound record so later context windows include our own replies.
func (s *AutomationService) sendAndRecord(contact *models.Contact, conv *models.Conversation, text, mediaURL string) error {
	if text == "" && mediaURL == "" {
		return nil
	}
	sid, err := s.gateway.Send(contact.Phone, text, mediaURL)
	status := models.MessageStatusSent
	if err != nil {
		status = models.MessageStatusFailed
	}

	outbound := &models.Message{
		ConversationID: conv.ConversationID,
		ContactID:      contact.ContactID,
		Direction:      models.DirectionOutbound,
		Type:           "text",
		Content:        text,
		MediaURL:       mediaURL,
		Status:         status,
	}
	if sid != "" {
		outbound.MessageID = sid
	}
	if _, recErr := s.store.CreateMessage(outbound); recErr != nil {
		log.Printf("⚠️ Could not record outbound message for %s: %v", contact.ContactID, recErr)
	}

	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// mergeEntities folds extracted entities into phase attributes, filling
// only fields that are still empty.
func (s *AutomationService) mergeEntities(phase *models.CustomerPhase, entities map[string]string) {
	attrs := phase.GetAttributes()
	changed := false

	if city, ok := entities["city"]; ok && attrs.DepartureCity == "" {
		attrs.DepartureCity = city
		changed = true
	}
	if month, ok := entities["month"]; ok && attrs.PreferredMonth == "" {
		attrs.PreferredMonth = month
		changed = true
	}
	if pkg, ok := entities["package"]; ok && !containsString(attrs.Packages, pkg) {
		attrs.Packages = append(attrs.Packages, pkg)
		changed = true
	}

	if changed {
		phase.SetAttributes(attrs)
		if err := s.store.UpdatePhase(phase); err != nil {
			log.Printf("⚠️ Could not persist extracted entities for %s: %v", phase.ContactID, err)
		}
	}
}

func (s *AutomationService) bumpRuleCounters(rule *models.Rule, success bool) {
	rule.TriggerCount++
	if success {
		rule.SuccessCount++
	} else {
		rule.FailureCount++
	}
	if err := s.store.UpdateRule(rule); err != nil {
		log.Printf("⚠️ Could not update counters for rule %s: %v", rule.RuleID, err)
	}
}

func (s *AutomationService) logExecution(contact *models.Contact, msg *models.Message, rule *models.Rule, status, reason string, signals []string, preview string, started time.Time) {
	entry := &models.ExecutionLog{
		ContactID:       contact.ContactID,
		MessageID:       msg.MessageID,
		RuleID:          rule.RuleID,
		RuleType:        rule.Type,
		Status:          status,
		Reason:          reason,
		ResponsePreview: preview,
		DurationMs:      models.SinceMs(started),
	}
	entry.SetMatchedSignals(signals)
	if err := s.store.CreateExecutionLog(entry); err != nil {
		log.Printf("⚠️ Could not write execution log: %v", err)
	}
}

// markProcessed flips the inbound message's status once the pipeline is
// done with it.
func (s *AutomationService) markProcessed(msg *models.Message) {
	if err := s.store.UpdateMessageStatus(msg.MessageID, models.MessageStatusProcessed); err != nil {
		log.Printf("⚠️ Could not mark message %s processed: %v", msg.MessageID, err)
	}
}
