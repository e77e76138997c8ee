package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// maxStepsPerMessage bounds how many steps one inbound message may drive,
// so a miswired conditional loop cannot spin forever.
const maxStepsPerMessage = 25

// defaultDateLayouts are tried in order when an input step declares kind
// "date" without its own layouts. Day-first, as contacts write dates here.
var defaultDateLayouts = []string{"02-01-2006", "02/01/2006", "2-1-2006", "2/1/2006"}

// ActionExecutor runs action steps. The store-backed default handles phase
// and tag updates; notify and create_task are log-only until an operator
// channel exists.
type ActionExecutor interface {
	Execute(action, value string, session *models.WorkflowSession, contact *models.Contact) error
}

// WorkflowEngine drives multi-step dialog sessions. All session mutations
// happen under the orchestrator's per-contact lock.
type WorkflowEngine struct {
	store     storage.Store
	gateway   MessageGateway
	generator TextGenerator
	messages  *SystemMessages
	actions   ActionExecutor

	delay func(time.Duration)
	now   func() time.Time
}

// NewWorkflowEngine wires the engine. generator may be nil when no
// text-generation backend is configured; ai_agent steps then error out
// through the normal step-failure path.
func NewWorkflowEngine(store storage.Store, gateway MessageGateway, generator TextGenerator, messages *SystemMessages) *WorkflowEngine {
	engine := &WorkflowEngine{
		store:     store,
		gateway:   gateway,
		generator: generator,
		messages:  messages,
		delay:     time.Sleep,
		now:       time.Now,
	}
	engine.actions = &StoreActionExecutor{store: store}
	return engine
}

// StartWorkflow creates a session at the workflow's root step and executes
// from there until the flow parks on a reply-awaiting step or completes.
func (e *WorkflowEngine) StartWorkflow(workflowID string, contact *models.Contact, msg *models.Message) (*models.WorkflowSession, error) {
	workflow, err := e.store.GetWorkflow(workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if err := workflow.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to start workflow: %w", err)
	}

	session := &models.WorkflowSession{
		WorkflowID:     workflow.WorkflowID,
		ContactID:      contact.ContactID,
		CurrentStepID:  workflow.RootStepID,
		Status:         models.SessionStatusActive,
		LastActivityAt: e.now(),
	}
	session, err = e.store.CreateSession(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("✅ Started workflow %s for contact %s (session %s)", workflow.WorkflowID, contact.ContactID, session.SessionID)
	if err := e.executeFrom(workflow, session, contact, workflow.RootStepID); err != nil {
		return session, err
	}
	return session, nil
}

// ProcessMessage routes an inbound reply into an active session. The
// current step decides how the reply is consumed: keyword and input steps
// are parked awaiting it; any other step type means the session was left
// mid-execution and is resumed without consuming the reply.
func (e *WorkflowEngine) ProcessMessage(session *models.WorkflowSession, contact *models.Contact, msg *models.Message) error {
	workflow, err := e.store.GetWorkflow(session.WorkflowID)
	if err != nil {
		e.handleStepError(nil, session, contact, session.CurrentStepID, fmt.Errorf("failed to load workflow: %w", err))
		return err
	}

	step, err := workflow.FindStep(session.CurrentStepID)
	if err != nil {
		e.handleStepError(workflow, session, contact, session.CurrentStepID, err)
		return err
	}

	reply := strings.TrimSpace(msg.Content)

	switch step.Type {
	case models.StepTypeKeyword:
		return e.consumeKeywordReply(workflow, session, contact, step, reply)
	case models.StepTypeInput:
		return e.consumeInputReply(workflow, session, contact, step, reply)
	default:
		// Not parked on a reply step; resume where we left off
		return e.executeFrom(workflow, session, contact, session.CurrentStepID)
	}
}

func (e *WorkflowEngine) consumeKeywordReply(workflow *models.Workflow, session *models.WorkflowSession, contact *models.Contact, step *models.WorkflowStep, reply string) error {
	if len(step.Keywords) > 0 && !matchesAnyKeyword(reply, step.Keywords) {
		// Unrecognized reply: re-prompt and stay parked on this step
		session.LastActivityAt = e.now()
		if err := e.store.UpdateSession(session); err != nil {
			log.Printf("❌ Failed to touch session %s: %v", session.SessionID, err)
		}
		e.send(contact, e.messages.InvalidInput("pilih salah satu: "+strings.Join(step.Keywords, " / ")), "")
		return nil
	}

	if step.SaveAs != "" {
		e.saveVariable(session, step.SaveAs, reply)
	}
	session.AppendHistory(models.StepRecord{
		StepID:     step.StepID,
		Type:       step.Type,
		ExecutedAt: e.now(),
		Response:   reply,
	})
	return e.advance(workflow, session, contact, step, reply)
}

func (e *WorkflowEngine) consumeInputReply(workflow *models.Workflow, session *models.WorkflowSession, contact *models.Contact, step *models.WorkflowStep, reply string) error {
	value, hint := validateInput(step.Input, reply)
	if hint != "" {
		// Invalid reply: re-prompt and stay parked on this step
		session.LastActivityAt = e.now()
		if err := e.store.UpdateSession(session); err != nil {
			log.Printf("❌ Failed to touch session %s: %v", session.SessionID, err)
		}
		e.send(contact, e.messages.InvalidInput(hint), "")
		return nil
	}

	if step.SaveAs != "" {
		e.saveVariable(session, step.SaveAs, value)
	}
	session.AppendHistory(models.StepRecord{
		StepID:     step.StepID,
		Type:       step.Type,
		ExecutedAt: e.now(),
		Response:   reply,
	})
	return e.advance(workflow, session, contact, step, reply)
}

// advance resolves the next step after a reply was consumed and keeps
// executing from there.
func (e *WorkflowEngine) advance(workflow *models.Workflow, session *models.WorkflowSession, contact *models.Contact, step *models.WorkflowStep, response string) error {
	next := e.resolveNext(step, response, session.GetVariables())
	if next == "" {
		return e.completeSession(session)
	}
	session.CurrentStepID = next
	session.LastActivityAt = e.now()
	if err := e.store.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return e.executeFrom(workflow, session, contact, next)
}

// executeFrom runs steps starting at stepID until the flow parks on a
// keyword/input step, completes, or fails.
func (e *WorkflowEngine) executeFrom(workflow *models.Workflow, session *models.WorkflowSession, contact *models.Contact, stepID string) error {
	current := stepID
	for i := 0; i < maxStepsPerMessage; i++ {
		step, err := workflow.FindStep(current)
		if err != nil {
			e.handleStepError(workflow, session, contact, current, err)
			return err
		}

		session.CurrentStepID = current
		session.LastActivityAt = e.now()
		if err := e.store.UpdateSession(session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		if step.DelaySeconds > 0 {
			e.delay(time.Duration(step.DelaySeconds) * time.Second)
		}

		parked, next, err := e.executeStep(workflow, session, contact, step)
		if err != nil {
			e.handleStepError(workflow, session, contact, current, err)
			return err
		}
		if parked {
			return nil
		}
		if next == "" {
			return e.completeSession(session)
		}
		current = next
	}

	err := fmt.Errorf("step limit reached at %q, likely a condition loop", current)
	e.handleStepError(workflow, session, contact, current, err)
	return err
}

// executeStep runs one step. parked=true means the step sent its prompt
// and now awaits the contact's reply; otherwise next names the follow-up
// step (empty = flow complete).
func (e *WorkflowEngine) executeStep(workflow *models.Workflow, session *models.WorkflowSession, contact *models.Contact, step *models.WorkflowStep) (parked bool, next string, err error) {
	vars := e.renderVars(session, contact)

	switch step.Type {
	case models.StepTypeTemplate:
		if err := e.send(contact, RenderTemplate(step.Prompt, vars), step.MediaURL); err != nil {
			return false, "", err
		}
		session.AppendHistory(models.StepRecord{StepID: step.StepID, Type: step.Type, ExecutedAt: e.now()})
		return false, e.resolveNext(step, "", session.GetVariables()), nil

	case models.StepTypeKeyword, models.StepTypeInput:
		if step.Prompt != "" {
			if err := e.send(contact, RenderTemplate(step.Prompt, vars), step.MediaURL); err != nil {
				return false, "", err
			}
		}
		if err := e.store.UpdateSession(session); err != nil {
			return false, "", fmt.Errorf("failed to park session: %w", err)
		}
		return true, "", nil

	case models.StepTypeAIAgent:
		if e.generator == nil {
			return false, "", fmt.Errorf("no text generator configured for ai_agent step %q", step.StepID)
		}
		text, err := e.runAIStep(session, contact, step, vars)
		if err != nil {
			return false, "", err
		}
		session.AppendHistory(models.StepRecord{StepID: step.StepID, Type: step.Type, ExecutedAt: e.now()})
		return false, e.resolveNext(step, text, session.GetVariables()), nil

	case models.StepTypeConditional:
		session.AppendHistory(models.StepRecord{StepID: step.StepID, Type: step.Type, ExecutedAt: e.now()})
		return false, e.resolveNext(step, "", session.GetVariables()), nil

	case models.StepTypeAction:
		if err := e.actions.Execute(step.Action, RenderTemplate(step.ActionValue, vars), session, contact); err != nil {
			return false, "", fmt.Errorf("action %q failed: %w", step.Action, err)
		}
		session.AppendHistory(models.StepRecord{StepID: step.StepID, Type: step.Type, ExecutedAt: e.now()})
		return false, e.resolveNext(step, "", session.GetVariables()), nil

	default:
		return false, "", fmt.Errorf("unknown step type %q", step.Type)
	}
}

// runAIStep builds a short conversation context, calls the generator, and
// sends the sanitized output. The output is also captured under SaveAs
// when configured.
func (e *WorkflowEngine) runAIStep(session *models.WorkflowSession, contact *models.Contact, step *models.WorkflowStep, vars map[string]string) (string, error) {
	var contextMsgs []string
	recent, err := e.store.GetRecentMessages(contact.ContactID, 6)
	if err != nil {
		log.Printf("⚠️ Could not load conversation context for %s: %v", contact.ContactID, err)
	} else {
		for i := len(recent) - 1; i >= 0; i-- {
			prefix := "customer"
			if !recent[i].IsInbound() {
				prefix = "agent"
			}
			contextMsgs = append(contextMsgs, prefix+": "+recent[i].Content)
		}
	}

	prompt := RenderTemplate(step.Prompt, vars)
	gen, err := e.generator.Generate(context.Background(), prompt, contextMsgs, step.SystemPrompt, GenerateOptions{})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	text := SanitizeGenerated(gen.Text)
	if text == "" {
		return "", fmt.Errorf("generator returned no usable text for step %q", step.StepID)
	}

	if err := e.send(contact, text, step.MediaURL); err != nil {
		return "", err
	}
	if step.SaveAs != "" {
		e.saveVariable(session, step.SaveAs, text)
	}
	return text, nil
}

// resolveNext walks the step's conditions in declared order; the first
// match wins, else DefaultNext. Empty result means the flow is complete.
func (e *WorkflowEngine) resolveNext(step *models.WorkflowStep, response string, vars map[string]string) string {
	for _, cond := range step.Conditions {
		if evaluateCondition(cond, response, vars) {
			return cond.NextStep
		}
	}
	return step.DefaultNext
}

func evaluateCondition(cond models.StepCondition, response string, vars map[string]string) bool {
	switch cond.Kind {
	case models.ConditionKeywordMatch:
		return cond.Keyword != "" && strings.Contains(strings.ToLower(response), strings.ToLower(cond.Keyword))
	case models.ConditionVariableEquals:
		return strings.EqualFold(vars[cond.Variable], cond.Value)
	case models.ConditionVariableContains:
		return cond.Value != "" && strings.Contains(strings.ToLower(vars[cond.Variable]), strings.ToLower(cond.Value))
	case models.ConditionResponseLength:
		return compareLength(len([]rune(response)), cond.Comparator, cond.Length)
	default:
		return false
	}
}

// matchesAnyKeyword reports whether the reply contains any of the
// configured keywords, case-insensitively.
func matchesAnyKeyword(reply string, keywords []string) bool {
	lower := strings.ToLower(reply)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func compareLength(n int, comparator string, target int) bool {
	switch comparator {
	case models.CompareEquals:
		return n == target
	case models.CompareGreater:
		return n > target
	case models.CompareLess:
		return n < target
	case models.CompareGreaterOrEqual:
		return n >= target
	case models.CompareLessOrEqual:
		return n <= target
	default:
		return false
	}
}

// validateInput normalizes a reply against an input spec. A non-empty hint
// means the reply was rejected; the hint is surfaced to the contact.
func validateInput(spec *models.InputSpec, reply string) (value, hint string) {
	if spec == nil {
		return reply, ""
	}

	switch spec.Kind {
	case models.InputKindNumber:
		normalized := strings.ReplaceAll(reply, ",", ".")
		n, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			return "", "masukkan angka"
		}
		if spec.Min != nil && n < *spec.Min {
			return "", fmt.Sprintf("minimal %s", strconv.FormatFloat(*spec.Min, 'f', -1, 64))
		}
		if spec.Max != nil && n > *spec.Max {
			return "", fmt.Sprintf("maksimal %s", strconv.FormatFloat(*spec.Max, 'f', -1, 64))
		}
		return strconv.FormatFloat(n, 'f', -1, 64), ""

	case models.InputKindChoice:
		for _, choice := range spec.Choices {
			if strings.EqualFold(strings.TrimSpace(reply), choice) {
				return choice, ""
			}
		}
		return "", "pilih salah satu: " + strings.Join(spec.Choices, " / ")

	case models.InputKindDate:
		layouts := spec.Layouts
		if len(layouts) == 0 {
			layouts = defaultDateLayouts
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, strings.TrimSpace(reply)); err == nil {
				return t.Format("02-01-2006"), ""
			}
		}
		return "", "format tanggal: DD-MM-YYYY"

	default: // text
		if spec.MinLength > 0 && len([]rune(reply)) < spec.MinLength {
			return "", fmt.Sprintf("minimal %d karakter", spec.MinLength)
		}
		if spec.MaxLength > 0 && len([]rune(reply)) > spec.MaxLength {
			return "", fmt.Sprintf("maksimal %d karakter", spec.MaxLength)
		}
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil || !re.MatchString(reply) {
				return "", "format tidak sesuai"
			}
		}
		return reply, ""
	}
}

func (e *WorkflowEngine) saveVariable(session *models.WorkflowSession, name, value string) {
	vars := session.GetVariables()
	vars[name] = value
	session.SetVariables(vars)
}

// renderVars merges built-in variables with captured session variables;
// session values win on collision.
func (e *WorkflowEngine) renderVars(session *models.WorkflowSession, contact *models.Contact) map[string]string {
	builtins := BuiltinVariables(contact.ContactID, session.SessionID, e.now())
	if contact.Name != "" {
		builtins["contact_name"] = contact.Name
	}
	return MergeVariables(builtins, session.GetVariables())
}

func (e *WorkflowEngine) send(contact *models.Contact, text, mediaURL string) error {
	if text == "" && mediaURL == "" {
		return nil
	}
	if _, err := e.gateway.Send(contact.Phone, text, mediaURL); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (e *WorkflowEngine) completeSession(session *models.WorkflowSession) error {
	session.Status = models.SessionStatusCompleted
	session.LastActivityAt = e.now()
	if err := e.store.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	log.Printf("✅ Workflow session %s completed", session.SessionID)
	return nil
}

// handleStepError marks the session failed, records the error, and sends
// the workflow's fallback message so the contact is not left hanging.
func (e *WorkflowEngine) handleStepError(workflow *models.Workflow, session *models.WorkflowSession, contact *models.Contact, stepID string, stepErr error) {
	log.Printf("❌ Workflow session %s failed at step %q: %v", session.SessionID, stepID, stepErr)

	session.Status = models.SessionStatusError
	session.AppendError(fmt.Sprintf("step %s: %v", stepID, stepErr))
	session.LastActivityAt = e.now()
	if err := e.store.UpdateSession(session); err != nil {
		log.Printf("❌ Failed to persist errored session %s: %v", session.SessionID, err)
	}

	fallback := e.messages.FallbackError()
	if workflow != nil && workflow.FallbackMessage != "" {
		fallback = workflow.FallbackMessage
	}
	if err := e.send(contact, fallback, ""); err != nil {
		log.Printf("❌ Failed to send fallback to %s: %v", contact.ContactID, err)
	}
}

// ExpireSession terminates a stale session and apologizes to the contact.
// Called by the maintenance job for sessions past the inactivity window.
func (e *WorkflowEngine) ExpireSession(session *models.WorkflowSession, contact *models.Contact) error {
	session.Status = models.SessionStatusError
	session.AppendError("session expired after inactivity")
	session.LastActivityAt = e.now()
	if err := e.store.UpdateSession(session); err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	if err := e.send(contact, e.messages.SessionExpired(), ""); err != nil {
		log.Printf("⚠️ Could not notify %s about expired session: %v", contact.ContactID, err)
	}
	return nil
}

// StoreActionExecutor is the default action backend. Phase updates here
// are operator-authored jumps, so they bypass the keyword funnel but still
// leave an audit transition.
type StoreActionExecutor struct {
	store storage.Store
}

func (a *StoreActionExecutor) Execute(action, value string, session *models.WorkflowSession, contact *models.Contact) error {
	switch action {
	case models.ActionUpdatePhase:
		return a.updatePhase(value, session, contact)
	case models.ActionAddTag:
		return a.addTag(value, contact)
	case models.ActionNotify, models.ActionCreateTask:
		log.Printf("📋 Workflow action %s for contact %s: %s", action, contact.ContactID, value)
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func (a *StoreActionExecutor) updatePhase(target string, session *models.WorkflowSession, contact *models.Contact) error {
	if models.PhaseRank(target) == 0 {
		return fmt.Errorf("unknown phase %q", target)
	}
	phase, err := a.store.GetPhase(contact.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load phase: %w", err)
	}
	if phase.Phase == target {
		return nil
	}
	from := phase.Phase
	phase.Phase = target
	if err := a.store.UpdatePhase(phase); err != nil {
		return fmt.Errorf("failed to update phase: %w", err)
	}
	transition := &models.PhaseTransition{
		ContactID: contact.ContactID,
		FromPhase: from,
		ToPhase:   target,
		Reason:    "workflow:" + session.WorkflowID,
	}
	if err := a.store.CreatePhaseTransition(transition); err != nil {
		log.Printf("⚠️ Could not record phase transition for %s: %v", contact.ContactID, err)
	}
	return nil
}

func (a *StoreActionExecutor) addTag(tag string, contact *models.Contact) error {
	if tag == "" {
		return fmt.Errorf("empty tag")
	}
	phase, err := a.store.GetPhase(contact.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load phase: %w", err)
	}
	attrs := phase.GetAttributes()
	if containsString(attrs.Tags, tag) {
		return nil
	}
	attrs.Tags = append(attrs.Tags, tag)
	phase.SetAttributes(attrs)
	return a.store.UpdatePhase(phase)
}
