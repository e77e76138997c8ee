package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

func newAutomation(t *testing.T, store *storage.MemoryStore, gateway MessageGateway, generator TextGenerator) *AutomationService {
	t.Helper()
	phases, err := NewPhaseService(store, DefaultLexicon())
	require.NoError(t, err)

	messages := NewSystemMessages("id")
	engine := NewWorkflowEngine(store, gateway, generator, messages)
	engine.delay = noDelay

	svc := NewAutomationService(
		store,
		NewRuleMatcher(store),
		NewRateLimiter(store),
		phases,
		engine,
		gateway,
		generator,
		NewStaticTemplateStore(DefaultTemplates()),
		NewKeywordIntentClassifier(),
		NewLexiconEntityExtractor(DefaultLexicon()),
		messages,
	)
	svc.delay = noDelay
	return svc
}

func TestProcessInboundKeywordRule(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111111")

	rule := store.SeedRule(&models.Rule{
		Name:        "Harga",
		Type:        models.RuleTypeKeyword,
		Keywords:    `["harga"]`,
		ResponseRaw: "Harga paket mulai 28 juta, kak!",
		IsActive:    true,
	})

	msg := inbound(store, contact, conv, "berapa harga paketnya?")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))

	require.Len(t, gateway.messages(), 1)
	assert.Contains(t, gateway.lastText(), "28 juta")

	// Execution log records the success with the matched keyword
	logs, err := store.GetExecutionLogs(storage.LogFilter{ContactID: contact.ContactID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExecutionSuccess, logs[0].Status)
	assert.Equal(t, rule.RuleID, logs[0].RuleID)
	assert.Contains(t, logs[0].MatchedSignals, "harga")

	// Counters bumped, message marked processed, interaction counted
	stored, err := store.GetRule(rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TriggerCount)
	assert.Equal(t, 1, stored.SuccessCount)
	assert.Equal(t, 1, contact.Interaction)

	updated, err := store.GetRecentMessages(contact.ContactID, 5)
	require.NoError(t, err)
	for _, m := range updated {
		if m.MessageID == msg.MessageID {
			assert.Equal(t, models.MessageStatusProcessed, m.Status)
		}
	}
}

func TestProcessInboundPriorityOrderAndRateLimitFallthrough(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111112")

	high := store.SeedRule(&models.Rule{
		Name:                  "Promo",
		Type:                  models.RuleTypeKeyword,
		Keywords:              `["promo"]`,
		ResponseRaw:           "Promo spesial bulan ini!",
		Priority:              10,
		MaxTriggersPerContact: 1,
		IsActive:              true,
	})
	low := store.SeedRule(&models.Rule{
		Name:        "Umum",
		Type:        models.RuleTypeKeyword,
		Keywords:    `["promo"]`,
		ResponseRaw: "Tim kami akan infokan promo ya.",
		Priority:    1,
		IsActive:    true,
	})

	// First message: the high-priority rule wins
	msg := inbound(store, contact, conv, "ada promo?")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Contains(t, gateway.lastText(), "spesial")

	// Second message: high is rate-limited, the scan continues to low
	msg = inbound(store, contact, conv, "promo lagi dong")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Contains(t, gateway.lastText(), "akan infokan")

	// The denial is in the audit trail as skipped
	logs, err := store.GetExecutionLogs(storage.LogFilter{ContactID: contact.ContactID, Status: models.ExecutionSkipped})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, high.RuleID, logs[0].RuleID)
	assert.Equal(t, DenyMaxTriggers, logs[0].Reason)
	_ = low
}

func TestProcessInboundDisabledEngine(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111113")
	store.SeedRule(&models.Rule{
		Type:        models.RuleTypeKeyword,
		Keywords:    `["halo"]`,
		ResponseRaw: "Halo juga!",
		IsActive:    true,
	})

	svc.SetEnabled(false)
	msg := inbound(store, contact, conv, "halo")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Empty(t, gateway.messages())

	svc.SetEnabled(true)
	msg = inbound(store, contact, conv, "halo")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Len(t, gateway.messages(), 1)
}

func TestProcessInboundSkipsGroupsOutboundAndBlocked(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111114")
	store.SeedRule(&models.Rule{
		Type:        models.RuleTypeKeyword,
		Keywords:    `["halo"]`,
		ResponseRaw: "Halo juga!",
		IsActive:    true,
	})

	// Group conversation
	conv.IsGroup = true
	msg := inbound(store, contact, conv, "halo semua")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Empty(t, gateway.messages())
	conv.IsGroup = false

	// Outbound echo
	out, err := store.CreateMessage(&models.Message{
		ConversationID: conv.ConversationID,
		ContactID:      contact.ContactID,
		Direction:      models.DirectionOutbound,
		Content:        "halo dari kami",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessInbound(contact, conv, out))
	assert.Empty(t, gateway.messages())

	// Blocked contact
	contact.IsBlocked = true
	msg = inbound(store, contact, conv, "halo")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Empty(t, gateway.messages())
}

func TestProcessInboundWelcomeOnlyOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111115")
	store.SeedRule(&models.Rule{
		Type:        models.RuleTypeWelcome,
		ResponseRaw: "Selamat datang di Azka Wisata!",
		IsActive:    true,
	})

	msg := inbound(store, contact, conv, "assalamualaikum")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Len(t, gateway.messages(), 1)

	// The outbound reply was recorded but does not count as inbound;
	// still, a second inbound message must not re-trigger welcome
	msg = inbound(store, contact, conv, "mau tanya")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))

	welcomes := 0
	for _, sent := range gateway.messages() {
		if sent.Text == "Selamat datang di Azka Wisata!" {
			welcomes++
		}
	}
	assert.Equal(t, 1, welcomes)
}

func TestProcessInboundSequenceResponse(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111116")
	store.SeedRule(&models.Rule{
		Type:        models.RuleTypeKeyword,
		Keywords:    `["paket"]`,
		ResponseRaw: `{"messages": [{"text": "Kami punya 3 paket utama:"}, {"text": "1. Reguler 28jt", "delay_seconds": 1}, {"text": "2. Plus Turki 38jt", "delay_seconds": 1}]}`,
		IsActive:    true,
	})

	msg := inbound(store, contact, conv, "info paket dong")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))

	sent := gateway.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2].Text, "Plus Turki")
}

func TestProcessInboundStartsWorkflowAndContinues(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111117")

	workflow := registrationWorkflow(store)
	store.SeedRule(&models.Rule{
		Type:       models.RuleTypeWorkflow,
		WorkflowID: workflow.WorkflowID,
		Keywords:   `["daftar"]`,
		Priority:   10,
		IsActive:   true,
	})
	// A lower-priority keyword rule that would match the name reply; the
	// active session must bypass it
	store.SeedRule(&models.Rule{
		Type:        models.RuleTypeKeyword,
		Keywords:    `["ahmad"]`,
		ResponseRaw: "Rule ini tidak boleh menang.",
		IsActive:    true,
	})

	msg := inbound(store, contact, conv, "saya mau daftar")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))

	session, err := store.GetActiveSessionByContact(contact.ContactID)
	require.NoError(t, err)
	assert.Equal(t, "ask_name", session.CurrentStepID)

	// Continuation goes straight to the workflow engine
	msg = inbound(store, contact, conv, "Ahmad")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))

	assert.Contains(t, gateway.lastText(), "Terima kasih Ahmad")
	for _, sent := range gateway.messages() {
		assert.NotEqual(t, "Rule ini tidak boleh menang.", sent.Text)
	}
}

func TestProcessInboundDispatchFailureDoesNotFallThrough(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{failAll: true}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111118")

	failing := store.SeedRule(&models.Rule{
		Type:        models.RuleTypeKeyword,
		Keywords:    `["halo"]`,
		ResponseRaw: "Balasan pertama",
		Priority:    10,
		IsActive:    true,
	})
	store.SeedRule(&models.Rule{
		Type:        models.RuleTypeKeyword,
		Keywords:    `["halo"]`,
		ResponseRaw: "Balasan cadangan",
		Priority:    1,
		IsActive:    true,
	})

	msg := inbound(store, contact, conv, "halo")
	err := svc.ProcessInbound(contact, conv, msg)
	require.Error(t, err)

	logs, lerr := store.GetExecutionLogs(storage.LogFilter{ContactID: contact.ContactID})
	require.NoError(t, lerr)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExecutionFailed, logs[0].Status)
	assert.Equal(t, failing.RuleID, logs[0].RuleID)

	stored, serr := store.GetRule(failing.RuleID)
	require.NoError(t, serr)
	assert.Equal(t, 1, stored.FailureCount)
}

func TestProcessInboundLLMRule(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	generator := &fakeGenerator{reply: "InsyaAllah aman, banyak jamaah lansia ikut bersama kami."}
	svc := newAutomation(t, store, gateway, generator)
	contact, conv := seedContact(store, "+628111111119")

	store.SeedRule(&models.Rule{
		Type:         models.RuleTypeLLMAgent,
		SystemPrompt: "Kamu asisten travel umroh yang ramah.",
		IsActive:     true,
	})

	msg := inbound(store, contact, conv, "Apakah aman untuk orang tua saya?")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Contains(t, gateway.lastText(), "jamaah lansia")
}

func TestProcessInboundAdvancesPhase(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111120")

	msg := inbound(store, contact, conv, "Yang 12 hari berapa?")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))

	phase, err := store.GetPhase(contact.ContactID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseInterest, phase.Phase)
}

func TestProcessInboundNoMatchStillMarksProcessed(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &fakeGateway{}
	svc := newAutomation(t, store, gateway, nil)
	contact, conv := seedContact(store, "+628111111121")

	msg := inbound(store, contact, conv, "zzz")
	require.NoError(t, svc.ProcessInbound(contact, conv, msg))
	assert.Empty(t, gateway.messages())

	msgs, err := store.GetRecentMessages(contact.ContactID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageStatusProcessed, msgs[0].Status)
}
