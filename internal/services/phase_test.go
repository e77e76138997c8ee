package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

func newPhaseService(t *testing.T, store *storage.MemoryStore) *PhaseService {
	t.Helper()
	svc, err := NewPhaseService(store, DefaultLexicon())
	require.NoError(t, err)
	return svc
}

func TestEnsurePhaseCreatesAtLeads(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)

	phase, err := svc.EnsurePhase("CT00001", "Halo, mau tanya", "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLeads, phase.Phase)
	assert.Equal(t, "whatsapp", phase.Source)

	// Second call returns the same record
	again, err := svc.EnsurePhase("CT00001", "pesan lain", "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, phase.ContactID, again.ContactID)
}

func TestEnsurePhaseSniffsSource(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)

	phase, err := svc.EnsurePhase("CT00002", "Lihat iklan di instagram, mau tanya paket", "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, "instagram", phase.Source)
}

func TestAdvanceCountsInteractions(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)

	_, _, err = svc.Advance(phase, "Halo")
	require.NoError(t, err)
	_, _, err = svc.Advance(phase, "Masih ada seat?")
	require.NoError(t, err)

	stored, err := store.GetPhase("CT00001")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Interactions)
}

func TestAdvanceLeadsToInterestOnPriceQuestion(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)

	newPhase, pattern, err := svc.Advance(phase, "Yang 12 hari berapa?")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseInterest, newPhase)
	assert.NotEmpty(t, pattern)

	transitions := store.GetPhaseTransitions("CT00001")
	require.Len(t, transitions, 1)
	assert.Equal(t, models.PhaseLeads, transitions[0].FromPhase)
	assert.Equal(t, models.PhaseInterest, transitions[0].ToPhase)
}

func TestAdvanceInterestToClosing(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)
	phase.Phase = models.PhaseInterest

	newPhase, _, err := svc.Advance(phase, "Oke saya mau daftar")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseClosing, newPhase)
}

func TestAdvanceNeverSkipsInterest(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)

	// A closing signal while still at LEADS must not jump to CLOSING
	newPhase, _, err := svc.Advance(phase, "langsung transfer saja ya")
	require.NoError(t, err)
	assert.NotEqual(t, models.PhaseClosing, newPhase)
}

func TestAdvanceNeverMovesBackward(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)
	phase.Phase = models.PhaseClosing
	require.NoError(t, store.UpdatePhase(phase))

	newPhase, _, err := svc.Advance(phase, "Halo, apa kabar")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseClosing, newPhase)
}

func TestAttributeExtractionIsAdditive(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)

	_, _, err = svc.Advance(phase, "Rencana berangkat dari Jakarta bulan desember, 4 orang, budget 35 juta")
	require.NoError(t, err)

	attrs := phase.GetAttributes()
	assert.Equal(t, "jakarta", attrs.DepartureCity)
	assert.Equal(t, "desember", attrs.PreferredMonth)
	assert.Equal(t, 4, attrs.PartySize)
	assert.Equal(t, 35.0, attrs.BudgetJuta)

	// A later message must not overwrite what is already known
	_, _, err = svc.Advance(phase, "Eh atau dari Surabaya 2 orang saja, 20 juta")
	require.NoError(t, err)

	attrs = phase.GetAttributes()
	assert.Equal(t, "jakarta", attrs.DepartureCity)
	assert.Equal(t, 4, attrs.PartySize)
	assert.Equal(t, 35.0, attrs.BudgetJuta)
}

func TestAttributeListsDeduplicate(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newPhaseService(t, store)
	phase, err := svc.EnsurePhase("CT00001", "Halo", "whatsapp")
	require.NoError(t, err)

	_, _, err = svc.Advance(phase, "Tertarik paket umroh")
	require.NoError(t, err)
	_, _, err = svc.Advance(phase, "Jadi paket umroh itu gimana")
	require.NoError(t, err)

	attrs := phase.GetAttributes()
	assert.Equal(t, []string{"umroh"}, attrs.Packages)
}

func TestCustomLexiconSwapsPatterns(t *testing.T) {
	store := storage.NewMemoryStore()
	lexicon := &Lexicon{
		InterestPatterns: []string{`how\s+much`},
		ClosingPatterns:  []string{`sign\s+me\s+up`},
	}
	svc, err := NewPhaseService(store, lexicon)
	require.NoError(t, err)

	phase, err := svc.EnsurePhase("CT00001", "Hi", "whatsapp")
	require.NoError(t, err)

	// Indonesian trigger no longer matches
	newPhase, _, err := svc.Advance(phase, "harga berapa?")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLeads, newPhase)

	newPhase, _, err = svc.Advance(phase, "How much is the 12 day package?")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseInterest, newPhase)
}

func TestNewPhaseServiceRejectsBadPattern(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := NewPhaseService(store, &Lexicon{InterestPatterns: []string{`([`}})
	assert.Error(t, err)
}
