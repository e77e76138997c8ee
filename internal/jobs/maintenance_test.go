package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/services"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

type recordingGateway struct {
	sent []string
}

func (g *recordingGateway) Send(phone, text, mediaURL string) (string, error) {
	g.sent = append(g.sent, text)
	return "rec-1", nil
}

func TestStartIsIdempotentAndStops(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := services.NewWorkflowEngine(store, &recordingGateway{}, nil, services.NewSystemMessages("id"))
	job := NewMaintenanceJob(store, engine, time.Minute)

	job.Start()
	job.Start() // second call is a no-op, not a second pair of loops
	assert.True(t, job.isRunning.Load())

	job.Stop()
	assert.False(t, job.isRunning.Load())
}

func TestExpireStaleSessionsEvictsAndApologizes(t *testing.T) {
	store := storage.NewMemoryStore()
	gateway := &recordingGateway{}
	engine := services.NewWorkflowEngine(store, gateway, nil, services.NewSystemMessages("id"))

	contact, err := store.CreateContact(&models.Contact{Phone: "+628111111130", Name: "Siti"})
	require.NoError(t, err)
	_, err = store.CreateSession(&models.WorkflowSession{
		WorkflowID:     "WF-reg",
		ContactID:      contact.ContactID,
		CurrentStepID:  "ask_name",
		Status:         models.SessionStatusActive,
		LastActivityAt: time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	job := NewMaintenanceJob(store, engine, 30*time.Minute)
	job.expireStaleSessions()

	// Session is terminal and the contact got the apology
	_, err = store.GetActiveSessionByContact(contact.ContactID)
	assert.Error(t, err)
	require.Len(t, gateway.sent, 1)
	assert.Contains(t, gateway.sent[0], "berakhir")
}
