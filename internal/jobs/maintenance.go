package jobs

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/services"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// MaintenanceJob runs the periodic housekeeping loops: expiring stale
// workflow sessions and purging spent rate-limit cooldowns.
type MaintenanceJob struct {
	store     storage.Store
	workflows *services.WorkflowEngine

	sessionTimeout time.Duration
	checkInterval  time.Duration
	isRunning      atomic.Bool
}

// NewMaintenanceJob creates the housekeeping scheduler. Sessions idle
// longer than sessionTimeout are expired with an apology to the contact.
func NewMaintenanceJob(store storage.Store, workflows *services.WorkflowEngine, sessionTimeout time.Duration) *MaintenanceJob {
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Minute
	}
	return &MaintenanceJob{
		store:          store,
		workflows:      workflows,
		sessionTimeout: sessionTimeout,
		checkInterval:  5 * time.Minute,
	}
}

// Start begins all maintenance loops
func (m *MaintenanceJob) Start() {
	if !m.isRunning.CompareAndSwap(false, true) {
		log.Println("Maintenance jobs already running")
		return
	}

	log.Println("Starting maintenance jobs...")

	go m.scheduleSessionExpiry()
	go m.scheduleCooldownPurge()

	log.Println("All maintenance jobs started successfully")
}

// Stop halts all maintenance loops after their current sleep
func (m *MaintenanceJob) Stop() {
	m.isRunning.Store(false)
	log.Println("Stopping maintenance jobs...")
}

// scheduleSessionExpiry evicts workflow sessions idle past the timeout
func (m *MaintenanceJob) scheduleSessionExpiry() {
	for m.isRunning.Load() {
		time.Sleep(m.checkInterval)
		if !m.isRunning.Load() {
			break
		}
		m.expireStaleSessions()
	}
}

func (m *MaintenanceJob) expireStaleSessions() {
	cutoff := time.Now().Add(-m.sessionTimeout)
	sessions, err := m.store.GetStaleSessions(cutoff)
	if err != nil {
		log.Printf("Error loading stale sessions: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}

	expired := 0
	for _, session := range sessions {
		contact, err := m.store.GetContactByID(session.ContactID)
		if err != nil {
			log.Printf("Error loading contact %s for stale session %s: %v", session.ContactID, session.SessionID, err)
			continue
		}
		if err := m.workflows.ExpireSession(session, contact); err != nil {
			log.Printf("Error expiring session %s: %v", session.SessionID, err)
			continue
		}
		expired++
	}
	log.Printf("🧹 Expired %d stale workflow session(s)", expired)
}

// scheduleCooldownPurge clears rate-limit cooldowns that have lapsed, so
// the limits table does not accumulate dead timestamps
func (m *MaintenanceJob) scheduleCooldownPurge() {
	for m.isRunning.Load() {
		time.Sleep(time.Hour)
		if !m.isRunning.Load() {
			break
		}

		purged, err := m.store.PurgeExpiredCooldowns(time.Now())
		if err != nil {
			log.Printf("Error purging cooldowns: %v", err)
			continue
		}
		if purged > 0 {
			log.Printf("🧹 Purged %d expired cooldown(s)", purged)
		}
	}
}
