package handlers

import (
	"strconv"

	"github.com/AzkaWisata/autochat-backend/internal/services"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// AutomationHandler exposes the operator surface: engine toggle, rule
// inspection, and the execution audit log.
type AutomationHandler struct {
	store      storage.Store
	automation *services.AutomationService
}

// NewAutomationHandler creates a new automation handler
func NewAutomationHandler(store storage.Store, automation *services.AutomationService) *AutomationHandler {
	return &AutomationHandler{
		store:      store,
		automation: automation,
	}
}

// Status reports whether the engine is answering messages
func (h *AutomationHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"enabled": h.automation.IsEnabled(),
	})
}

// Enable turns the engine on
func (h *AutomationHandler) Enable(c *fiber.Ctx) error {
	h.automation.SetEnabled(true)
	return c.JSON(fiber.Map{"enabled": true})
}

// Disable turns the engine off; inbound messages are still stored
func (h *AutomationHandler) Disable(c *fiber.Ctx) error {
	h.automation.SetEnabled(false)
	return c.JSON(fiber.Map{"enabled": false})
}

// ListRules returns the active rules in evaluation order
func (h *AutomationHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.store.GetActiveRules()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load rules",
		})
	}
	return c.JSON(fiber.Map{
		"count": len(rules),
		"rules": rules,
	})
}

// ListLogs returns execution audit entries, newest first. Supports
// contact_id, status, limit and offset query parameters.
func (h *AutomationHandler) ListLogs(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	logs, err := h.store.GetExecutionLogs(storage.LogFilter{
		ContactID: c.Query("contact_id"),
		Status:    c.Query("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load execution logs",
		})
	}
	return c.JSON(fiber.Map{
		"count": len(logs),
		"logs":  logs,
	})
}

// ContactState returns a contact's funnel phase and active workflow
// session, the two pieces an operator checks before stepping in manually.
func (h *AutomationHandler) ContactState(c *fiber.Ctx) error {
	contactID := c.Params("contactId")

	contact, err := h.store.GetContactByID(contactID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	response := fiber.Map{
		"contact": contact,
	}
	if phase, err := h.store.GetPhase(contactID); err == nil {
		response["phase"] = phase
		response["attributes"] = phase.GetAttributes()
	}
	if session, err := h.store.GetActiveSessionByContact(contactID); err == nil {
		response["session"] = session
	}
	return c.JSON(response)
}
