package handlers

import (
	"log"
	"strings"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/services"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	store      storage.Store
	automation *services.AutomationService
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(store storage.Store, automation *services.AutomationService) *WhatsAppHandler {
	return &WhatsAppHandler{
		store:      store,
		automation: automation,
	}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid        string `form:"MessageSid"`
	AccountSid        string `form:"AccountSid"`
	From              string `form:"From"` // whatsapp:+6281234567890
	To                string `form:"To"`   // our Twilio number
	Body              string `form:"Body"`
	ProfileName       string `form:"ProfileName"`
	NumMedia          string `form:"NumMedia"`
	MediaUrl0         string `form:"MediaUrl0"`
	MediaContentType0 string `form:"MediaContentType0"`
}

// HandleWebhook stores the inbound message and hands it to the automation
// pipeline. Twilio expects a fast 200, so the pipeline (which may sleep on
// configured response delays) runs in the background.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks and empty events get acknowledged without processing
	if payload.From == "" || (payload.Body == "" && payload.MediaUrl0 == "") {
		return c.SendStatus(fiber.StatusOK)
	}

	from := strings.TrimPrefix(payload.From, "whatsapp:")
	log.Printf("📱 WhatsApp message from %s: %s", from, payload.Body)

	contact, conv, msg, err := h.ingest(from, &payload)
	if err != nil {
		log.Printf("❌ Failed to store inbound message from %s: %v", from, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store message",
		})
	}

	// Reserves the contact's processing slot before the 200 goes back, so
	// two quick messages from one contact are answered in arrival order
	h.automation.QueueInbound(contact, conv, msg)

	return c.SendStatus(fiber.StatusOK)
}

// ingest upserts the contact and conversation and records the inbound
// message before any automation runs.
func (h *WhatsAppHandler) ingest(phone string, payload *TwilioWebhookPayload) (*models.Contact, *models.Conversation, *models.Message, error) {
	contact, err := h.store.GetContactByPhone(phone)
	if err != nil {
		contact, err = h.store.CreateContact(&models.Contact{
			Phone: phone,
			Name:  payload.ProfileName,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		log.Printf("✅ New contact %s (%s)", contact.ContactID, phone)
	} else if payload.ProfileName != "" && payload.ProfileName != contact.Name {
		contact.Name = payload.ProfileName
		if err := h.store.UpdateContact(contact); err != nil {
			log.Printf("⚠️ Could not update contact name for %s: %v", contact.ContactID, err)
		}
	}

	conv, err := h.store.GetConversation(contact.ContactID, payload.To)
	if err != nil {
		conv, err = h.store.CreateConversation(&models.Conversation{
			ContactID:      contact.ContactID,
			ChannelSession: payload.To,
			IsGroup:        strings.Contains(payload.From, "@g.us"),
		})
		if err != nil {
			return nil, nil, nil, err
		}
	}
	conv.UnreadCount++
	conv.LastActivityAt = time.Now()
	if err := h.store.UpdateConversation(conv); err != nil {
		log.Printf("⚠️ Could not touch conversation %s: %v", conv.ConversationID, err)
	}

	msgType := "text"
	if payload.MediaUrl0 != "" {
		msgType = mediaType(payload.MediaContentType0)
	}
	msg, err := h.store.CreateMessage(&models.Message{
		MessageID:      payload.MessageSid,
		ConversationID: conv.ConversationID,
		ContactID:      contact.ContactID,
		Direction:      models.DirectionInbound,
		Type:           msgType,
		Content:        payload.Body,
		MediaURL:       payload.MediaUrl0,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return contact, conv, msg, nil
}

func mediaType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "document"
	}
}

// TestWebhookPayload is the JSON shape for development testing without Twilio
type TestWebhookPayload struct {
	From    string `json:"from"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// HandleTestWebhook processes test messages synchronously (for development)
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	log.Printf("🧪 Test webhook from %s: %s", payload.From, payload.Message)

	contact, conv, msg, err := h.ingest(payload.From, &TwilioWebhookPayload{
		From:        "whatsapp:" + payload.From,
		To:          "test",
		Body:        payload.Message,
		ProfileName: payload.Name,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.automation.ProcessInbound(contact, conv, msg); err != nil {
		return c.JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message_id": msg.MessageID,
		"contact_id": contact.ContactID,
	})
}
