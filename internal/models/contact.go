package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Contact represents a WhatsApp contact that has messaged the business number
type Contact struct {
	gorm.Model

	ContactID   string     `json:"contact_id" gorm:"uniqueIndex"`
	Phone       string     `json:"phone" gorm:"uniqueIndex"` // WhatsApp number - unique
	Name        string     `json:"name"`
	IsBlocked   bool       `json:"is_blocked" gorm:"default:false"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
	Interaction int        `json:"interaction" gorm:"default:0"` // Total inbound messages processed
}

// BeforeCreate hook to auto-generate ContactID and normalize the phone number
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ContactID == "" {
		c.ContactID = fmt.Sprintf("CT%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}

	// Normalize phone number (ensure it starts with +62 if not already)
	c.Phone = strings.TrimPrefix(c.Phone, "whatsapp:")
	if !strings.HasPrefix(c.Phone, "+") {
		c.Phone = "+62" + strings.TrimPrefix(c.Phone, "62")
	}

	return nil
}

// Conversation ties a contact to one channel session
type Conversation struct {
	gorm.Model

	ConversationID string    `json:"conversation_id" gorm:"uniqueIndex"`
	ContactID      string    `json:"contact_id" gorm:"index"`
	ChannelSession string    `json:"channel_session" gorm:"index"` // e.g. the WhatsApp chat JID
	IsGroup        bool      `json:"is_group" gorm:"default:false"`
	UnreadCount    int       `json:"unread_count" gorm:"default:0"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// BeforeCreate hook to auto-generate ConversationID
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ConversationID == "" {
		c.ConversationID = fmt.Sprintf("CV%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	return nil
}
