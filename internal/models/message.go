package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Message direction values
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message status values
const (
	MessageStatusReceived  = "received"
	MessageStatusProcessed = "processed"
	MessageStatusSent      = "sent"
	MessageStatusFailed    = "failed"
)

// Message is an immutable record of a message on the channel.
// Content, type, direction and timestamp never change; only Status mutates.
type Message struct {
	gorm.Model

	MessageID      string    `json:"message_id" gorm:"uniqueIndex"`
	ConversationID string    `json:"conversation_id" gorm:"index"`
	ContactID      string    `json:"contact_id" gorm:"index"`
	Direction      string    `json:"direction"`                // inbound / outbound
	Type           string    `json:"type" gorm:"default:text"` // text, image, document, ...
	Content        string    `json:"content"`
	MediaURL       string    `json:"media_url"`
	Status         string    `json:"status" gorm:"default:received"`
	Timestamp      time.Time `json:"timestamp"`
}

// BeforeCreate hook to auto-generate MessageID and stamp the message
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.MessageID == "" {
		m.MessageID = fmt.Sprintf("MSG%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// IsInbound reports whether the message came from the contact
func (m *Message) IsInbound() bool {
	return m.Direction == DirectionInbound
}
