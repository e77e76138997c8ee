package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// fakeGateway records outbound messages instead of sending them
type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	failAll bool
}

type sentMessage struct {
	Phone    string
	Text     string
	MediaURL string
}

func (g *fakeGateway) Send(phone, text, mediaURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll {
		return "", fmt.Errorf("gateway unavailable")
	}
	g.sent = append(g.sent, sentMessage{Phone: phone, Text: text, MediaURL: mediaURL})
	return fmt.Sprintf("SM%03d", len(g.sent)), nil
}

func (g *fakeGateway) messages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]sentMessage, len(g.sent))
	copy(out, g.sent)
	return out
}

func (g *fakeGateway) lastText() string {
	msgs := g.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

// fakeGenerator returns a canned reply
type fakeGenerator struct {
	reply string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, contextMsgs []string, systemPrompt string, opts GenerateOptions) (*Generation, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &Generation{Text: g.reply}, nil
}

// seedContact creates a contact with its conversation in one call
func seedContact(store *storage.MemoryStore, phone string) (*models.Contact, *models.Conversation) {
	contact, err := store.CreateContact(&models.Contact{Phone: phone, Name: "Tester"})
	if err != nil {
		panic(err)
	}
	conv, err := store.CreateConversation(&models.Conversation{
		ContactID:      contact.ContactID,
		ChannelSession: "whatsapp:+14155238886",
	})
	if err != nil {
		panic(err)
	}
	return contact, conv
}

// inbound records an inbound message for the contact and returns it
func inbound(store *storage.MemoryStore, contact *models.Contact, conv *models.Conversation, text string) *models.Message {
	msg, err := store.CreateMessage(&models.Message{
		ConversationID: conv.ConversationID,
		ContactID:      contact.ContactID,
		Direction:      models.DirectionInbound,
		Type:           "text",
		Content:        text,
	})
	if err != nil {
		panic(err)
	}
	return msg
}

// noDelay disables real sleeping in engines under test
func noDelay(time.Duration) {}
