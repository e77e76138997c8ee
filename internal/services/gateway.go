package services

import (
	"fmt"
	"log"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageGateway delivers outbound messages on the WhatsApp channel.
// Implementations must surface delivery failures as errors rather than hang;
// timeouts are the gateway's responsibility.
type MessageGateway interface {
	// Send delivers a message and returns the channel delivery ID.
	// mediaURL may be empty for plain text.
	Send(phone, text, mediaURL string) (string, error)
}

// TwilioGateway sends WhatsApp messages via Twilio
type TwilioGateway struct {
	client *twilio.RestClient
	from   string // Twilio WhatsApp number, format "whatsapp:+14155238886"
}

// NewTwilioGateway creates a Twilio-backed message gateway
func NewTwilioGateway() (*TwilioGateway, error) {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_WHATSAPP_FROM")

	if accountSid == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &TwilioGateway{
		client: client,
		from:   from,
	}, nil
}

// Send delivers a WhatsApp message via Twilio
func (t *TwilioGateway) Send(phone, text, mediaURL string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", phone))
	params.SetBody(text)
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message to %s: %v", phone, err)
		return "", err
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return "", fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, *resp.ErrorMessage)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	log.Printf("✅ WhatsApp message sent to %s, SID: %s", phone, sid)
	return sid, nil
}

// ConsoleGateway logs outbound messages instead of sending them. Used for
// local development when no Twilio credentials are configured.
type ConsoleGateway struct {
	counter int
}

// NewConsoleGateway creates a log-only gateway
func NewConsoleGateway() *ConsoleGateway {
	return &ConsoleGateway{}
}

// Send logs the message and returns a synthetic delivery ID
func (g *ConsoleGateway) Send(phone, text, mediaURL string) (string, error) {
	g.counter++
	if mediaURL != "" {
		log.Printf("📤 [console] to %s: %s (media: %s)", phone, text, mediaURL)
	} else {
		log.Printf("📤 [console] to %s: %s", phone, text)
	}
	return fmt.Sprintf("console-%d", g.counter), nil
}
