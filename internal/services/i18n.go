package services

import (
	"encoding/json"
	"log"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// User-visible system messages. Indonesian is the default; English is the
// fallback. Raw internal errors are never surfaced to contacts, only these.
var indonesianMessages = []byte(`{
	"fallback_error": "Mohon maaf, terjadi kendala pada sistem kami. Tim kami akan segera menghubungi Anda. 🙏",
	"session_expired": "Sesi percakapan Anda telah berakhir. Silakan kirim pesan baru untuk memulai kembali.",
	"invalid_input": "Mohon maaf, jawaban Anda belum sesuai. {{.Hint}}"
}`)

var englishMessages = []byte(`{
	"fallback_error": "We are sorry, something went wrong on our side. Our team will reach out shortly. 🙏",
	"session_expired": "Your conversation session has expired. Send a new message to start again.",
	"invalid_input": "Sorry, that answer was not valid. {{.Hint}}"
}`)

// SystemMessages resolves localized operator-facing texts (apology,
// session-expired, validation hints)
type SystemMessages struct {
	localizer *i18n.Localizer
}

// NewSystemMessages builds the message bundle for a preferred language tag
func NewSystemMessages(lang string) *SystemMessages {
	bundle := i18n.NewBundle(language.Indonesian)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	bundle.MustParseMessageFileBytes(indonesianMessages, "id.json")
	bundle.MustParseMessageFileBytes(englishMessages, "en.json")

	if lang == "" {
		lang = "id"
	}
	return &SystemMessages{
		localizer: i18n.NewLocalizer(bundle, lang, "id"),
	}
}

// Get resolves a message by ID with optional template data
func (s *SystemMessages) Get(id string, data map[string]interface{}) string {
	msg, err := s.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.Printf("Failed to localize message %q: %v", id, err)
		return ""
	}
	return msg
}

// FallbackError returns the generic user-facing apology message
func (s *SystemMessages) FallbackError() string {
	return s.Get("fallback_error", nil)
}

// SessionExpired returns the session-expired notice
func (s *SystemMessages) SessionExpired() string {
	return s.Get("session_expired", nil)
}

// InvalidInput returns the validation retry prompt with a hint
func (s *SystemMessages) InvalidInput(hint string) string {
	return s.Get("invalid_input", map[string]interface{}{"Hint": hint})
}
