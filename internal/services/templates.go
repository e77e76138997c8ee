package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ResponseTemplate is one reusable reply text with {{name}} placeholders
type ResponseTemplate struct {
	Name     string
	Category string
	Intent   string
	Keywords []string
	Body     string
}

// Render substitutes variables into the template body
func (t *ResponseTemplate) Render(vars map[string]string) string {
	return RenderTemplate(t.Body, vars)
}

// TemplateStore is the template collaborator: picks the best reply template
// for a piece of inbound text
type TemplateStore interface {
	FindBestMatch(text, category, intent string) (*ResponseTemplate, error)
}

// StaticTemplateStore serves templates from an in-memory list, scored by
// keyword overlap with the inbound text
type StaticTemplateStore struct {
	templates []ResponseTemplate
}

// NewStaticTemplateStore creates a template store over a fixed template set
func NewStaticTemplateStore(templates []ResponseTemplate) *StaticTemplateStore {
	return &StaticTemplateStore{templates: templates}
}

// FindBestMatch returns the highest-scoring template, preferring category and
// intent matches, then keyword hits in the text
func (s *StaticTemplateStore) FindBestMatch(text, category, intent string) (*ResponseTemplate, error) {
	lower := strings.ToLower(text)

	var best *ResponseTemplate
	bestScore := 0
	for i := range s.templates {
		tpl := &s.templates[i]
		if category != "" && tpl.Category != "" && !strings.EqualFold(tpl.Category, category) {
			continue
		}
		score := 1 // eligible at all
		if intent != "" && strings.EqualFold(tpl.Intent, intent) {
			score += 5
		}
		for _, kw := range tpl.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				score += 2
			}
		}
		if score > bestScore {
			bestScore = score
			best = tpl
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no template matched")
	}
	return best, nil
}

// DefaultTemplates is the built-in reply set for template rules. Operators
// usually replace these with their own copy deck; the defaults keep a fresh
// install answering common questions.
func DefaultTemplates() []ResponseTemplate {
	return []ResponseTemplate{
		{
			Name:     "greeting",
			Intent:   "greeting",
			Keywords: []string{"halo", "hai", "assalamualaikum", "selamat"},
			Body:     "Halo! 😊 Terima kasih sudah menghubungi kami. Ada yang bisa kami bantu seputar paket perjalanan?",
		},
		{
			Name:     "price_inquiry",
			Intent:   "price_inquiry",
			Keywords: []string{"harga", "berapa", "biaya"},
			Body:     "Untuk info harga terbaru, tim kami akan segera kirimkan daftar paket lengkap ya. Mohon ditunggu sebentar 🙏",
		},
		{
			Name:     "schedule_inquiry",
			Intent:   "schedule_inquiry",
			Keywords: []string{"jadwal", "keberangkatan", "kapan"},
			Body:     "Jadwal keberangkatan tersedia setiap bulan. Bulan apa yang Bapak/Ibu rencanakan?",
		},
		{
			Name:     "booking_intent",
			Intent:   "booking_intent",
			Keywords: []string{"daftar", "booking", "dp"},
			Body:     "Alhamdulillah! Untuk pendaftaran, tim kami akan segera menghubungi Bapak/Ibu untuk proses selanjutnya 🙏",
		},
		{
			Name:   "general",
			Intent: IntentNeutral,
			Body:   "Terima kasih atas pesannya. Tim kami akan segera merespons ya 🙏",
		},
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders from the variable map.
// Unresolved placeholders pass through literally, so rendering an already
// fully-resolved text is a no-op.
func RenderTemplate(body string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// BuiltinVariables returns the variables every rendering context provides
func BuiltinVariables(contactID, sessionID string, now time.Time) map[string]string {
	return map[string]string{
		"contact_id": contactID,
		"session_id": sessionID,
		"date":       now.Format("02-01-2006"),
		"time":       now.Format("15:04"),
	}
}

// MergeVariables layers session variables over builtins; session values win
func MergeVariables(builtins, sessionVars map[string]string) map[string]string {
	merged := make(map[string]string, len(builtins)+len(sessionVars))
	for k, v := range builtins {
		merged[k] = v
	}
	for k, v := range sessionVars {
		merged[k] = v
	}
	return merged
}
