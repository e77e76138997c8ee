package services

import (
	"context"
	"regexp"
	"strings"
)

// GenerateOptions tunes one generation call
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// TokenStats reports usage for one generation call
type TokenStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Generation is the result of one text-generation call
type Generation struct {
	Text  string
	Stats TokenStats
}

// TextGenerator is the text-generation collaborator. Implementations live
// outside this core; they must enforce their own timeouts and return an
// error instead of hanging.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, contextMsgs []string, systemPrompt string, opts GenerateOptions) (*Generation, error)
}

// Lines starting with these markers are a sign the model echoed or was fed
// instruction text; they are stripped before the output reaches a contact.
var injectionMarkers = []string{
	"system:",
	"assistant:",
	"user:",
	"ignore previous instructions",
	"ignore all previous instructions",
	"[inst]",
	"</s>",
	"<|",
}

var whitespaceRun = regexp.MustCompile(`\n{3,}`)

const maxGeneratedLength = 3000

// SanitizeGenerated filters generated text before it is sent or stored.
// It drops prompt-injection artifacts and role markers and bounds length.
// Returns empty string when nothing safe remains.
func SanitizeGenerated(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		skip := false
		for _, marker := range injectionMarkers {
			if strings.HasPrefix(lower, marker) || strings.Contains(lower, "ignore previous instructions") {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, line)
		}
	}

	out := strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
	if runes := []rune(out); len(runes) > maxGeneratedLength {
		// Cut on a rune boundary; this text goes straight to the contact
		out = string(runes[:maxGeneratedLength])
	}
	return out
}
