package services

import (
	"regexp"
	"strings"
)

// Intent is a coarse classification of an inbound message
type Intent struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// IntentNeutral is the degraded default when classification fails
const IntentNeutral = "general"

// IntentClassifier is the intent-detection collaborator. Failures never
// abort message processing; callers degrade to IntentNeutral.
type IntentClassifier interface {
	Classify(text string) (*Intent, error)
}

// EntityExtractor is the entity-extraction collaborator
type EntityExtractor interface {
	Extract(text, intent string) (map[string]string, error)
}

// KeywordIntentClassifier is the built-in lightweight classifier: scores
// fixed keyword sets per label
type KeywordIntentClassifier struct {
	labels map[string][]string
}

// NewKeywordIntentClassifier creates the default classifier for travel-sales
// conversations
func NewKeywordIntentClassifier() *KeywordIntentClassifier {
	return &KeywordIntentClassifier{
		labels: map[string][]string{
			"price_inquiry":    {"berapa", "harga", "biaya", "tarif"},
			"package_inquiry":  {"paket", "fasilitas", "itinerary", "hotel"},
			"booking_intent":   {"daftar", "booking", "pesan", "dp", "bayar"},
			"schedule_inquiry": {"jadwal", "kapan", "berangkat", "bulan"},
			"greeting":         {"halo", "hai", "assalamualaikum", "selamat"},
			"complaint":        {"komplain", "kecewa", "lambat", "refund"},
		},
	}
}

// Classify scores each label's keyword hits and returns the best one.
// Returns the neutral intent when nothing matches.
func (c *KeywordIntentClassifier) Classify(text string) (*Intent, error) {
	lower := strings.ToLower(text)

	best := IntentNeutral
	bestHits := 0
	for label, keywords := range c.labels {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = label
		}
	}

	confidence := 0.3
	if bestHits > 0 {
		confidence = 0.5 + 0.15*float64(bestHits)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}
	return &Intent{Label: best, Confidence: confidence}, nil
}

// LexiconEntityExtractor is the built-in extractor: pulls structured values
// out of the message using the configured lexicon
type LexiconEntityExtractor struct {
	lexicon *Lexicon

	numberUnit *regexp.Regexp
}

// NewLexiconEntityExtractor creates an extractor over the given lexicon
func NewLexiconEntityExtractor(lexicon *Lexicon) *LexiconEntityExtractor {
	return &LexiconEntityExtractor{
		lexicon:    lexicon,
		numberUnit: regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*([a-zA-Z]+)`),
	}
}

// Extract returns the entities found in the text. The intent hint is
// accepted for interface compatibility but unused by this implementation.
func (e *LexiconEntityExtractor) Extract(text, intent string) (map[string]string, error) {
	lower := strings.ToLower(text)
	entities := make(map[string]string)

	for _, city := range e.lexicon.Cities {
		if strings.Contains(lower, city) {
			entities["city"] = city
			break
		}
	}
	for _, month := range e.lexicon.Months {
		if strings.Contains(lower, month) {
			entities["month"] = month
			break
		}
	}
	for _, pkg := range e.lexicon.PackageKeywords {
		if strings.Contains(lower, pkg) {
			entities["package"] = pkg
			break
		}
	}

	for _, match := range e.numberUnit.FindAllStringSubmatch(lower, -1) {
		unit := match[2]
		for _, suffix := range e.lexicon.CurrencySuffixes {
			if unit == suffix {
				entities["budget"] = match[1]
			}
		}
		for _, psUnit := range e.lexicon.PartySizeUnits {
			if unit == psUnit {
				entities["party_size"] = match[1]
			}
		}
	}

	return entities, nil
}
