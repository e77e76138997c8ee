package services

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

// PhaseService tracks each contact's funnel phase and extracts structured
// attributes from every message. Transitions are forward-only: a contact
// never moves back up the funnel, and LEADS can never jump straight to
// CLOSING because only INTEREST patterns apply at LEADS.
type PhaseService struct {
	store   storage.Store
	lexicon *Lexicon

	interestPatterns []*regexp.Regexp
	closingPatterns  []*regexp.Regexp
	budgetPattern    *regexp.Regexp
	partyPattern     *regexp.Regexp
}

// NewPhaseService compiles the lexicon's pattern sets
func NewPhaseService(store storage.Store, lexicon *Lexicon) (*PhaseService, error) {
	s := &PhaseService{
		store:   store,
		lexicon: lexicon,
	}

	var err error
	if s.interestPatterns, err = compilePatterns(lexicon.InterestPatterns); err != nil {
		return nil, fmt.Errorf("invalid interest patterns: %w", err)
	}
	if s.closingPatterns, err = compilePatterns(lexicon.ClosingPatterns); err != nil {
		return nil, fmt.Errorf("invalid closing patterns: %w", err)
	}

	// A bare number means nothing without a unit, so these extractors only
	// exist when the lexicon names the units
	if len(lexicon.CurrencySuffixes) > 0 {
		s.budgetPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(` + strings.Join(lexicon.CurrencySuffixes, "|") + `)\b`)
	}
	if len(lexicon.PartySizeUnits) > 0 {
		s.partyPattern = regexp.MustCompile(`(?i)(\d+)\s*(` + strings.Join(lexicon.PartySizeUnits, "|") + `)\b`)
	}

	return s, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// EnsurePhase returns the contact's phase record, creating it at LEADS on
// the first message. The acquisition source is sniffed from the message
// text, defaulting to the channel name.
func (s *PhaseService) EnsurePhase(contactID, firstMessage, channelName string) (*models.CustomerPhase, error) {
	phase, err := s.store.GetPhase(contactID)
	if err == nil {
		return phase, nil
	}

	source := s.sniffSource(firstMessage, channelName)
	phase, err = s.store.CreatePhase(&models.CustomerPhase{
		ContactID: contactID,
		Phase:     models.PhaseLeads,
		Source:    source,
		EnteredAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create phase: %w", err)
	}
	log.Printf("Phase created for contact %s at %s (source=%s)", contactID, models.PhaseLeads, source)
	return phase, nil
}

// sniffSource guesses where the contact came from based on the first message
func (s *PhaseService) sniffSource(text, channelName string) string {
	lower := strings.ToLower(text)
	for source, keywords := range s.lexicon.SourceKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return source
			}
		}
	}
	return channelName
}

// Advance applies the transition table for the contact's current phase and
// runs the attribute extractors, persisting the result. Returns the phase
// after the message and the pattern that caused a transition, if any.
func (s *PhaseService) Advance(phase *models.CustomerPhase, text string) (string, string, error) {
	from := phase.Phase
	matched := ""

	switch phase.Phase {
	case models.PhaseLeads:
		matched = firstMatch(s.interestPatterns, text)
		if matched != "" {
			phase.Phase = models.PhaseInterest
		}
	case models.PhaseInterest:
		matched = firstMatch(s.closingPatterns, text)
		if matched != "" {
			phase.Phase = models.PhaseClosing
		}
	}

	s.extractAttributes(phase, text)
	phase.Interactions++

	if err := s.store.UpdatePhase(phase); err != nil {
		return from, "", fmt.Errorf("failed to persist phase: %w", err)
	}

	if phase.Phase != from {
		log.Printf("Phase transition for contact %s: %s -> %s (pattern=%q)", phase.ContactID, from, phase.Phase, matched)
		if err := s.store.CreatePhaseTransition(&models.PhaseTransition{
			ContactID: phase.ContactID,
			FromPhase: from,
			ToPhase:   phase.Phase,
			Reason:    matched,
		}); err != nil {
			// Audit failure must not abort processing
			log.Printf("Failed to record phase transition: %v", err)
		}
	}

	return phase.Phase, matched, nil
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if re.MatchString(text) {
			return re.String()
		}
	}
	return ""
}

// extractAttributes runs the fixed extractors. Extraction is additive:
// scalars fill only when empty, lists grow without duplicates.
func (s *PhaseService) extractAttributes(phase *models.CustomerPhase, text string) {
	lower := strings.ToLower(text)
	attrs := phase.GetAttributes()
	changed := false

	if m := findSubmatch(s.partyPattern, text); m != nil && attrs.PartySize == 0 {
		if size, err := strconv.Atoi(m[1]); err == nil && size > 0 {
			attrs.PartySize = size
			changed = true
		}
	}

	if m := findSubmatch(s.budgetPattern, text); m != nil && attrs.BudgetJuta == 0 {
		raw := strings.ReplaceAll(m[1], ",", ".")
		if budget, err := strconv.ParseFloat(raw, 64); err == nil && budget > 0 {
			attrs.BudgetJuta = budget
			changed = true
		}
	}

	if attrs.DepartureCity == "" {
		for _, city := range s.lexicon.Cities {
			if strings.Contains(lower, city) {
				attrs.DepartureCity = city
				changed = true
				break
			}
		}
	}

	if attrs.PreferredMonth == "" {
		for _, month := range s.lexicon.Months {
			if strings.Contains(lower, month) {
				attrs.PreferredMonth = month
				changed = true
				break
			}
		}
	}

	for _, pkg := range s.lexicon.PackageKeywords {
		if strings.Contains(lower, pkg) && !containsString(attrs.Packages, pkg) {
			attrs.Packages = append(attrs.Packages, pkg)
			changed = true
		}
	}

	for _, concern := range s.lexicon.ConcernKeywords {
		if strings.Contains(lower, concern) && !containsString(attrs.Concerns, concern) {
			attrs.Concerns = append(attrs.Concerns, concern)
			changed = true
		}
	}

	if changed {
		phase.SetAttributes(attrs)
	}
}

func findSubmatch(re *regexp.Regexp, text string) []string {
	if re == nil {
		return nil
	}
	return re.FindStringSubmatch(text)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
