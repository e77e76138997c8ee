package services

import (
	"encoding/json"
	"fmt"
	"os"
)

// Lexicon externalizes every locale-specific pattern set the engine matches
// against, so Indonesian defaults can be swapped out in tests or per tenant.
type Lexicon struct {
	// Funnel transition patterns, matched case-insensitively in declared
	// order; the first match wins.
	InterestPatterns []string `json:"interest_patterns"` // LEADS -> INTEREST
	ClosingPatterns  []string `json:"closing_patterns"`  // INTEREST -> CLOSING

	// Attribute extraction
	Months           []string `json:"months"`
	CurrencySuffixes []string `json:"currency_suffixes"` // e.g. juta, jt
	PartySizeUnits   []string `json:"party_size_units"`  // e.g. orang, pax
	Cities           []string `json:"cities"`            // departure city allow-list
	ConcernKeywords  []string `json:"concern_keywords"`
	PackageKeywords  []string `json:"package_keywords"`

	// Acquisition source sniffing: source name -> keywords in the first message
	SourceKeywords map[string][]string `json:"source_keywords"`
}

// DefaultLexicon returns the Indonesian travel-sales pattern set
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		InterestPatterns: []string{
			`berapa`,
			`harga`,
			`biaya`,
			`\d+\s*hari`,
			`paket`,
			`detail`,
			`info\s+lengkap`,
			`fasilitas`,
			`itinerary`,
		},
		ClosingPatterns: []string{
			`daftar`,
			`booking`,
			`\bdp\b`,
			`uang\s*muka`,
			`transfer`,
			`bayar`,
			`pesan\s+sekarang`,
			`ambil\s+paket`,
		},
		Months: []string{
			"januari", "februari", "maret", "april", "mei", "juni",
			"juli", "agustus", "september", "oktober", "november", "desember",
		},
		CurrencySuffixes: []string{"juta", "jt"},
		PartySizeUnits:   []string{"orang", "org", "pax"},
		Cities: []string{
			"jakarta", "surabaya", "bandung", "medan", "makassar",
			"semarang", "yogyakarta", "palembang", "balikpapan", "pekanbaru",
		},
		ConcernKeywords: []string{
			"visa", "hotel", "cicilan", "refund", "vaksin", "paspor",
			"makanan", "pembatalan", "asuransi",
		},
		PackageKeywords: []string{
			"umroh reguler", "umroh plus turki", "umroh plus dubai",
			"haji furoda", "haji plus", "wisata halal",
			"umroh", "haji",
		},
		SourceKeywords: map[string][]string{
			"instagram": {"instagram", "ig"},
			"facebook":  {"facebook", "fb"},
			"tiktok":    {"tiktok"},
			"website":   {"website", "situs", "web"},
			"referral":  {"teman", "saudara", "rekomendasi"},
		},
	}
}

// LoadLexiconFile reads a lexicon override from a JSON file
func LoadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	var lex Lexicon
	if err := json.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file: %w", err)
	}
	return &lex, nil
}
