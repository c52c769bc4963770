// -----------------------------------------------------------------------
// Extraction & Deduplication - Listings to normalized lead candidates
// -----------------------------------------------------------------------

package leadgen

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/leadgen/internal/models"
)

var (
	nonPhoneChars = regexp.MustCompile(`[^\d+]`)
	priceDigits   = regexp.MustCompile(`[\d][\d,]*(?:\.\d+)?`)
)

// ExtractCandidates normalizes raw listings into candidates and drops
// those outside the price filters. Listings without a name were already
// dropped at fetch time.
func ExtractCandidates(listings []models.Listing, filters models.LeadFilters) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(listings))
	for _, listing := range listings {
		c := models.Candidate{
			Name:         strings.TrimSpace(listing.Name),
			Email:        NormalizeEmail(listing.Email),
			Phone:        NormalizePhone(listing.Phone),
			Location:     strings.TrimSpace(listing.Location),
			PropertyType: strings.TrimSpace(listing.Property),
			Price:        ParsePrice(listing.PriceText),
			ListingURL:   listing.URL,
			SourceName:   listing.SourceName,
		}

		if c.Name == "" {
			continue
		}
		if filters.MinPrice > 0 && c.Price > 0 && c.Price < filters.MinPrice {
			continue
		}
		if filters.MaxPrice > 0 && c.Price > filters.MaxPrice {
			continue
		}

		candidates = append(candidates, c)
	}
	return candidates
}

// Dedupe removes duplicate candidates by normalized identity, keeping
// the first occurrence. Returns the survivors and the duplicate count.
func Dedupe(candidates []models.Candidate) ([]models.Candidate, int) {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]models.Candidate, 0, len(candidates))
	duplicates := 0

	for _, c := range candidates {
		key := c.DedupeKey()
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	return unique, duplicates
}

// NormalizeEmail lowercases and trims an email address. Anything
// without an @ is noise from scraping and is dropped.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	// Strip mailto: prefixes scraped from href attributes
	email = strings.TrimPrefix(email, "mailto:")
	return email
}

// NormalizePhone strips formatting so the same number always compares
// equal. Keeps a leading + for international prefixes.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	normalized := nonPhoneChars.ReplaceAllString(phone, "")
	// A + is only meaningful at the front
	if i := strings.LastIndex(normalized, "+"); i > 0 {
		normalized = strings.ReplaceAll(normalized, "+", "")
	}

	// Too few digits to be a phone number
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 6 {
		return ""
	}

	return normalized
}

// ParsePrice pulls a numeric price out of display text like
// "$1,250,000" or "Offers over $890k". Returns 0 when no number found.
func ParsePrice(text string) float64 {
	match := priceDigits.FindString(text)
	if match == "" {
		return 0
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}

	// Handle shorthand like "890k" and "1.2m"
	rest := strings.ToLower(text[strings.Index(text, match)+len(match):])
	switch {
	case strings.HasPrefix(rest, "k"):
		value *= 1_000
	case strings.HasPrefix(rest, "m"):
		value *= 1_000_000
	}

	return value
}
