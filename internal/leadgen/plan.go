// -----------------------------------------------------------------------
// Plan & Summary Prompts - AI interactions for the pipeline
// -----------------------------------------------------------------------

package leadgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/leadgen/internal/models"
)

const planSystemInstruction = `You are a real estate lead research planner. ` +
	`Respond with a single JSON object and nothing else.`

const summarySystemInstruction = `You are a real estate CRM assistant. ` +
	`Write one short plain-text paragraph. No markdown, no lists.`

// BuildPlanPrompt asks the model for search terms and source selection
func BuildPlanPrompt(query string, filters models.LeadFilters, sources []string) string {
	var b strings.Builder

	b.WriteString("Plan a property listing search for the request below.\n\n")
	fmt.Fprintf(&b, "Request: %s\n", query)
	if filters.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", filters.Location)
	}
	if filters.PropertyType != "" {
		fmt.Fprintf(&b, "Property type: %s\n", filters.PropertyType)
	}
	if filters.MinPrice > 0 {
		fmt.Fprintf(&b, "Minimum price: %.0f\n", filters.MinPrice)
	}
	if filters.MaxPrice > 0 {
		fmt.Fprintf(&b, "Maximum price: %.0f\n", filters.MaxPrice)
	}

	fmt.Fprintf(&b, "\nAvailable sources: %s\n", strings.Join(sources, ", "))
	b.WriteString(`
Return JSON with this shape:
{"search_terms": ["..."], "sources": ["..."], "location": "...", "notes": "..."}

Use 1-3 concise search terms. Only name sources from the available list.
`)

	return b.String()
}

// ParsePlan extracts a SearchPlan from a model response. The response
// may wrap the JSON in code fences or prose; if no usable JSON is
// found, the raw query becomes the single search term.
func ParsePlan(text, fallbackQuery string) *models.SearchPlan {
	var plan models.SearchPlan

	if raw := extractJSONObject(text); raw != "" {
		if err := json.Unmarshal([]byte(raw), &plan); err == nil {
			plan.SearchTerms = cleanTerms(plan.SearchTerms)
		}
	}

	if len(plan.SearchTerms) == 0 {
		plan.SearchTerms = []string{fallbackQuery}
	}

	return &plan
}

// extractJSONObject returns the first top-level {...} block in text
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func cleanTerms(terms []string) []string {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}

// BuildSummaryPrompt asks the model to describe the run's outcome
func BuildSummaryPrompt(query string, counts models.JobCounts, results []models.SourceResult) string {
	var b strings.Builder

	b.WriteString("Summarize this lead generation run for a CRM user.\n\n")
	fmt.Fprintf(&b, "Request: %s\n", query)
	fmt.Fprintf(&b, "Listings found: %d\n", counts.Found)
	fmt.Fprintf(&b, "Candidates extracted: %d\n", counts.Extracted)
	fmt.Fprintf(&b, "Duplicates removed: %d\n", counts.Duplicates)
	fmt.Fprintf(&b, "Leads saved: %d\n", counts.Posted)

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(&b, "Source %s failed: %s\n", res.SourceName, res.Error)
		} else {
			fmt.Fprintf(&b, "Source %s returned %d listings\n", res.SourceName, res.Count)
		}
	}

	b.WriteString("\nWrite 1-2 sentences covering the outcome and any source problems.")
	return b.String()
}

// FallbackSummary is used when summary generation fails. The job still
// completes; the summary just loses the narrative touch.
func FallbackSummary(query string, counts models.JobCounts) string {
	return fmt.Sprintf("Generated %d leads for %q (%d listings found, %d duplicates removed).",
		counts.Posted, query, counts.Found, counts.Duplicates)
}
