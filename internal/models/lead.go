// -----------------------------------------------------------------------
// Lead - CRM lead records produced by the lead generation pipeline
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"
)

// LeadSourceAI marks leads produced by the pipeline rather than manual entry
const LeadSourceAI = "AI Generated"

// Candidate is a normalized contact extracted from a raw listing,
// before deduplication and mapping.
type Candidate struct {
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Location     string  `json:"location,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	Price        float64 `json:"price,omitempty"`
	ListingURL   string  `json:"listing_url,omitempty"`
	SourceName   string  `json:"source_name"`
}

// DedupeKey returns the identity used for duplicate detection.
// Email wins when present, then phone, then name+location.
func (c *Candidate) DedupeKey() string {
	if c.Email != "" {
		return "email:" + strings.ToLower(c.Email)
	}
	if c.Phone != "" {
		return "phone:" + c.Phone
	}
	return "name:" + strings.ToLower(strings.TrimSpace(c.Name)) + "|" + strings.ToLower(strings.TrimSpace(c.Location))
}

// Lead is a persisted CRM lead record
type Lead struct {
	ID           string    `json:"id" badgerhold:"key"`
	JobID        string    `json:"job_id" badgerhold:"index"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Location     string    `json:"location,omitempty"`
	PropertyType string    `json:"property_type,omitempty"`
	Price        float64   `json:"price,omitempty"`
	ListingURL   string    `json:"listing_url,omitempty"`
	Source       string    `json:"source"`       // Always LeadSourceAI for pipeline leads
	SourceName   string    `json:"source_name"`  // Listing site the lead came from
	SourceQuery  string    `json:"source_query"` // Query that produced the lead
	CreatedAt    time.Time `json:"created_at"`
}

// NewLeadFromCandidate maps a deduplicated candidate to a lead record
func NewLeadFromCandidate(id, jobID, query string, c Candidate) *Lead {
	return &Lead{
		ID:           id,
		JobID:        jobID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Location:     c.Location,
		PropertyType: c.PropertyType,
		Price:        c.Price,
		ListingURL:   c.ListingURL,
		Source:       LeadSourceAI,
		SourceName:   c.SourceName,
		SourceQuery:  query,
		CreatedAt:    time.Now(),
	}
}

// Validate checks the minimum fields a lead needs before persistence
func (l *Lead) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("lead ID is required")
	}
	if l.JobID == "" {
		return fmt.Errorf("lead job ID is required")
	}
	if l.Name == "" {
		return fmt.Errorf("lead name is required")
	}
	return nil
}

// Listing is one raw result returned by a source before extraction
type Listing struct {
	SourceName string `json:"source_name"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PriceText  string `json:"price_text,omitempty"`
	Location   string `json:"location,omitempty"`
	Property   string `json:"property,omitempty"`
	URL        string `json:"url,omitempty"`
}

// SearchPlan is the AI-produced plan for a job: which terms to search
// and which sources to query.
type SearchPlan struct {
	SearchTerms []string `json:"search_terms"`
	Sources     []string `json:"sources,omitempty"` // Empty means all configured sources
	Location    string   `json:"location,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// SourceResult records one source's outcome during the fetch stage
type SourceResult struct {
	SourceName string    `json:"source_name"`
	Listings   []Listing `json:"-"`
	Count      int       `json:"count"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
}
