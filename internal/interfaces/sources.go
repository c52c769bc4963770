package interfaces

import (
	"context"

	"github.com/ternarybob/leadgen/internal/models"
)

// SourceProvider fetches raw listings from one listing site
type SourceProvider interface {
	// Name returns the configured source name
	Name() string

	// Search fetches listings matching the term and filters.
	// Implementations respect ctx cancellation and rate limits.
	Search(ctx context.Context, term string, filters models.LeadFilters) ([]models.Listing, error)
}

// SourceRegistry resolves configured source providers by name
type SourceRegistry interface {
	// Get returns the provider for a source name, or false if unknown
	Get(name string) (SourceProvider, bool)

	// All returns every registered provider
	All() []SourceProvider

	// Names returns registered source names in registration order
	Names() []string
}
