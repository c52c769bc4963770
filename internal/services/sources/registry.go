package sources

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/interfaces"
)

// Registry holds the configured source providers in registration order
type Registry struct {
	providers map[string]interfaces.SourceProvider
	order     []string
	logger    arbor.ILogger
}

// NewRegistry builds a registry from the configured sources
func NewRegistry(configs []common.SourceConfig, logger arbor.ILogger) *Registry {
	r := &Registry{
		providers: make(map[string]interfaces.SourceProvider),
		logger:    logger,
	}

	for i := range configs {
		cfg := configs[i]
		if cfg.Name == "" || cfg.URL == "" {
			logger.Warn().Str("name", cfg.Name).Msg("Skipping source with missing name or URL")
			continue
		}
		r.Register(NewWebProvider(cfg, logger))
	}

	logger.Info().Int("count", len(r.order)).Msg("Source registry initialized")
	return r
}

// Register adds a provider, replacing any existing provider with the same name
func (r *Registry) Register(provider interfaces.SourceProvider) {
	name := provider.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = provider
}

// Get returns the provider for a source name, or false if unknown
func (r *Registry) Get(name string) (interfaces.SourceProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// All returns every registered provider in registration order
func (r *Registry) All() []interfaces.SourceProvider {
	result := make([]interfaces.SourceProvider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// Names returns registered source names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
