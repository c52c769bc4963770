package common

import (
	"fmt"
	"os"

	"github.com/ternarybob/leadgen/internal/interfaces"
)

// ResolveAPIKey resolves an API key with environment variables taking
// priority, then the KV store, then the config fallback.
func ResolveAPIKey(kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key": {"LEADGEN_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"LEADGEN_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":    {"LEADGEN_GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"google_api_key":    {"LEADGEN_GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store (medium priority)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
