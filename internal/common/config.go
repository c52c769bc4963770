package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	LLM         LLMConfig       `toml:"llm"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	LeadGen     LeadGenConfig   `toml:"leadgen"`
	Sources     []SourceConfig  `toml:"sources"`
	Retention   RetentionConfig `toml:"retention"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMConfig selects the default AI provider for plan/summarize calls
type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"` // "claude" or "gemini"
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"` // e.g. "60s"
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// LeadGenConfig tunes the lead generation pipeline
type LeadGenConfig struct {
	StageTimeout  string `toml:"stage_timeout"`  // Per-stage timeout, e.g. "2m"
	MaxSources    int    `toml:"max_sources"`    // Cap on sources queried per job
	MaxCandidates int    `toml:"max_candidates"` // Cap on candidates carried past extraction
}

// StageTimeoutDuration parses the per-stage timeout with a safe default.
func (c *LeadGenConfig) StageTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.StageTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// SourceConfig defines one listing source the fetch stage can query
type SourceConfig struct {
	Name       string          `toml:"name"`
	URL        string          `toml:"url"`         // Search URL template, {query} and {location} are replaced
	UserAgent  string          `toml:"user_agent"`  // Optional UA override
	RateLimit  int             `toml:"rate_limit"`  // Requests per second (default 2)
	MaxResults int             `toml:"max_results"` // Cap on listings returned per search
	Selectors  SourceSelectors `toml:"selectors"`
}

// SourceSelectors are CSS selectors applied to listing pages
type SourceSelectors struct {
	Item         string `toml:"item"` // Repeated listing container
	Name         string `toml:"name"`
	Email        string `toml:"email"`
	Phone        string `toml:"phone"`
	Price        string `toml:"price"`
	Location     string `toml:"location"`
	PropertyType string `toml:"property_type"`
	Link         string `toml:"link"` // Anchor whose href is the listing URL
}

// RetentionConfig controls terminal job expiry
type RetentionConfig struct {
	Schedule string `toml:"schedule"` // Cron schedule for the sweeper
	MaxAge   string `toml:"max_age"`  // Terminal jobs older than this are deleted
}

// MaxAgeDuration parses the retention age with a safe default.
func (c *RetentionConfig) MaxAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// NewDefaultConfig returns a config populated with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/leadgen",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		LLM: LLMConfig{
			DefaultProvider: "claude",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Temperature: 0.3,
			Timeout:     "60s",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
			Timeout:     "60s",
		},
		LeadGen: LeadGenConfig{
			StageTimeout:  "2m",
			MaxSources:    5,
			MaxCandidates: 200,
		},
		Retention: RetentionConfig{
			Schedule: "*/10 * * * *",
			MaxAge:   "24h",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LEADGEN_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("LEADGEN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LEADGEN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("LEADGEN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("LEADGEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LEADGEN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("LEADGEN_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = provider
	}
	if apiKey := os.Getenv("LEADGEN_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("LEADGEN_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}

	// Pipeline configuration
	if timeout := os.Getenv("LEADGEN_STAGE_TIMEOUT"); timeout != "" {
		config.LeadGen.StageTimeout = timeout
	}

	// Retention configuration
	if maxAge := os.Getenv("LEADGEN_RETENTION_MAX_AGE"); maxAge != "" {
		config.Retention.MaxAge = maxAge
	}
	if schedule := os.Getenv("LEADGEN_RETENTION_SCHEDULE"); schedule != "" {
		config.Retention.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
