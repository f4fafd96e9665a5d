package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     int
	LogLevel string

	Provider     string
	APIKey       string
	Model        string
	BaseURL      string
	ModelRetries int

	ChunkSize     int
	Termination   string
	MaxTurns      int
	ChunkTimeout  time.Duration
	Concurrency   int
	Validity      string
	PersonaFormat string
	OutputDir     string
	StreamFile    string
	StreamFormat  string
	TeamFile      string

	DatabaseURL   string
	NatsURL       string
	NatsToken     string
	SlackBotToken string
	SlackChannel  string
	APIToken      string
}

func Load() Config {
	return Config{
		Port:     envInt("COHORT_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),

		Provider:     envStr("COHORT_PROVIDER", "openai"),
		APIKey:       envStr("COHORT_API_KEY", ""),
		Model:        envStr("COHORT_MODEL", "gemini-2.0-flash"),
		BaseURL:      envStr("COHORT_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		ModelRetries: envInt("COHORT_MODEL_RETRIES", 3),

		ChunkSize:     envInt("COHORT_CHUNK_SIZE", 1000),
		Termination:   envStr("COHORT_TERMINATION", "TERMINATE"),
		MaxTurns:      envInt("COHORT_MAX_TURNS", 12),
		ChunkTimeout:  envDuration("COHORT_CHUNK_TIMEOUT", 10*time.Minute),
		Concurrency:   envInt("COHORT_CONCURRENCY", 4),
		Validity:      envStr("COHORT_VALIDITY", "strict"),
		PersonaFormat: envStr("COHORT_PERSONA_FORMAT", "zip"),
		OutputDir:     envStr("COHORT_OUTPUT_DIR", "."),
		StreamFile:    envStr("COHORT_STREAM_FILE", ""),
		StreamFormat:  envStr("COHORT_STREAM_FORMAT", "text"),
		TeamFile:      envStr("COHORT_TEAM_FILE", ""),

		DatabaseURL:   envStr("DATABASE_URL", ""),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_CHANNEL", ""),
		APIToken:      envStr("COHORT_API_TOKEN", ""),
	}
}

// Normalize lowercases and trims the enumerated settings so " Lenient" and
// "ZIP" mean the same as their canonical spellings.
func (c *Config) Normalize() {
	for _, v := range []*string{&c.Provider, &c.Validity, &c.PersonaFormat, &c.StreamFormat} {
		*v = strings.ToLower(strings.TrimSpace(*v))
	}
}

// Validate reports the first setting that would make a run impossible.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if strings.TrimSpace(c.Termination) == "" {
		return fmt.Errorf("termination marker is empty")
	}
	if !oneOf(c.Provider, "openai", "anthropic") {
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if !oneOf(c.Validity, "strict", "lenient") {
		return fmt.Errorf("unknown validity mode %q", c.Validity)
	}
	if !oneOf(c.PersonaFormat, "json", "zip", "text") {
		return fmt.Errorf("unknown persona format %q", c.PersonaFormat)
	}
	if !oneOf(c.StreamFormat, "json", "text") {
		return fmt.Errorf("unknown stream format %q", c.StreamFormat)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	v = strings.TrimSpace(v)
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
