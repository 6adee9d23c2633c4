package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultAllowedOrigin = "http://localhost:5173"
	defaultDataFilePath  = "data/post_it_store.json"
	defaultCookieTTL     = 72 * time.Hour
)

// Config aggregates runtime settings for the post-it API.
type Config struct {
	ListenAddr       string
	AllowedOrigins   []string
	PublicBaseURL    string
	DataFilePath     string
	DatabaseURL      string
	KVRestURL        string
	KVRestToken      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	MollieAPIKey     string
	MollieBaseURL    string
	AdminSecret      string
	CookieSigningKey string
	CookieTTL        time.Duration
	LLMTimeout       time.Duration
	RewriteTimeout   time.Duration
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DataFilePath = defaultIfEmpty(cfg.DataFilePath, defaultDataFilePath)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = defaultCookieTTL
	}
	if strings.TrimSpace(cfg.CookieSigningKey) == "" {
		return fmt.Errorf("cookie signing key is required")
	}
	return nil
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
