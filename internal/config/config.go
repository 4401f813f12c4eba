// Package config loads application configuration from environment variables
// and optional .env files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the application configuration.
type Config struct {
	// UserID scopes all ledger data. Single-user deployments set it once.
	UserID string

	// DatabasePath is the SQLite database file.
	DatabasePath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	Gemini   GeminiConfig
	Transfer TransferConfig
}

// GeminiConfig configures the AI categorization provider. Categorization is
// optional; with an empty APIKey the importer falls back to rules plus the
// uncategorized accounts.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether AI categorization should be wired in.
func (g GeminiConfig) Enabled() bool { return g.APIKey != "" }

// TransferConfig tunes internal transfer pairing.
type TransferConfig struct {
	// MatchWindowDays is the booking-date tolerance when pairing the two
	// bank feeds of one internal transfer.
	MatchWindowDays int
}

// Load reads configuration from the environment. A .env file from the
// current directory is merged in when present; envPath overrides the
// default location.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("Load: loading env file %s: %w", envPath[0], err)
		}
	} else {
		_ = godotenv.Load()
	}

	matchWindow, err := parseIntEnv("KONTOBUCH_TRANSFER_WINDOW_DAYS", 3)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	cfg := &Config{
		UserID:       getEnvOrDefault("KONTOBUCH_USER_ID", "default"),
		DatabasePath: getEnvOrDefault("KONTOBUCH_DB_PATH", "kontobuch.db"),
		LogLevel:     getEnvOrDefault("KONTOBUCH_LOG_LEVEL", "info"),
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Transfer: TransferConfig{
			MatchWindowDays: matchWindow,
		},
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %q", key, value)
	}
	return parsed, nil
}
