// Package config loads the engine configuration from environment
// variables. Every recognized option lives under the MIRROR_ prefix;
// any other MIRROR_* key present in the environment is rejected at load
// time so typos fail fast instead of silently falling back to defaults.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Source venue (Binance USDT-M futures)
	SourceAPIKey    string
	SourceAPISecret string
	SourceContract  string

	// Mirror venue (Gate-style futures REST API)
	MirrorAPIKey    string
	MirrorAPISecret string
	MirrorBaseURL   string
	MirrorContract  string
	ContractUnit    float64 // base units per contract on the mirror venue

	// Engine knobs
	EnabledDefault      bool
	RatioDefault        float64
	TriggerScanInterval time.Duration
	PositionSyncEvery   time.Duration
	MarginGuardEvery    time.Duration
	PriceRefreshEvery   time.Duration
	MinimumMarginUSD    float64
	CloseReachThreshold float64   // USD band for "close trigger reached"
	HashOffsetFractions []float64 // empty means absolute USD offsets

	// Notifications (Telegram)
	NotifyBotToken string
	NotifyChatID   string

	// Audit storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// Ratio bounds for the operator-controlled multiplier.
const (
	RatioMin = 0.1
	RatioMax = 10.0
)

// recognizedKeys is the closed set of MIRROR_* options. LOG_LEVEL lives
// outside the prefix and is always accepted.
var recognizedKeys = map[string]bool{
	"MIRROR_SOURCE_API_KEY":            true,
	"MIRROR_SOURCE_API_SECRET":         true,
	"MIRROR_SOURCE_CONTRACT":           true,
	"MIRROR_MIRROR_API_KEY":            true,
	"MIRROR_MIRROR_API_SECRET":         true,
	"MIRROR_MIRROR_BASE_URL":           true,
	"MIRROR_MIRROR_CONTRACT":           true,
	"MIRROR_CONTRACT_UNIT":             true,
	"MIRROR_ENABLED_DEFAULT":           true,
	"MIRROR_RATIO_DEFAULT":             true,
	"MIRROR_TRIGGER_SCAN_INTERVAL_MS":  true,
	"MIRROR_POSITION_SYNC_INTERVAL_S":  true,
	"MIRROR_MARGIN_GUARD_INTERVAL_S":   true,
	"MIRROR_PRICE_REFRESH_INTERVAL_S":  true,
	"MIRROR_MINIMUM_MARGIN_USD":        true,
	"MIRROR_CLOSE_REACH_THRESHOLD_USD": true,
	"MIRROR_HASH_OFFSET_FRACTIONS":     true,
	"MIRROR_NOTIFY_BOT_TOKEN":          true,
	"MIRROR_NOTIFY_CHAT_ID":            true,
	"MIRROR_STORAGE_MODE":              true,
	"MIRROR_HTTP_PORT":                 true,
	"MIRROR_POSTGRES_HOST":             true,
	"MIRROR_POSTGRES_PORT":             true,
	"MIRROR_POSTGRES_USER":             true,
	"MIRROR_POSTGRES_PASSWORD":         true,
	"MIRROR_POSTGRES_DB":               true,
	"MIRROR_POSTGRES_SSLMODE":          true,
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	if err := checkUnknownKeys(os.Environ()); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("MIRROR_HTTP_PORT", "8080"),

		SourceAPIKey:    os.Getenv("MIRROR_SOURCE_API_KEY"),
		SourceAPISecret: os.Getenv("MIRROR_SOURCE_API_SECRET"),
		SourceContract:  getEnvOrDefault("MIRROR_SOURCE_CONTRACT", "BTCUSDT"),

		MirrorAPIKey:    os.Getenv("MIRROR_MIRROR_API_KEY"),
		MirrorAPISecret: os.Getenv("MIRROR_MIRROR_API_SECRET"),
		MirrorBaseURL:   getEnvOrDefault("MIRROR_MIRROR_BASE_URL", "https://api.gateio.ws"),
		MirrorContract:  getEnvOrDefault("MIRROR_MIRROR_CONTRACT", "BTC_USDT"),
		ContractUnit:    getFloat64OrDefault("MIRROR_CONTRACT_UNIT", 0.0001),

		EnabledDefault:      getBoolOrDefault("MIRROR_ENABLED_DEFAULT", true),
		RatioDefault:        getFloat64OrDefault("MIRROR_RATIO_DEFAULT", 1.0),
		TriggerScanInterval: time.Duration(getIntOrDefault("MIRROR_TRIGGER_SCAN_INTERVAL_MS", 200)) * time.Millisecond,
		PositionSyncEvery:   time.Duration(getIntOrDefault("MIRROR_POSITION_SYNC_INTERVAL_S", 30)) * time.Second,
		MarginGuardEvery:    time.Duration(getIntOrDefault("MIRROR_MARGIN_GUARD_INTERVAL_S", 300)) * time.Second,
		PriceRefreshEvery:   time.Duration(getIntOrDefault("MIRROR_PRICE_REFRESH_INTERVAL_S", 5)) * time.Second,
		MinimumMarginUSD:    getFloat64OrDefault("MIRROR_MINIMUM_MARGIN_USD", 10.0),
		CloseReachThreshold: getFloat64OrDefault("MIRROR_CLOSE_REACH_THRESHOLD_USD", 200.0),

		NotifyBotToken: os.Getenv("MIRROR_NOTIFY_BOT_TOKEN"),
		NotifyChatID:   os.Getenv("MIRROR_NOTIFY_CHAT_ID"),

		StorageMode:  getEnvOrDefault("MIRROR_STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("MIRROR_POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("MIRROR_POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("MIRROR_POSTGRES_USER", "mirror"),
		PostgresPass: getEnvOrDefault("MIRROR_POSTGRES_PASSWORD", "mirror"),
		PostgresDB:   getEnvOrDefault("MIRROR_POSTGRES_DB", "perp_mirror"),
		PostgresSSL:  getEnvOrDefault("MIRROR_POSTGRES_SSLMODE", "disable"),
	}

	if raw := os.Getenv("MIRROR_HASH_OFFSET_FRACTIONS"); raw != "" {
		fractions, err := parseFractions(raw)
		if err != nil {
			return nil, fmt.Errorf("MIRROR_HASH_OFFSET_FRACTIONS: %w", err)
		}
		cfg.HashOffsetFractions = fractions
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.SourceAPIKey == "" || c.SourceAPISecret == "" {
		return fmt.Errorf("MIRROR_SOURCE_API_KEY and MIRROR_SOURCE_API_SECRET are required")
	}
	if c.MirrorAPIKey == "" || c.MirrorAPISecret == "" {
		return fmt.Errorf("MIRROR_MIRROR_API_KEY and MIRROR_MIRROR_API_SECRET are required")
	}
	if c.SourceContract == "" || c.MirrorContract == "" {
		return fmt.Errorf("source and mirror contracts cannot be empty")
	}
	if c.RatioDefault < RatioMin || c.RatioDefault > RatioMax {
		return fmt.Errorf("MIRROR_RATIO_DEFAULT must be in [%.1f, %.1f], got %f", RatioMin, RatioMax, c.RatioDefault)
	}
	if c.TriggerScanInterval <= 0 {
		return fmt.Errorf("MIRROR_TRIGGER_SCAN_INTERVAL_MS must be positive")
	}
	if c.ContractUnit <= 0 {
		return fmt.Errorf("MIRROR_CONTRACT_UNIT must be positive, got %f", c.ContractUnit)
	}
	if c.MinimumMarginUSD < 0 {
		return fmt.Errorf("MIRROR_MINIMUM_MARGIN_USD cannot be negative")
	}
	if c.CloseReachThreshold <= 0 {
		return fmt.Errorf("MIRROR_CLOSE_REACH_THRESHOLD_USD must be positive")
	}
	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("MIRROR_STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}
	return nil
}

// checkUnknownKeys rejects MIRROR_-prefixed environment keys outside the
// recognized set.
func checkUnknownKeys(environ []string) error {
	var unknown []string
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "MIRROR_") {
			continue
		}
		if !recognizedKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unrecognized configuration options: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func parseFractions(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	fractions := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse fraction %q: %w", p, err)
		}
		if f <= 0 || f >= 1 {
			return nil, fmt.Errorf("fraction %f out of (0, 1)", f)
		}
		fractions = append(fractions, f)
	}
	return fractions, nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}
