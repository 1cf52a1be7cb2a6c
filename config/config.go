package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalTracker/internal/adapters/logger" // Import the logger package for LogLevel
	"signalTracker/internal/ports"
)

// Selector values accepted in the environment.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"

	ProviderYahoo   = "yahoo"
	ProviderBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Trade table persistence
	TradesBackend string // "csv" or "sqlite"
	TradesFile    string // CSV ledger location
	DBPath        string // SQLite ledger location

	// Quote provider
	QuoteProvider string        // "yahoo" or "binance"
	QuoteTimeout  time.Duration // per-symbol lookup bound during revaluation
	HTTPProxy     string        // optional proxy for the Yahoo client

	// Binance API (ticker endpoints are public, keys may stay empty)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Signal ingestion
	SignalsDir string // where the scanner drops daily_signal_*.json batches

	// Scheduling (trackerd)
	UpdateCron string // five-field cron spec for the revaluation job

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Trade table persistence
	cfg.TradesBackend = strings.ToLower(getEnv("TRADES_BACKEND", BackendCSV))
	if cfg.TradesBackend != BackendCSV && cfg.TradesBackend != BackendSQLite {
		errs = append(errs, fmt.Sprintf("TRADES_BACKEND must be %q or %q, got %q", BackendCSV, BackendSQLite, cfg.TradesBackend))
	}
	cfg.TradesFile = getEnv("TRADES_FILE", "./tracking/trades.csv")
	if cfg.TradesFile == "" {
		errs = append(errs, "TRADES_FILE must be set")
	}
	cfg.DBPath = getEnv("DB_PATH", "./tracking/trades.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Quote provider
	cfg.QuoteProvider = strings.ToLower(getEnv("QUOTE_PROVIDER", ProviderYahoo))
	if cfg.QuoteProvider != ProviderYahoo && cfg.QuoteProvider != ProviderBinance {
		errs = append(errs, fmt.Sprintf("QUOTE_PROVIDER must be %q or %q, got %q", ProviderYahoo, ProviderBinance, cfg.QuoteProvider))
	}

	quoteTimeoutSeconds, err := getEnvAsIntRequired("QUOTE_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUOTE_TIMEOUT_SECONDS: %v", err))
	} else if quoteTimeoutSeconds <= 0 {
		errs = append(errs, "QUOTE_TIMEOUT_SECONDS must be positive")
	}
	cfg.QuoteTimeout = time.Duration(quoteTimeoutSeconds) * time.Second

	cfg.HTTPProxy = getEnv("HTTP_PROXY", "")

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Signal ingestion
	cfg.SignalsDir = getEnv("SIGNALS_DIR", "./results/live_signals")
	if cfg.SignalsDir == "" {
		errs = append(errs, "SIGNALS_DIR must be set")
	}

	// Scheduling: weekdays after the US close unless overridden
	cfg.UpdateCron = getEnv("UPDATE_CRON", "30 16 * * 1-5")
	if cfg.UpdateCron == "" {
		errs = append(errs, "UPDATE_CRON must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
