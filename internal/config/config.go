package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Rule backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

var validBackends = []string{BackendFile, BackendSQLite, BackendSheets}

type Config struct {
	// Rule source selection
	RulesBackend string
	TaxRulesDir  string

	// Database
	SQLiteDBPath string

	// Rule cache
	RuleCacheSize int
	RuleCacheTTL  time.Duration

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	RulesSyncInterval time.Duration
	SyncParallelism   int

	// Logging
	LogLevel  string
	LogFormat string

	DefaultCountry string
}

func Load() *Config {
	return &Config{
		RulesBackend: strings.ToLower(getEnv("RULES_BACKEND", BackendFile)),
		TaxRulesDir:  getEnv("TAX_RULES_DIR", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetly.db"),

		RuleCacheSize: getEnvInt("RULE_CACHE_SIZE", 64),
		RuleCacheTTL:  getEnvDuration("RULE_CACHE_TTL", time.Hour),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		RulesSyncInterval: getEnvDuration("RULES_SYNC_INTERVAL", 6*time.Hour),
		SyncParallelism:   getEnvInt("SYNC_PARALLELISM", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DefaultCountry: strings.ToUpper(getEnv("DEFAULT_COUNTRY", "NG")),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.RulesBackend) {
		errors = append(errors, fmt.Sprintf("invalid rules backend '%s': must be one of %v", c.RulesBackend, validBackends))
	}

	if c.TaxRulesDir != "" {
		if info, err := os.Stat(c.TaxRulesDir); err != nil {
			errors = append(errors, fmt.Sprintf("tax rules directory '%s' is not readable: %v", c.TaxRulesDir, err))
		} else if !info.IsDir() {
			errors = append(errors, fmt.Sprintf("tax rules directory '%s' is not a directory", c.TaxRulesDir))
		}
	}

	if c.RulesBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.RulesBackend == BackendSheets {
		errors = append(errors, c.sheetsProblems()...)
	}

	// A zero size or TTL turns the rule cache off.
	if c.RuleCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid rule cache size %d: must be 0 (disabled) or more", c.RuleCacheSize))
	} else if c.RuleCacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rule cache size %d: must be at most 10000", c.RuleCacheSize))
	}
	if c.RuleCacheTTL < 0 || (c.RuleCacheTTL > 0 && c.RuleCacheTTL < time.Second) {
		errors = append(errors, fmt.Sprintf("invalid rule cache TTL %v: must be 0 (disabled) or at least 1 second", c.RuleCacheTTL))
	}

	if c.RulesSyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rules sync interval %v: must be at least 1 minute", c.RulesSyncInterval))
	} else if c.RulesSyncInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rules sync interval %v: must be at most 7 days", c.RulesSyncInterval))
	}
	if c.SyncParallelism < 1 || c.SyncParallelism > 32 {
		errors = append(errors, fmt.Sprintf("invalid sync parallelism %d: must be between 1 and 32", c.SyncParallelism))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !isCountryCode(c.DefaultCountry) {
		errors = append(errors, fmt.Sprintf("invalid default country '%s': must be a 2 or 3 letter code", c.DefaultCountry))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateSheets checks only the Google Sheets settings; used by commands
// that read the spreadsheet regardless of RULES_BACKEND.
func (c *Config) ValidateSheets() error {
	if problems := c.sheetsProblems(); len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func (c *Config) sheetsProblems() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets")
	}
	hasJSON := c.GoogleServiceAccountJSON != ""
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasJSON && !hasFile && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for sheets")
	}
	if hasFile && !hasJSON {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errors
}

func isCountryCode(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
