package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		RulesBackend:      BackendFile,
		SQLiteDBPath:      "./test.db",
		RuleCacheSize:     64,
		RuleCacheTTL:      time.Hour,
		RulesSyncInterval: 6 * time.Hour,
		SyncParallelism:   4,
		LogLevel:          "info",
		LogFormat:         "text",
		DefaultCountry:    "NG",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:   "valid file backend config",
			mutate: func(c *Config) {},
		},
		{
			name: "valid sqlite backend config",
			mutate: func(c *Config) {
				c.RulesBackend = BackendSQLite
				c.SQLiteDBPath = filepath.Join(os.TempDir(), "budgetly-config-test", "rules.db")
			},
		},
		{
			name: "valid sheets backend config",
			mutate: func(c *Config) {
				c.RulesBackend = BackendSheets
				c.GoogleSpreadsheetID = "123456789"
				c.GoogleServiceAccountJSON = "{}"
			},
		},
		{
			name:        "invalid backend",
			mutate:      func(c *Config) { c.RulesBackend = "postgres" },
			wantErr:     true,
			errorString: "invalid rules backend 'postgres'",
		},
		{
			name: "sqlite backend without path",
			mutate: func(c *Config) {
				c.RulesBackend = BackendSQLite
				c.SQLiteDBPath = ""
			},
			wantErr:     true,
			errorString: "SQLite database path cannot be empty",
		},
		{
			name: "sheets backend missing spreadsheet",
			mutate: func(c *Config) {
				c.RulesBackend = BackendSheets
				c.GoogleServiceAccountJSON = "{}"
			},
			wantErr:     true,
			errorString: "Google Spreadsheet ID is required",
		},
		{
			name: "sheets backend missing service account file",
			mutate: func(c *Config) {
				c.RulesBackend = BackendSheets
				c.GoogleSpreadsheetID = "123456789"
				c.GoogleServiceAccountFile = "/non/existent/file.json"
			},
			wantErr:     true,
			errorString: "Google service account file does not exist",
		},
		{
			name:        "missing rules dir",
			mutate:      func(c *Config) { c.TaxRulesDir = "/non/existent/rules" },
			wantErr:     true,
			errorString: "tax rules directory '/non/existent/rules' is not readable",
		},
		{
			name:        "negative cache size",
			mutate:      func(c *Config) { c.RuleCacheSize = -1 },
			wantErr:     true,
			errorString: "invalid rule cache size -1",
		},
		{
			name:   "cache disabled by zero size",
			mutate: func(c *Config) { c.RuleCacheSize = 0 },
		},
		{
			name:   "cache disabled by zero TTL",
			mutate: func(c *Config) { c.RuleCacheTTL = 0 },
		},
		{
			name:        "cache TTL too short",
			mutate:      func(c *Config) { c.RuleCacheTTL = 500 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid rule cache TTL 500ms",
		},
		{
			name:        "sync interval too short",
			mutate:      func(c *Config) { c.RulesSyncInterval = 30 * time.Second },
			wantErr:     true,
			errorString: "invalid rules sync interval 30s: must be at least 1 minute",
		},
		{
			name:        "sync interval too long",
			mutate:      func(c *Config) { c.RulesSyncInterval = 8 * 24 * time.Hour },
			wantErr:     true,
			errorString: "must be at most 7 days",
		},
		{
			name:        "bad parallelism",
			mutate:      func(c *Config) { c.SyncParallelism = 0 },
			wantErr:     true,
			errorString: "invalid sync parallelism 0",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.LogLevel = "loud" },
			wantErr:     true,
			errorString: "invalid log level 'loud'",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			wantErr:     true,
			errorString: "invalid log format 'xml'",
		},
		{
			name:        "bad default country",
			mutate:      func(c *Config) { c.DefaultCountry = "N1" },
			wantErr:     true,
			errorString: "invalid default country 'N1'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Config.Validate() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Config.Validate() error = %v, want error containing %v", err.Error(), tt.errorString)
				}
			} else if err != nil {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.RulesBackend = "nope"
	cfg.RuleCacheSize = -1
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := strings.Count(err.Error(), "\n- "); n != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", n, err)
	}
}

func TestConfig_ValidateSheets(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	cfg := validConfig()
	if err := cfg.ValidateSheets(); err == nil {
		t.Fatalf("expected sheets settings to be required")
	}

	file := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(file, []byte(`{"type":"service_account"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.GoogleSpreadsheetID = "123"
	cfg.GoogleServiceAccountFile = file
	if err := cfg.ValidateSheets(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.GoogleServiceAccountFile = ""
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", file)
	if err := cfg.ValidateSheets(); err != nil {
		t.Fatalf("application default credentials should be accepted: %v", err)
	}
}

func TestLoad(t *testing.T) {
	keys := []string{
		"RULES_BACKEND", "TAX_RULES_DIR", "SQLITE_DB_PATH", "RULE_CACHE_SIZE", "RULE_CACHE_TTL",
		"RULES_SYNC_INTERVAL", "SYNC_PARALLELISM", "LOG_LEVEL", "LOG_FORMAT", "DEFAULT_COUNTRY",
	}

	t.Run("default values", func(t *testing.T) {
		for _, k := range keys {
			t.Setenv(k, "")
		}
		cfg := Load()

		if cfg.RulesBackend != BackendFile {
			t.Errorf("Load() RulesBackend = %v, want file", cfg.RulesBackend)
		}
		if cfg.SQLiteDBPath != "./data/budgetly.db" {
			t.Errorf("Load() SQLiteDBPath = %v, want ./data/budgetly.db", cfg.SQLiteDBPath)
		}
		if cfg.RuleCacheSize != 64 || cfg.RuleCacheTTL != time.Hour {
			t.Errorf("Load() cache = %d/%v, want 64/1h", cfg.RuleCacheSize, cfg.RuleCacheTTL)
		}
		if cfg.RulesSyncInterval != 6*time.Hour {
			t.Errorf("Load() RulesSyncInterval = %v, want 6h", cfg.RulesSyncInterval)
		}
		if cfg.DefaultCountry != "NG" || cfg.LogLevel != "info" || cfg.LogFormat != "text" {
			t.Errorf("Load() unexpected defaults: %+v", cfg)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("defaults should validate: %v", err)
		}
	})

	t.Run("environment variables", func(t *testing.T) {
		t.Setenv("RULES_BACKEND", "SQLite")
		t.Setenv("SQLITE_DB_PATH", "/tmp/test.db")
		t.Setenv("RULE_CACHE_SIZE", "8")
		t.Setenv("RULE_CACHE_TTL", "5m")
		t.Setenv("RULES_SYNC_INTERVAL", "1h")
		t.Setenv("DEFAULT_COUNTRY", "gb")
		cfg := Load()

		if cfg.RulesBackend != BackendSQLite {
			t.Errorf("Load() RulesBackend = %v, want sqlite", cfg.RulesBackend)
		}
		if cfg.SQLiteDBPath != "/tmp/test.db" {
			t.Errorf("Load() SQLiteDBPath = %v", cfg.SQLiteDBPath)
		}
		if cfg.RuleCacheSize != 8 || cfg.RuleCacheTTL != 5*time.Minute {
			t.Errorf("Load() cache = %d/%v, want 8/5m", cfg.RuleCacheSize, cfg.RuleCacheTTL)
		}
		if cfg.RulesSyncInterval != time.Hour {
			t.Errorf("Load() RulesSyncInterval = %v, want 1h", cfg.RulesSyncInterval)
		}
		if cfg.DefaultCountry != "GB" {
			t.Errorf("Load() DefaultCountry = %v, want GB", cfg.DefaultCountry)
		}
	})

	t.Run("malformed numbers fall back to defaults", func(t *testing.T) {
		t.Setenv("RULE_CACHE_SIZE", "many")
		t.Setenv("RULE_CACHE_TTL", "forever")
		cfg := Load()
		if cfg.RuleCacheSize != 64 || cfg.RuleCacheTTL != time.Hour {
			t.Errorf("Load() cache = %d/%v, want defaults", cfg.RuleCacheSize, cfg.RuleCacheTTL)
		}
	})
}
