package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetly/internal/cache"
	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/rules/cached"
	"budgetly/internal/rules/files"
	"budgetly/internal/rules/google"
	"budgetly/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend builds the configured primary source, chains the embedded
// rules behind it as a fallback, and puts the rule cache in front.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	fallback, err := FileSource(config.RulesDir)
	if err != nil {
		return nil, err
	}

	var result *BackendResult
	switch config.Type {
	case FileBackend:
		result = &BackendResult{Source: fallback}
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config, fallback)
	case SheetsBackend:
		result, err = f.createSheetsBackend(ctx, config, fallback)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.withCache(result, config)
	f.logger.InfoContext(ctx, "Initialized rule backend",
		applog.FieldComponent, applog.ComponentBackend,
		"backend", config.Type,
		"rules_dir", config.RulesDir,
		"cache_size", config.CacheSize,
		"cache_ttl", config.CacheTTL)
	return result, nil
}

// FileSource returns the embedded rules, overlaid by dir when one is given.
func FileSource(dir string) (rules.Source, error) {
	defaults := files.NewDefault()
	if dir == "" {
		return defaults, nil
	}
	overlay, err := files.NewFromDir(dir)
	if err != nil {
		return nil, err
	}
	return rules.Chain{overlay, defaults}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config, fallback rules.Source) (*BackendResult, error) {
	repo, err := storage.NewRuleRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite rule store", applog.FieldComponent, applog.ComponentBackend, applog.FieldDBPath, config.SQLiteDBPath)

	return &BackendResult{
		Source:  rules.Chain{repo, fallback},
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config, fallback rules.Source) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets rule source", applog.FieldComponent, applog.ComponentBackend)

	return &BackendResult{Source: rules.Chain{cli, fallback}}, nil
}

// withCache wraps the source in the rule cache and starts a sweeper whose
// shutdown is folded into Cleanup.
func (f *DefaultFactory) withCache(result *BackendResult, config Config) {
	size, ttl := config.CacheSize, config.CacheTTL
	if size <= 0 || ttl <= 0 {
		return
	}
	c := cached.New(result.Source, size, ttl, f.logger)
	manager := cache.NewManager(f.logger)
	manager.Register(c.Cache())
	manager.StartCleanup(ttl)

	inner := result.Cleanup
	result.Source = c
	result.Cached = c
	result.Cleanup = func() error {
		manager.Stop()
		if inner != nil {
			return inner()
		}
		return nil
	}
}
