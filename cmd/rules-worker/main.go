package main

import (
	"context"
	"os"
	"time"

	"budgetly/internal/cli"
	applog "budgetly/internal/log"
	"budgetly/internal/rules/google"
	"budgetly/internal/services"
	"budgetly/internal/storage"
	"budgetly/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Rules worker needs Google Sheets settings", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting rules-worker",
		applog.FieldOperation, applog.OpStartup,
		"interval", cfg.RulesSyncInterval,
		applog.FieldDBPath, cfg.SQLiteDBPath)

	sheet, err := google.New(context.Background(), google.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewRuleRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, applog.FieldDBPath, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	syncer := services.NewRuleSyncer(sheet, repo.WithSource("sheets"), cfg.SyncParallelism, logger)
	w := worker.NewRuleSyncWorker(syncer, cfg.RulesSyncInterval, logger.Logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := w.Stop(shutdownCtx); err != nil {
			logger.Warn("Rule sync worker did not stop cleanly", applog.FieldError, err)
		}
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start rule sync worker", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("rules-worker stopped", applog.FieldOperation, applog.OpShutdown)
}
