package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"budgetly/internal/backend"
	"budgetly/internal/config"
	applog "budgetly/internal/log"
)

// app carries the state shared by every command in one invocation.
type app struct {
	cfg     *config.Config
	logger  *applog.Logger
	backend *backend.BackendResult

	flagBackend  string
	flagRulesDir string
	flagDBPath   string
	flagVerbose  bool
}

// NewRootCmd builds the budgetly command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "budgetly",
		Short:         "Progressive income tax estimates from versioned rule tables",
		Long:          "Estimate income tax and net pay by country, and manage the rule tables behind the estimates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.flagBackend, "backend", "", "Rule backend: file, sqlite or sheets (default from RULES_BACKEND)")
	root.PersistentFlags().StringVar(&a.flagRulesDir, "rules-dir", "", "Directory of rule files overriding the built-in ones")
	root.PersistentFlags().StringVar(&a.flagDBPath, "db", "", "SQLite database path (default from SQLITE_DB_PATH)")
	root.PersistentFlags().BoolVarP(&a.flagVerbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(newEstimateCmd(a))
	root.AddCommand(newRulesCmd(a))
	return root, a
}

// Execute is the main entry point called from main.go.
func Execute() {
	LoadEnvFile()
	root, a := newRootCmd()
	if err := execute(context.Background(), root, a); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// execute runs the tree and releases the backend whether or not the command
// failed; cobra skips post-run hooks after an error.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *app) setup() error {
	cfg := config.Load()
	if a.flagBackend != "" {
		cfg.RulesBackend = a.flagBackend
	}
	if a.flagRulesDir != "" {
		cfg.TaxRulesDir = a.flagRulesDir
	}
	if a.flagDBPath != "" {
		cfg.SQLiteDBPath = a.flagDBPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	// Keep the terminal quiet unless asked.
	level := slog.LevelWarn
	if a.flagVerbose {
		level = slog.LevelDebug
	} else if os.Getenv("LOG_LEVEL") != "" {
		level = applog.ParseLevel(cfg.LogLevel)
	}
	a.logger = applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	applog.SetDefault(a.logger)
	return nil
}

// rules returns the configured backend, creating it on first use.
func (a *app) rules(ctx context.Context) (*backend.BackendResult, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(a.logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	a.backend = res
	return res, nil
}

func (a *app) close() error {
	if a.backend == nil {
		return nil
	}
	err := a.backend.Close()
	a.backend = nil
	return err
}
