package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budgetly/internal/backend"
	"budgetly/internal/core"
	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/rules/google"
	"budgetly/internal/services"
	"budgetly/internal/storage"
	"budgetly/internal/tax"
)

var errLintFailed = errors.New("rule lint found errors")

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect, lint and publish tax rule tables",
	}
	cmd.AddCommand(
		newRulesListCmd(a),
		newRulesShowCmd(a),
		newRulesHistoryCmd(a),
		newRulesLintCmd(a),
		newRulesImportCmd(a),
		newRulesSyncCmd(a),
	)
	return cmd
}

func newRulesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the countries the configured backend knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			be, err := a.rules(ctx)
			if err != nil {
				return err
			}
			a.warm(ctx, be)
			codes, err := be.Source.Countries(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(codes))
			for _, code := range codes {
				rule, err := be.Source.Rule(ctx, code)
				if err != nil {
					rows = append(rows, []string{code, errorStyle.Render(err.Error()), "", "", ""})
					continue
				}
				rows = append(rows, []string{
					rule.Country,
					rule.Version,
					rule.EffectiveDate,
					rule.Currency,
					strconv.Itoa(len(rule.Brackets)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderTable(Table{
				Title:   fmt.Sprintf("Rules (%s backend)", a.cfg.RulesBackend),
				Headers: []string{"Country", "Version", "Effective", "Currency", "Brackets"},
				Rows:    rows,
			}))
			return nil
		},
	}
}

func newRulesShowCmd(a *app) *cobra.Command {
	var (
		version string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "show COUNTRY",
		Short: "Show one country's rule table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				rule *tax.Rule
				err  error
			)
			if version != "" {
				repo, openErr := a.openStore()
				if openErr != nil {
					return openErr
				}
				defer repo.Close()
				rule, err = repo.RuleVersion(ctx, args[0], version)
			} else {
				be, beErr := a.rules(ctx)
				if beErr != nil {
					return beErr
				}
				rule, err = be.Source.Rule(ctx, args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rule)
			}
			renderRule(out, *rule)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "Show a stored version from the SQLite history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the rule as JSON")
	return cmd
}

func newRulesHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history COUNTRY",
		Short: "List the versions stored in SQLite for a country",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			versions, err := repo.Versions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No stored versions for "+strings.ToUpper(args[0])+"."))
				return nil
			}
			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				rows = append(rows, []string{
					v.Version,
					v.EffectiveDate,
					v.Source,
					v.Hash[:min(12, len(v.Hash))],
					v.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, RenderTable(Table{
				Title:   versions[0].Country + " history",
				Headers: []string{"Version", "Effective", "Source", "Hash", "Stored"},
				Rows:    rows,
			}))
			return nil
		},
	}
}

func newRulesLintCmd(a *app) *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "lint [COUNTRY...]",
		Short: "Check rule tables for gaps, overlaps and bad rates",
		Long:  "Lint rules from the configured backend, or rule files given with --file. Exits non-zero when any error is found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			failed := false

			report := func(name string, issues []rules.Issue) {
				if len(issues) == 0 {
					fmt.Fprintf(out, "%s  %s\n", totalStyle.Render("ok"), name)
					return
				}
				for _, is := range issues {
					style := warnStyle
					if is.Severity == rules.SeverityError {
						style = errorStyle
						failed = true
					}
					fmt.Fprintf(out, "%s  %s: %s\n", style.Render(string(is.Severity)), name, is.Message)
				}
			}

			for _, p := range paths {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				rule, err := rules.Decode(filepath.Base(p), data)
				if err != nil {
					fmt.Fprintf(out, "%s  %s: %v\n", errorStyle.Render("error"), p, err)
					failed = true
					continue
				}
				report(p, rules.Lint(rule))
			}

			if len(paths) == 0 || len(args) > 0 {
				be, err := a.rules(ctx)
				if err != nil {
					return err
				}
				codes := args
				if len(codes) == 0 {
					a.warm(ctx, be)
					if codes, err = be.Source.Countries(ctx); err != nil {
						return err
					}
				}
				for _, code := range codes {
					rule, err := be.Source.Rule(ctx, code)
					if err != nil {
						fmt.Fprintf(out, "%s  %s: %v\n", errorStyle.Render("error"), code, err)
						failed = true
						continue
					}
					report(rule.Country+" "+rule.Version, rules.Lint(*rule))
				}
			}

			a.logger.DebugContext(ctx, "Rules linted", applog.FieldOperation, applog.OpLint, "failed", failed)
			if failed {
				return errLintFailed
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "file", "f", nil, "Rule file to lint (repeatable)")
	return cmd
}

func newRulesImportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Publish the built-in and on-disk rule files into the SQLite history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.TaxRulesDir
			}
			src, err := backend.FileSource(dir)
			if err != nil {
				return err
			}
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			syncer := services.NewRuleSyncer(src, repo.WithSource("files"), a.cfg.SyncParallelism, a.logger)
			return a.runSync(cmd.Context(), cmd.OutOrStdout(), syncer)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of rule files (default TAX_RULES_DIR)")
	return cmd
}

func newRulesSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy rule tables from Google Sheets into the SQLite history once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateSheets(); err != nil {
				return err
			}
			ctx := cmd.Context()
			sheet, err := google.New(ctx, google.Config{
				SpreadsheetID:      a.cfg.GoogleSpreadsheetID,
				ServiceAccountJSON: a.cfg.GoogleServiceAccountJSON,
				ServiceAccountFile: a.cfg.GoogleServiceAccountFile,
			})
			if err != nil {
				return err
			}
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			syncer := services.NewRuleSyncer(sheet, repo.WithSource("sheets"), a.cfg.SyncParallelism, a.logger)
			return a.runSync(ctx, cmd.OutOrStdout(), syncer)
		},
	}
}

// openStore opens the SQLite history regardless of the configured backend.
func (a *app) openStore() (*storage.RuleRepository, error) {
	return storage.NewRuleRepository(a.cfg.SQLiteDBPath)
}

// warm fills the rule cache for every country in parallel before a command
// walks them one by one. A failure only costs the head start.
func (a *app) warm(ctx context.Context, be *backend.BackendResult) {
	if be.Cached == nil {
		return
	}
	if _, err := be.Cached.Preload(ctx, a.cfg.SyncParallelism); err != nil {
		a.logger.WarnContext(ctx, "Rule cache preload failed", applog.FieldError, err)
	}
}

// runSync runs one sync and drops any cached copies of the rules it saved,
// so a backend opened earlier in this process serves the new versions.
func (a *app) runSync(ctx context.Context, w io.Writer, syncer *services.RuleSyncer) error {
	report, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	if a.backend != nil && a.backend.Cached != nil && len(report.Saved) > 0 {
		a.backend.Cached.Invalidate(report.Saved...)
	}
	renderSyncReport(w, report)
	return report.Err()
}

func renderSyncReport(w io.Writer, r services.SyncReport) {
	list := func(codes []string) string {
		if len(codes) == 0 {
			return "-"
		}
		return strings.Join(codes, ", ")
	}
	failed := make([]string, 0, len(r.Failed))
	for code := range r.Failed {
		failed = append(failed, code)
	}
	fmt.Fprint(w, RenderKeyValues([][2]string{
		{"Countries", strconv.Itoa(r.Countries)},
		{"Saved", list(r.Saved)},
		{"Unchanged", list(r.Unchanged)},
		{"Skipped", list(r.Skipped)},
		{"Failed", list(sortStrings(failed))},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	}))
}

func renderRule(w io.Writer, rule tax.Rule) {
	title := fmt.Sprintf("%s %s", rule.Country, rule.Version)
	fmt.Fprintln(w, RenderTitle(title))
	fmt.Fprintln(w)
	pairs := [][2]string{
		{"Effective", rule.EffectiveDate},
		{"Currency", rule.Currency},
	}
	if rule.Notes != "" {
		pairs = append(pairs, [2]string{"Notes", rule.Notes})
	}
	fmt.Fprint(w, RenderKeyValues(pairs))

	rows := make([][]string, 0, len(rule.Brackets))
	for _, b := range rule.Brackets {
		from, to := "0.00", "-"
		if b.From != nil {
			from = core.FormatAmount(*b.From)
		}
		if b.To != nil {
			to = core.FormatAmount(*b.To)
		}
		rows = append(rows, []string{core.FormatRate(b.Rate), from, to})
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, RenderTable(Table{Title: "Brackets", Headers: []string{"Rate", "From", "To"}, Rows: rows}))

	if len(rule.Allowances) > 0 {
		rows = rows[:0]
		for _, name := range sortStrings(keys(rule.Allowances)) {
			rows = append(rows, []string{name, core.FormatAmount(rule.Allowances[name])})
		}
		fmt.Fprintln(w)
		fmt.Fprint(w, RenderTable(Table{Title: "Allowances", Headers: []string{"Name", "Amount"}, Rows: rows}))
	}
	if len(rule.Deductions) > 0 {
		rows = rows[:0]
		for _, name := range sortStrings(keys(rule.Deductions)) {
			limit := "uncapped"
			if c := rule.Deductions[name].Cap; c != nil {
				limit = core.FormatAmount(*c)
			}
			rows = append(rows, []string{name, limit})
		}
		fmt.Fprintln(w)
		fmt.Fprint(w, RenderTable(Table{Title: "Deductions", Headers: []string{"Name", "Cap"}, Rows: rows}))
	}
}
