package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"budgetly/internal/core"
	"budgetly/internal/services"
)

func newEstimateCmd(a *app) *cobra.Command {
	var (
		country    string
		gross      string
		monthly    string
		deductions []string
		allowances []string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate income tax and net pay",
		Example: `  budgetly estimate --gross 1,000,000
  budgetly estimate -c gb --monthly 4,500 --deduction pension=500
  budgetly estimate -c us --gross 95000 --deduction traditionalIra=7000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := services.EstimateRequest{Country: country}
			var err error
			if gross == "" && monthly == "" {
				return fmt.Errorf("one of --gross or --monthly is required")
			}
			if gross != "" {
				if req.GrossAnnual, err = core.ParseAmount(gross); err != nil {
					return fmt.Errorf("--gross: %w", err)
				}
			}
			if monthly != "" {
				if req.GrossMonthly, err = core.ParseAmount(monthly); err != nil {
					return fmt.Errorf("--monthly: %w", err)
				}
			}
			if req.Deductions, err = core.ParseNamedAmounts(deductions); err != nil {
				return fmt.Errorf("--deduction: %w", err)
			}
			if req.Allowances, err = core.ParseNamedAmounts(allowances); err != nil {
				return fmt.Errorf("--allowance: %w", err)
			}

			ctx := cmd.Context()
			be, err := a.rules(ctx)
			if err != nil {
				return err
			}
			est, err := services.NewEstimator(be.Source, a.cfg.DefaultCountry, a.logger).Estimate(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(est)
			}
			renderEstimate(out, est)
			return nil
		},
	}

	cmd.Flags().StringVarP(&country, "country", "c", "", "Country code (default from DEFAULT_COUNTRY)")
	cmd.Flags().StringVarP(&gross, "gross", "g", "", "Gross annual income")
	cmd.Flags().StringVarP(&monthly, "monthly", "m", "", "Gross monthly income, used when --gross is not given")
	cmd.Flags().StringArrayVarP(&deductions, "deduction", "d", nil, "Claimed deduction as name=amount (repeatable)")
	cmd.Flags().StringArrayVarP(&allowances, "allowance", "a", nil, "Extra allowance as name=amount (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the estimate as JSON")
	return cmd
}

func renderEstimate(w io.Writer, est services.Estimate) {
	r := est.Result
	title := fmt.Sprintf("%s income tax  rules %s", est.Country, est.RuleVersion)
	if est.Currency != "" {
		title += "  (" + est.Currency + ")"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderTitle(title))
	fmt.Fprintln(w)
	fmt.Fprint(w, RenderKeyValues([][2]string{
		{"Gross annual", core.FormatAmount(r.GrossAnnual)},
		{"Taxable income", core.FormatAmount(r.TaxableIncome)},
		{"Tax annual", core.FormatAmount(r.TotalTaxAnnual)},
		{"Net annual", core.FormatAmount(r.NetAnnual)},
		{"Net monthly", core.FormatAmount(r.NetMonthly)},
	}))

	if len(est.Bands) == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("  No taxable income."))
		return
	}

	rows := make([][]string, 0, len(r.TaxByBracket)+2)
	for i, b := range r.TaxByBracket {
		rows = append(rows, []string{
			est.Bands[i].Label,
			core.FormatAmount(b.Taxable),
			core.FormatAmount(est.Bands[i].Amount),
		})
	}
	rows = append(rows, []string{"---"})
	rows = append(rows, []string{
		totalStyle.Render("Total"),
		totalStyle.Render(core.FormatAmount(r.TaxableIncome)),
		totalStyle.Render(core.FormatAmount(r.TotalTaxAnnual)),
	})
	fmt.Fprintln(w)
	fmt.Fprint(w, RenderTable(Table{
		Title:   "Breakdown",
		Headers: []string{"Band", "Taxable", "Tax"},
		Rows:    rows,
	}))
}
