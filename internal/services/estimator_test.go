package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"budgetly/internal/rules/memory"
	"budgetly/internal/tax"
)

func sampleRule() tax.Rule {
	return tax.Rule{
		Country:       "NG",
		Version:       "2024.1",
		EffectiveDate: "2024-01-01",
		Currency:      "NGN",
		Brackets: []tax.Bracket{
			{From: tax.Amount(0), To: tax.Amount(500000), Rate: 0.1},
			{From: tax.Amount(500000), Rate: 0.2},
		},
		Allowances: map[string]float64{"personal": 50000},
		Deductions: map[string]tax.DeductionRule{"pension": {Cap: tax.Amount(60000)}},
	}
}

func newTestEstimator() *Estimator {
	return NewEstimator(memory.New(sampleRule(), tax.Rule{Country: "XX", Version: "0"}), "NG", nil)
}

func TestEstimate(t *testing.T) {
	est, err := newTestEstimator().Estimate(context.Background(), EstimateRequest{GrossAnnual: 1000000})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.Country != "NG" || est.Currency != "NGN" || est.RuleVersion != "2024.1" || est.EffectiveDate != "2024-01-01" {
		t.Fatalf("unexpected metadata: %+v", est)
	}
	r := est.Result
	if r.TotalTaxAnnual != 140000 || r.NetAnnual != 860000 || r.NetMonthly != 71666.67 {
		t.Fatalf("unexpected result: %+v", r)
	}
	want := []Band{
		{Label: "10% on 0.00 to 500,000.00", Rate: 0.1, Amount: 50000},
		{Label: "20% above 500,000.00", Rate: 0.2, Amount: 90000},
	}
	if len(est.Bands) != len(want) {
		t.Fatalf("bands = %+v", est.Bands)
	}
	for i := range want {
		if est.Bands[i] != want[i] {
			t.Errorf("band %d = %+v, want %+v", i, est.Bands[i], want[i])
		}
	}
}

func TestEstimateMonthlyIsAnnualised(t *testing.T) {
	e := newTestEstimator()
	ctx := context.Background()

	monthly, err := e.Estimate(ctx, EstimateRequest{Country: "ng", GrossMonthly: 50000,
		Deductions: map[string]float64{"pension": 100000}})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if monthly.Result.GrossAnnual != 600000 || monthly.Result.TotalTaxAnnual != 49000 {
		t.Fatalf("unexpected result: %+v", monthly.Result)
	}

	both, _ := e.Estimate(ctx, EstimateRequest{GrossAnnual: 100, GrossMonthly: 50000})
	if both.Result.GrossAnnual != 100 {
		t.Fatalf("annual figure should win, got %v", both.Result.GrossAnnual)
	}
}

func TestEstimateErrors(t *testing.T) {
	e := newTestEstimator()
	ctx := context.Background()
	cases := []struct {
		name string
		req  EstimateRequest
		want error
	}{
		{"unknown country", EstimateRequest{Country: "FR", GrossAnnual: 1}, ErrUnsupportedCountry},
		{"invalid country", EstimateRequest{Country: "../x", GrossAnnual: 1}, ErrUnsupportedCountry},
		{"empty brackets", EstimateRequest{Country: "XX", GrossAnnual: 1}, ErrEmptyBrackets},
		{"nan income", EstimateRequest{GrossAnnual: math.NaN()}, ErrInvalidIncome},
		{"infinite monthly", EstimateRequest{GrossMonthly: math.Inf(1)}, ErrInvalidIncome},
		{"nan deduction", EstimateRequest{GrossAnnual: 1, Deductions: map[string]float64{"pension": math.NaN()}}, ErrInvalidIncome},
		{"infinite allowance", EstimateRequest{GrossAnnual: 1, Allowances: map[string]float64{"x": math.Inf(-1)}}, ErrInvalidIncome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Estimate(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEstimateNegativeIncomeIsClamped(t *testing.T) {
	est, err := newTestEstimator().Estimate(context.Background(), EstimateRequest{GrossAnnual: -5000})
	if err != nil {
		t.Fatalf("negative income is clamped by the engine, not rejected: %v", err)
	}
	if est.Result.TotalTaxAnnual != 0 || len(est.Bands) != 0 || est.Bands == nil {
		t.Fatalf("unexpected estimate: %+v", est)
	}
}

func TestBandsRoundsAmounts(t *testing.T) {
	bands := Bands(tax.Result{TaxByBracket: []tax.BracketTax{
		{From: 0, To: tax.Amount(1000), Rate: 0.075, Taxable: 1000, Tax: 75.00499},
	}})
	if len(bands) != 1 || bands[0].Amount != 75 || bands[0].Label != "7.5% on 0.00 to 1,000.00" {
		t.Fatalf("unexpected bands: %+v", bands)
	}
}
