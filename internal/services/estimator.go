package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"budgetly/internal/core"
	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

var (
	ErrUnsupportedCountry = errors.New("country not supported")
	ErrEmptyBrackets      = errors.New("tax rule has no brackets")
	ErrInvalidIncome      = errors.New("invalid income")
)

// EstimateRequest is what a caller supplies for one estimate. When
// GrossAnnual is zero a GrossMonthly figure is annualised.
type EstimateRequest struct {
	Country      string             `json:"country"`
	GrossAnnual  float64            `json:"grossAnnual"`
	GrossMonthly float64            `json:"grossMonthly,omitempty"`
	Deductions   map[string]float64 `json:"deductions,omitempty"`
	Allowances   map[string]float64 `json:"allowances,omitempty"`
}

// Band is one line of the display breakdown.
type Band struct {
	Label  string  `json:"label"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// Estimate is a computed result together with the rule that produced it.
type Estimate struct {
	Country       string     `json:"country"`
	Currency      string     `json:"currency,omitempty"`
	RuleVersion   string     `json:"ruleVersion,omitempty"`
	EffectiveDate string     `json:"effectiveDate,omitempty"`
	Result        tax.Result `json:"result"`
	Bands         []Band     `json:"bands"`
}

type Estimator struct {
	rules          rules.Source
	defaultCountry string
	logger         *applog.Logger
}

func NewEstimator(src rules.Source, defaultCountry string, logger *applog.Logger) *Estimator {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Estimator{
		rules:          src,
		defaultCountry: defaultCountry,
		logger:         logger.WithComponent(applog.ComponentEstimator),
	}
}

// Estimate resolves the rule for the request's country (or the default
// country) and runs the engine.
func (e *Estimator) Estimate(ctx context.Context, req EstimateRequest) (Estimate, error) {
	gross, err := annualGross(req)
	if err != nil {
		return Estimate{}, err
	}
	for name, v := range req.Deductions {
		if !finite(v) {
			return Estimate{}, fmt.Errorf("%w: deduction %s is %v", ErrInvalidIncome, name, v)
		}
	}
	for name, v := range req.Allowances {
		if !finite(v) {
			return Estimate{}, fmt.Errorf("%w: allowance %s is %v", ErrInvalidIncome, name, v)
		}
	}

	country := req.Country
	if country == "" {
		country = e.defaultCountry
	}
	rule := rules.LoadRuleForCountry(ctx, e.rules, country)
	if rule == nil {
		return Estimate{}, fmt.Errorf("%w: %q", ErrUnsupportedCountry, country)
	}
	if len(rule.Brackets) == 0 {
		return Estimate{}, fmt.Errorf("%w: %s %s", ErrEmptyBrackets, rule.Country, rule.Version)
	}

	start := time.Now()
	result := tax.Compute(*rule, tax.Input{
		GrossAnnual: gross,
		Deductions:  req.Deductions,
		Allowances:  req.Allowances,
	})

	fields := applog.NewFields().
		WithOperation(applog.OpEstimate).
		WithRule(rule.Country, rule.Version)
	fields[applog.FieldGrossAnnual] = result.GrossAnnual
	fields[applog.FieldTotalTax] = result.TotalTaxAnnual
	fields[applog.FieldDuration] = time.Since(start).Milliseconds()
	e.logger.DebugContext(ctx, "Tax estimated", fields.ToSlice()...)

	return Estimate{
		Country:       rule.Country,
		Currency:      rule.Currency,
		RuleVersion:   rule.Version,
		EffectiveDate: rule.EffectiveDate,
		Result:        result,
		Bands:         Bands(result),
	}, nil
}

func annualGross(req EstimateRequest) (float64, error) {
	if !finite(req.GrossAnnual) {
		return 0, fmt.Errorf("%w: gross annual is %v", ErrInvalidIncome, req.GrossAnnual)
	}
	if !finite(req.GrossMonthly) {
		return 0, fmt.Errorf("%w: gross monthly is %v", ErrInvalidIncome, req.GrossMonthly)
	}
	if req.GrossAnnual == 0 && req.GrossMonthly != 0 {
		return req.GrossMonthly * 12, nil
	}
	return req.GrossAnnual, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Bands turns the engine's per-bracket breakdown into display lines such as
// "7% on 0.00 to 300,000.00" or "24% above 3,200,000.00".
func Bands(result tax.Result) []Band {
	out := make([]Band, 0, len(result.TaxByBracket))
	for _, b := range result.TaxByBracket {
		var label string
		if b.To == nil {
			label = fmt.Sprintf("%s above %s", core.FormatRate(b.Rate), core.FormatAmount(b.From))
		} else {
			label = fmt.Sprintf("%s on %s to %s", core.FormatRate(b.Rate), core.FormatAmount(b.From), core.FormatAmount(*b.To))
		}
		out = append(out, Band{Label: label, Rate: b.Rate, Amount: tax.Round2(b.Tax)})
	}
	return out
}
