package tax

import (
	"maps"
	"math"
	"slices"
	"sort"
)

// Compute applies rule to in and returns the tax breakdown.
//
// It never fails: negative or NaN amounts are clamped to zero, and a rule
// with no brackets yields zero tax. Brackets are applied in ascending order of
// their lower bound regardless of how the rule lists them, and bands that
// receive no income are left out of TaxByBracket.
func Compute(rule Rule, in Input) Result {
	gross := nonNegative(in.GrossAnnual)

	allowances := sumValues(rule.Allowances) + sumValues(in.Allowances)

	var deductions float64
	for _, name := range sortedKeys(in.Deductions) {
		claimed := nonNegative(in.Deductions[name])
		if d, ok := rule.Deductions[name]; ok && d.Cap != nil {
			claimed = math.Min(claimed, *d.Cap)
		}
		deductions += claimed
	}

	taxable := gross - allowances - deductions
	if !(taxable > 0) {
		taxable = 0
	}

	brackets := slices.Clone(rule.Brackets)
	sort.SliceStable(brackets, func(i, j int) bool {
		return lowerBound(brackets[i]) < lowerBound(brackets[j])
	})

	byBracket := make([]BracketTax, 0, len(brackets))
	var totalTax float64
	for _, b := range brackets {
		lower := lowerBound(b)
		upper := math.Inf(1)
		if b.To != nil {
			upper = *b.To
		}
		amount := math.Max(0, math.Min(taxable, upper)-lower)
		if amount <= 0 {
			continue
		}
		tax := amount * b.Rate
		byBracket = append(byBracket, BracketTax{
			From:    lower,
			To:      clonePtr(b.To),
			Rate:    b.Rate,
			Taxable: amount,
			Tax:     tax,
		})
		totalTax += tax
	}

	net := gross - totalTax
	return Result{
		GrossAnnual:    gross,
		TaxableIncome:  taxable,
		TaxByBracket:   byBracket,
		TotalTaxAnnual: Round2(totalTax),
		NetAnnual:      Round2(net),
		NetMonthly:     Round2(net / 12),
		RuleVersion:    rule.Version,
	}
}

// Round2 rounds x to two decimal places, halves away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func lowerBound(b Bracket) float64 {
	if b.From == nil {
		return 0
	}
	return *b.From
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// sumValues adds map values in key order so the float result does not depend
// on map iteration order.
func sumValues(m map[string]float64) float64 {
	var total float64
	for _, k := range sortedKeys(m) {
		if v := m[k]; !math.IsNaN(v) {
			total += v
		}
	}
	return total
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
