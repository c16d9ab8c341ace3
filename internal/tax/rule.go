// Package tax computes progressive income tax from a declarative bracket table.
//
// A Rule describes one jurisdiction's schedule: marginal-rate brackets, fixed
// allowances and per-deduction caps. Compute applies a Rule to a taxpayer's
// Input and returns the full breakdown. Rules are read-only reference data and
// may be shared freely between goroutines.
package tax

type (
	// Bracket is one marginal-rate band. A nil From is treated as 0 and a nil
	// To means the band is unbounded above.
	Bracket struct {
		From *float64 `json:"from" yaml:"from" toml:"from,omitempty"`
		To   *float64 `json:"to" yaml:"to" toml:"to,omitempty"`
		Rate float64  `json:"rate" yaml:"rate" toml:"rate"`
	}

	// DeductionRule bounds how much of a claimed deduction is creditable.
	// A nil Cap leaves the deduction uncapped.
	DeductionRule struct {
		Cap *float64 `json:"cap,omitempty" yaml:"cap,omitempty" toml:"cap,omitempty"`
	}

	// Rule is a versioned tax schedule for one country.
	Rule struct {
		Country       string                   `json:"country" yaml:"country" toml:"country"`
		Version       string                   `json:"version" yaml:"version" toml:"version"`
		EffectiveDate string                   `json:"effectiveDate" yaml:"effectiveDate" toml:"effectiveDate"`
		Currency      string                   `json:"currency,omitempty" yaml:"currency,omitempty" toml:"currency,omitempty"`
		Brackets      []Bracket                `json:"brackets" yaml:"brackets" toml:"brackets"`
		Allowances    map[string]float64       `json:"allowances,omitempty" yaml:"allowances,omitempty" toml:"allowances,omitempty"`
		Deductions    map[string]DeductionRule `json:"deductions,omitempty" yaml:"deductions,omitempty" toml:"deductions,omitempty"`
		Notes         string                   `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	}

	// Input is a single computation request.
	Input struct {
		GrossAnnual float64            `json:"grossAnnual"`
		Deductions  map[string]float64 `json:"deductions,omitempty"`
		Allowances  map[string]float64 `json:"allowances,omitempty"`
	}

	// BracketTax is the contribution of one band to the total.
	BracketTax struct {
		From    float64  `json:"from"`
		To      *float64 `json:"to"`
		Rate    float64  `json:"rate"`
		Taxable float64  `json:"taxable"`
		Tax     float64  `json:"tax"`
	}

	// Result is the computed breakdown. Money totals are rounded to cents;
	// TaxableIncome is not.
	Result struct {
		GrossAnnual    float64      `json:"grossAnnual"`
		TaxableIncome  float64      `json:"taxableIncome"`
		TaxByBracket   []BracketTax `json:"taxByBracket"`
		TotalTaxAnnual float64      `json:"totalTaxAnnual"`
		NetAnnual      float64      `json:"netAnnual"`
		NetMonthly     float64      `json:"netMonthly"`
		RuleVersion    string       `json:"ruleVersion,omitempty"`
	}
)

// Amount returns a pointer to v, for building brackets and caps in code.
func Amount(v float64) *float64 {
	return &v
}

// Clone returns a deep copy of the rule so callers can hand it out without
// sharing the underlying slices and maps.
func (r Rule) Clone() Rule {
	out := r
	if r.Brackets != nil {
		out.Brackets = make([]Bracket, len(r.Brackets))
		for i, b := range r.Brackets {
			out.Brackets[i] = Bracket{From: clonePtr(b.From), To: clonePtr(b.To), Rate: b.Rate}
		}
	}
	if r.Allowances != nil {
		out.Allowances = make(map[string]float64, len(r.Allowances))
		for k, v := range r.Allowances {
			out.Allowances[k] = v
		}
	}
	if r.Deductions != nil {
		out.Deductions = make(map[string]DeductionRule, len(r.Deductions))
		for k, v := range r.Deductions {
			out.Deductions[k] = DeductionRule{Cap: clonePtr(v.Cap)}
		}
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
