package files

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

func TestDefaultRules(t *testing.T) {
	src := NewDefault()
	ctx := context.Background()

	codes, err := src.Countries(ctx)
	if err != nil {
		t.Fatalf("countries: %v", err)
	}
	if strings.Join(codes, ",") != "GB,NG,US" {
		t.Fatalf("unexpected embedded countries: %v", codes)
	}

	all, err := src.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	for _, r := range all {
		if issues := rules.Lint(r); rules.HasErrors(issues) {
			t.Errorf("%s rule has lint errors: %v", r.Country, issues)
		}
		if r.Version == "" || r.Currency == "" {
			t.Errorf("%s rule is missing metadata: %+v", r.Country, r)
		}
	}
}

func TestDefaultRuleTotals(t *testing.T) {
	src := NewDefault()
	ctx := context.Background()
	cases := []struct {
		country string
		gross   float64
		total   float64
	}{
		// 60000 - 12570 = 47430: 37700*0.2 + 9730*0.4
		{"gb", 60000, 11432},
		// 100000 - 14600 = 85400: 1160 + 4266 + 38250*0.22
		{"US", 100000, 13841},
		// 1000000 - 200000 = 800000: 21000 + 33000 + 200000*0.15
		{"ng", 1000000, 84000},
	}
	for _, tc := range cases {
		r, err := src.Rule(ctx, tc.country)
		if err != nil {
			t.Fatalf("%s: %v", tc.country, err)
		}
		got := tax.Compute(*r, tax.Input{GrossAnnual: tc.gross})
		if got.TotalTaxAnnual != tc.total {
			t.Errorf("%s total = %v, want %v", tc.country, got.TotalTaxAnnual, tc.total)
		}
	}
}

func TestSourceFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"xx.yml":      {Data: []byte("version: \"1\"\nbrackets:\n  - from: 0\n    rate: 0.1\n")},
		"yy.json":     {Data: []byte(`{"country":"ZZ","brackets":[]}`)},
		"zz.json":     {Data: []byte(`{`)},
		"readme.md":   {Data: []byte("not a rule")},
		"toolong.js":  {Data: []byte("{}")},
		"sub/aa.json": {Data: []byte("{}")},
	}
	src := New(fsys, "test")
	ctx := context.Background()

	r, err := src.Rule(ctx, "XX")
	if err != nil {
		t.Fatalf("xx: %v", err)
	}
	if r.Country != "XX" || r.Version != "1" || len(r.Brackets) != 1 {
		t.Fatalf("unexpected rule: %+v", r)
	}
	if _, err := src.Rule(ctx, "yy"); !errors.Is(err, rules.ErrMalformedRule) {
		t.Fatalf("mismatched country should be malformed, got %v", err)
	}
	if _, err := src.Rule(ctx, "zz"); !errors.Is(err, rules.ErrMalformedRule) {
		t.Fatalf("broken json should be malformed, got %v", err)
	}
	if _, err := src.Rule(ctx, "aa"); !errors.Is(err, rules.ErrRuleNotFound) {
		t.Fatalf("nested files are ignored, got %v", err)
	}
	if _, err := src.Rule(ctx, "../xx"); !errors.Is(err, rules.ErrInvalidCountry) {
		t.Fatalf("path-like codes must be rejected, got %v", err)
	}

	codes, err := src.Countries(ctx)
	if err != nil || strings.Join(codes, ",") != "XX,YY,ZZ" {
		t.Fatalf("unexpected countries %v err=%v", codes, err)
	}
	if _, err := src.All(ctx); !errors.Is(err, rules.ErrMalformedRule) {
		t.Fatalf("All should surface the first bad document, got %v", err)
	}
}

func TestNewFromDir(t *testing.T) {
	if _, err := NewFromDir(t.TempDir() + "/missing"); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	if _, err := NewFromDir(t.TempDir()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
