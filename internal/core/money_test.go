package core

import (
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{".5", 50, true},
		{"1,000", 100000, true},
		{"1,000,000", 100000000, true},
		{"1,234.565", 123457, true},
		{"1 000 000", 100000000, true},
		{"1_000", 100000, true},
		{"12,5", 1250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e6", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1,000,000.50")
	if err != nil || got != 1000000.5 {
		t.Fatalf("got %v err=%v", got, err)
	}
	if _, err := ParseAmount("lots"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestParseNamedAmounts(t *testing.T) {
	got, err := ParseNamedAmounts([]string{"pension=60000", " nhf = 2,500 ", "pension=1000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got["pension"] != 61000 || got["nhf"] != 2500 {
		t.Fatalf("unexpected map: %v", got)
	}
	if m, err := ParseNamedAmounts(nil); err != nil || m != nil {
		t.Fatalf("empty input should give nil map, got %v %v", m, err)
	}
	for _, bad := range []string{"pension", "=100", "pension=-1", "pension=abc"} {
		if _, err := ParseNamedAmounts([]string{bad}); !errors.Is(err, ErrInvalidNamedAmount) {
			t.Errorf("%q expected ErrInvalidNamedAmount, got %v", bad, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{
		0:        "0.00",
		5:        "5.00",
		999.999:  "1,000.00",
		71666.67: "71,666.67",
		1000000:  "1,000,000.00",
		-1234.5:  "-1,234.50",
		-0.001:   "0.00",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	for in, want := range map[float64]string{0.07: "7%", 0.2: "20%", 0: "0%", 0.075: "7.5%"} {
		if got := FormatRate(in); got != want {
			t.Errorf("FormatRate(%v) = %q, want %q", in, got, want)
		}
	}
}
