package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf}).WithComponent(ComponentEstimator)
	l.Info("estimated", FieldCountry, "NG")
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec[FieldComponent] != ComponentEstimator || rec[FieldCountry] != "NG" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestTextHandlerIsDefault(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Warn("careful")
	if !strings.Contains(buf.String(), "component=app") {
		t.Fatalf("expected text output with app component, got %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %q", l.Component())
	}
	want := New(DefaultConfig()).WithComponent(ComponentCLI)
	if got := FromContext(WithLogger(context.Background(), want)); got != want {
		t.Fatalf("expected stored logger")
	}
}

func TestLogFieldsToSliceIsOrdered(t *testing.T) {
	f := NewFields().
		WithOperation(OpEstimate).
		WithRule("NG", "2011.1").
		WithError(errors.New("boom")).
		WithError(nil)
	got := f.ToSlice()
	want := []any{
		FieldCountry, "NG",
		FieldError, "boom",
		FieldOperation, OpEstimate,
		FieldRuleVersion, "2011.1",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
