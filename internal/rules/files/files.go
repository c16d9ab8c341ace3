// Package files reads tax rules from <country>.json, .yaml, .yml or .toml
// documents in a file system. A default set is embedded in the binary.
package files

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

//go:embed data/*
var defaults embed.FS

var _ rules.Source = (*Source)(nil)

type Source struct {
	fsys fs.FS
	name string
}

// New reads rules from the root of fsys.
func New(fsys fs.FS, name string) *Source {
	return &Source{fsys: fsys, name: name}
}

// NewDefault serves the rules compiled into the binary.
func NewDefault() *Source {
	sub, err := fs.Sub(defaults, "data")
	if err != nil {
		panic(err)
	}
	return New(sub, "embedded")
}

// NewFromDir serves rules from a directory on disk.
func NewFromDir(dir string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules dir %s is not a directory", dir)
	}
	return New(os.DirFS(dir), dir), nil
}

func (s *Source) String() string { return "files:" + s.name }

func (s *Source) Rule(ctx context.Context, country string) (*tax.Rule, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	base := strings.ToLower(code)
	for _, ext := range rules.Extensions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := base + ext
		data, err := fs.ReadFile(s.fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		rule, err := decode(code, name, data)
		if err != nil {
			return nil, err
		}
		return &rule, nil
	}
	return nil, fmt.Errorf("%w: %s", rules.ErrRuleNotFound, code)
}

// Countries lists the codes that have a rule document.
func (s *Source) Countries(_ context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.name, err)
	}
	seen := map[string]struct{}{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name()))
		if !slices.Contains(rules.Extensions, ext) {
			continue
		}
		code, err := rules.NormalizeCountry(strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
		if err != nil {
			continue
		}
		seen[code] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// All loads every rule in the source, stopping at the first bad document.
func (s *Source) All(ctx context.Context) ([]tax.Rule, error) {
	codes, err := s.Countries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tax.Rule, 0, len(codes))
	for _, code := range codes {
		r, err := s.Rule(ctx, code)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// decode fills in a missing country from the file name and rejects documents
// that claim a different one.
func decode(code, name string, data []byte) (tax.Rule, error) {
	rule, err := rules.Decode(name, data)
	if err != nil {
		return tax.Rule{}, err
	}
	if strings.TrimSpace(rule.Country) == "" {
		rule.Country = code
		return rule, nil
	}
	got, err := rules.NormalizeCountry(rule.Country)
	if err != nil || got != code {
		return tax.Rule{}, fmt.Errorf("%w: %s declares country %q", rules.ErrMalformedRule, name, rule.Country)
	}
	rule.Country = got
	return rule, nil
}
