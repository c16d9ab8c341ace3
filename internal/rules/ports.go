// Package rules locates tax rules by country code.
//
// The engine in package tax never loads anything itself; callers resolve a
// tax.Rule through a Source and hand it over. Implementations live in the
// sub-packages (embedded/on-disk files, memory, Google Sheets) and in
// internal/storage (versioned SQLite history).
package rules

import (
	"context"
	"errors"

	"budgetly/internal/tax"
)

// Ports implemented by rule backends.
type (
	// Source resolves the current rule for a country. Lookups are
	// case-insensitive; an unknown country yields ErrRuleNotFound.
	Source interface {
		Rule(ctx context.Context, country string) (*tax.Rule, error)
		Countries(ctx context.Context) ([]string, error)
	}

	// Writer stores a rule version. It reports whether anything changed so
	// importers can skip identical versions.
	Writer interface {
		SaveRule(ctx context.Context, rule tax.Rule) (changed bool, err error)
	}

	// Store is a Source that can also be written to.
	Store interface {
		Source
		Writer
	}
)

var (
	ErrRuleNotFound    = errors.New("tax rule not found")
	ErrInvalidCountry  = errors.New("invalid country code")
	ErrMalformedRule   = errors.New("malformed tax rule")
	ErrUnsupportedFile = errors.New("unsupported rule file format")
)
