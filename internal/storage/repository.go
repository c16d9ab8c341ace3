// Package storage keeps the version history of tax rules in SQLite.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

var (
	// ErrVersionConflict is returned when a version is saved twice with
	// different content. Published versions are immutable.
	ErrVersionConflict = errors.New("rule version already exists with different content")
	ErrMissingVersion  = errors.New("rule has no version")
)

var _ rules.Store = (*RuleRepository)(nil)

// VersionInfo describes one stored rule version.
type VersionInfo struct {
	Country       string
	Version       string
	EffectiveDate string
	Currency      string
	Source        string
	Hash          string
	CreatedAt     time.Time
}

type RuleRepository struct {
	db     *sql.DB
	now    func() time.Time
	source string
}

// NewRuleRepository opens (creating if needed) the database at dbPath and
// migrates it.
func NewRuleRepository(dbPath string) (*RuleRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Rule database ready",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpMigrate,
		applog.FieldDBPath, dbPath,
		"schema_version", version)

	return &RuleRepository{db: db, now: time.Now}, nil
}

// WithSource returns a repository that tags the versions it saves with src
// (for example "files" or "sheets").
func (r *RuleRepository) WithSource(src string) *RuleRepository {
	cp := *r
	cp.source = src
	return &cp
}

func (r *RuleRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveRule stores rule as a new version. Saving identical content again is a
// no-op; reusing a version for different content is ErrVersionConflict.
func (r *RuleRepository) SaveRule(ctx context.Context, rule tax.Rule) (bool, error) {
	code, err := rules.NormalizeCountry(rule.Country)
	if err != nil {
		return false, err
	}
	if rule.Version == "" {
		return false, fmt.Errorf("%w: %s", ErrMissingVersion, code)
	}
	rule = rule.Clone()
	rule.Country = code

	doc, err := rules.EncodeJSON(rule)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(doc)
	hash := hex.EncodeToString(sum[:])

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT content_hash FROM tax_rules WHERE country = ? AND version = ?`,
		code, rule.Version).Scan(&existing)
	switch {
	case err == nil && existing == hash:
		return false, nil
	case err == nil:
		return false, fmt.Errorf("%w: %s %s", ErrVersionConflict, code, rule.Version)
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("lookup %s %s: %w", code, rule.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tax_rules (country, version, effective_date, currency, document, content_hash, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		code, rule.Version, rule.EffectiveDate, rule.Currency, string(doc), hash, r.source,
		r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert %s %s: %w", code, rule.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Tax rule version saved",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpImport,
		applog.FieldCountry, code,
		applog.FieldRuleVersion, rule.Version,
		"effective_date", rule.EffectiveDate,
		applog.FieldSource, r.source)
	return true, nil
}

// Rule returns the rule in force today.
func (r *RuleRepository) Rule(ctx context.Context, country string) (*tax.Rule, error) {
	return r.RuleAsOf(ctx, country, r.now())
}

// RuleAsOf returns the newest version effective on day. Versions without an
// effective date are always in force. When every version is still in the
// future the newest one is returned.
func (r *RuleRepository) RuleAsOf(ctx context.Context, country string, day time.Time) (*tax.Rule, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}

	var doc string
	err = r.db.QueryRowContext(ctx,
		`SELECT document FROM tax_rules
		 WHERE country = ? AND effective_date <= ?
		 ORDER BY effective_date DESC, id DESC LIMIT 1`,
		code, day.Format(time.DateOnly)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.QueryRowContext(ctx,
			`SELECT document FROM tax_rules
			 WHERE country = ?
			 ORDER BY effective_date DESC, id DESC LIMIT 1`,
			code).Scan(&doc)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", rules.ErrRuleNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("query rule %s: %w", code, err)
	}
	return decodeDocument(code, doc)
}

// RuleVersion returns one specific stored version.
func (r *RuleRepository) RuleVersion(ctx context.Context, country, version string) (*tax.Rule, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	var doc string
	err = r.db.QueryRowContext(ctx,
		`SELECT document FROM tax_rules WHERE country = ? AND version = ?`,
		code, version).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", rules.ErrRuleNotFound, code, version)
	}
	if err != nil {
		return nil, fmt.Errorf("query rule %s %s: %w", code, version, err)
	}
	return decodeDocument(code, doc)
}

func (r *RuleRepository) Countries(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT country FROM tax_rules ORDER BY country`)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// Versions lists a country's stored versions, oldest effective date first.
func (r *RuleRepository) Versions(ctx context.Context, country string) ([]VersionInfo, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT country, version, effective_date, currency, source, content_hash, created_at
		 FROM tax_rules WHERE country = ?
		 ORDER BY effective_date, id`, code)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", code, err)
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var created string
		if err := rows.Scan(&v.Country, &v.Version, &v.EffectiveDate, &v.Currency, &v.Source, &v.Hash, &created); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if v.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("scan version %s %s: created_at: %w", v.Country, v.Version, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func decodeDocument(code, doc string) (*tax.Rule, error) {
	rule, err := rules.Decode(code+".json", []byte(doc))
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
