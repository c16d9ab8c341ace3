package log

import "sort"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldDuration    = "duration_ms"
	FieldCountry     = "country"
	FieldRuleVersion = "rule_version"
	FieldSource      = "source"
	FieldCount       = "count"
	FieldGrossAnnual = "gross_annual"
	FieldTotalTax    = "total_tax_annual"
	FieldDBPath      = "db_path"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentCLI       = "cli"
	ComponentEstimator = "estimator"
	ComponentRules     = "rules"
	ComponentStorage   = "storage"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentWorker    = "worker"
	ComponentBackend   = "backend"
	ComponentSync      = "sync"
)

// Operations defines standard operation names
const (
	OpEstimate = "estimate"
	OpLookup   = "lookup"
	OpImport   = "import"
	OpSync     = "sync"
	OpLint     = "lint"
	OpMigrate  = "migrate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithRule adds the country and rule version being used.
func (f LogFields) WithRule(country, version string) LogFields {
	f[FieldCountry] = country
	if version != "" {
		f[FieldRuleVersion] = version
	}
	return f
}

// ToSlice converts LogFields to key/value pairs for slog, ordered by key.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
