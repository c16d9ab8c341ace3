package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"budgetly/internal/tax"
)

// Extensions lists the rule file formats Decode understands, in lookup order.
var Extensions = []string{".json", ".yaml", ".yml", ".toml"}

// Decode parses a rule document; the format is chosen from the file name's
// extension. Unknown fields are ignored, as a plain JSON.parse would.
func Decode(name string, data []byte) (tax.Rule, error) {
	var rule tax.Rule
	var err error

	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		err = json.Unmarshal(data, &rule)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rule)
	case ".toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&rule)
	default:
		return tax.Rule{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
	if err != nil {
		return tax.Rule{}, fmt.Errorf("%w: %s: %v", ErrMalformedRule, name, err)
	}
	return rule, nil
}

// EncodeJSON renders a rule in its canonical JSON form.
func EncodeJSON(rule tax.Rule) ([]byte, error) {
	b, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("encode rule %s/%s: %w", rule.Country, rule.Version, err)
	}
	return b, nil
}
