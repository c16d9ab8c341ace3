// Package google reads tax rules from a Google spreadsheet with one tab per
// country code. See parseRuleSheet for the tab layout.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "budgetly/internal/log"
	"budgetly/internal/rules"
	"budgetly/internal/tax"
)

var _ rules.Source = (*Client)(nil)

// Config selects the spreadsheet and the service account used to read it.
type Config struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// New authenticates with a service account and returns a client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	credentialsJSON, err := credentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg.SpreadsheetID,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
}

// NewWithOptions builds a client from raw API options.
func NewWithOptions(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// credentials prefers inline JSON, then a file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials", applog.FieldComponent, applog.ComponentSheets)
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", applog.FieldComponent, applog.ComponentSheets, "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) Rule(ctx context.Context, country string) (*tax.Rule, error) {
	code, err := rules.NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!A:G", code)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		if isMissingRange(err) {
			return nil, fmt.Errorf("%w: %s", rules.ErrRuleNotFound, code)
		}
		return nil, fmt.Errorf("read range %s: %w", rng, err)
	}
	rule, err := parseRuleSheet(code, resp.Values)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Countries lists the tabs whose title is a country code.
func (c *Client) Countries(ctx context.Context) ([]string, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	var out []string
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		title := strings.TrimSpace(sh.Properties.Title)
		code, err := rules.NormalizeCountry(title)
		if err != nil || code != title {
			continue
		}
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// The API answers a range on a missing tab with 400 "Unable to parse range".
func isMissingRange(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound ||
		(gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"))
}
