// Package sheets appends funnel rows to a Google spreadsheet.
//
// The mirror is a write-only side channel: rows are appended to named tabs of
// a single spreadsheet and never read back. Missing tabs are created on first
// use with their fixed header row.
package sheets

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/stepfunnel/analytics-platform/pkg/config"
)

// Appender appends single rows to spreadsheet tabs, creating tabs as needed.
// Safe for concurrent use; tab creation is serialized.
type Appender struct {
	svc           *gsheets.Service
	spreadsheetID string

	mu        sync.Mutex
	knownTabs map[string]bool
}

// NewAppender builds a Sheets client from the refresh-token credentials in
// cfg. The token source refreshes access tokens transparently for the life of
// the process.
func NewAppender(ctx context.Context, cfg config.SheetsConfig) (*Appender, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gsheets.SpreadsheetsScope},
	}
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := oauthCfg.Client(ctx, token)

	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Appender{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		knownTabs:     make(map[string]bool),
	}, nil
}

// Append writes one row to the named tab, creating the tab with its header
// row if it does not exist yet.
func (a *Appender) Append(ctx context.Context, tab string, header []string, row []any) error {
	if err := a.ensureTab(ctx, tab, header); err != nil {
		return err
	}

	vr := &gsheets.ValueRange{Values: [][]any{row}}
	_, err := a.svc.Spreadsheets.Values.
		Append(a.spreadsheetID, tab, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending row to tab %q: %w", tab, err)
	}
	return nil
}

// ensureTab checks the spreadsheet for the tab and creates it with the header
// row when absent. The tab set is cached after the first lookup; tabs deleted
// out-of-band while the mirror runs will surface as append errors.
func (a *Appender) ensureTab(ctx context.Context, tab string, header []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.knownTabs[tab] {
		return nil
	}

	if len(a.knownTabs) == 0 {
		spreadsheet, err := a.svc.Spreadsheets.Get(a.spreadsheetID).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("fetching spreadsheet metadata: %w", err)
		}
		for _, sheet := range spreadsheet.Sheets {
			if sheet.Properties != nil {
				a.knownTabs[sheet.Properties.Title] = true
			}
		}
		if a.knownTabs[tab] {
			return nil
		}
	}

	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := a.svc.Spreadsheets.BatchUpdate(a.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("creating tab %q: %w", tab, err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	vr := &gsheets.ValueRange{Values: [][]any{headerRow}}
	_, err := a.svc.Spreadsheets.Values.
		Append(a.spreadsheetID, tab, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("writing header for tab %q: %w", tab, err)
	}

	a.knownTabs[tab] = true
	return nil
}
