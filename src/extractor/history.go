package extractor

import (
	"context"
	"fmt"
	"strings"

	"nepse-observer/src/browser"
	"nepse-observer/src/models"
)

const historyAPI = "/api/nots/market/history/security/"

// ParseHistoryJSON reads the security history API payload.
func ParseHistoryJSON(body []byte, symbol string) ([]models.MHistoryRecord, error) {
	rs, err := recordsFromJSON(body)
	if err != nil {
		return nil, err
	}
	return historyFromRecords(rs, symbol), nil
}

// ParseHistoryHTML reads the rendered price history table.
func ParseHistoryHTML(html, symbol string) ([]models.MHistoryRecord, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	table := findTable(doc.Selection, "date", "high", "low")
	if table == nil {
		return nil, fmt.Errorf("history table not found")
	}
	return historyFromRecords(tableRecords(table), symbol), nil
}

func historyFromRecords(rs []record, symbol string) []models.MHistoryRecord {
	key := trimSymbol(symbol)
	out := make([]models.MHistoryRecord, 0, len(rs))
	for _, r := range rs {
		if h, ok := historyFromRecord(key, r); ok {
			out = append(out, h)
		}
	}
	return out
}

func validHistory(hs []models.MHistoryRecord) error {
	if len(hs) == 0 {
		return errEmpty
	}
	return nil
}

// -----------------------------------------------------------------------------

func isHistoryTab(label string) bool {
	return strings.Contains(canonicalKey(label), "pricehistory")
}

// openHistoryTab clicks the price history tab of the loaded detail page.
func openHistoryTab(ctx context.Context, tab *browser.Tab) error {
	html, err := tab.HTML(ctx, tabSelector)
	if err != nil {
		return err
	}
	doc, err := parseDocument(html)
	if err != nil {
		return err
	}
	sel := findTab(doc, isHistoryTab)
	if sel == "" {
		return fmt.Errorf("price history tab not found")
	}
	return tab.Click(ctx, sel)
}

// -----------------------------------------------------------------------------

func (e *Extractor) historyStrategies(securityID int64, symbol string) []Strategy[[]models.MHistoryRecord] {
	pageURL := e.url(fmt.Sprintf(companyPathFmt, securityID))
	apiPattern := historyAPI + formatID(securityID)

	return []Strategy[[]models.MHistoryRecord]{
		{
			Name:    "intercept",
			Timeout: e.timeouts.intercept,
			Run: func(ctx context.Context, tab *browser.Tab) ([]models.MHistoryRecord, error) {
				bodies, err := tab.Capture(ctx, func(ctx context.Context) error {
					if err := tab.Navigate(ctx, pageURL); err != nil {
						return err
					}
					return openHistoryTab(ctx, tab)
				}, 0, apiPattern)
				if err != nil {
					return nil, err
				}
				return ParseHistoryJSON(bodies[apiPattern], symbol)
			},
		},
		{
			Name:    "dom",
			Timeout: e.timeouts.dom,
			Run: func(ctx context.Context, tab *browser.Tab) ([]models.MHistoryRecord, error) {
				if err := tab.Navigate(ctx, pageURL); err != nil {
					return nil, err
				}
				if err := openHistoryTab(ctx, tab); err != nil {
					return nil, err
				}
				html, err := tab.HTML(ctx, activePaneSel+" table tbody tr")
				if err != nil {
					return nil, err
				}
				return ParseHistoryHTML(html, symbol)
			},
		},
	}
}

// -----------------------------------------------------------------------------

// FetchHistory returns the end-of-day series the detail page shows for a
// security.
func (e *Extractor) FetchHistory(ctx context.Context, securityID int64, symbol string) ([]models.MHistoryRecord, error) {
	if securityID <= 0 {
		return nil, fmt.Errorf("security id %d: %w", securityID, errEmpty)
	}
	return extract(ctx, e, "history "+trimSymbol(symbol), validHistory, e.historyStrategies(securityID, symbol))
}
