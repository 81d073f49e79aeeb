package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"nepse-observer/src/browser"
	"nepse-observer/src/models"
)

const (
	todayPricePath    = "/today-price"
	todayPriceAPI     = "/api/nots/nepse-data/today-price"
	priceDownloadSel  = "a.table__file, button.table__file, a[download], .download-csv"
	priceTableReadSel = "table tbody tr"
)

// -----------------------------------------------------------------------------
// Parsers
// -----------------------------------------------------------------------------

// ParsePricesJSON reads the today-price API payload.
func ParsePricesJSON(body []byte) ([]models.MPriceQuote, error) {
	rs, err := recordsFromJSON(body)
	if err != nil {
		return nil, err
	}
	return quotesFromRecords(rs), nil
}

// -----------------------------------------------------------------------------

// ParsePricesCSV reads the file offered by the today-price page's download
// button. The first row is the header.
func ParsePricesCSV(data []byte) ([]models.MPriceQuote, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmpty
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, row)
	}
	return quotesFromRecords(recordsFromRows(header, rows)), nil
}

// -----------------------------------------------------------------------------

// ParsePricesHTML reads the rendered today-price table.
func ParsePricesHTML(html string) ([]models.MPriceQuote, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	table := findTable(doc.Selection, "symbol")
	if table == nil {
		return nil, fmt.Errorf("price table not found")
	}
	return quotesFromRecords(tableRecords(table)), nil
}

// -----------------------------------------------------------------------------

// validQuotes accepts a non-empty batch where at least one row is priced.
// Zero-close rows are left for the synchronizer to reject one by one.
func validQuotes(qs []models.MPriceQuote) error {
	if len(qs) == 0 {
		return errEmpty
	}
	for _, q := range qs {
		if q.Close > 0 {
			return nil
		}
	}
	return fmt.Errorf("%d rows, none priced", len(qs))
}

// -----------------------------------------------------------------------------
// Strategies
// -----------------------------------------------------------------------------

func (e *Extractor) priceStrategies() []Strategy[[]models.MPriceQuote] {
	pageURL := e.url(todayPricePath)
	return []Strategy[[]models.MPriceQuote]{
		{
			Name:    "intercept",
			Timeout: e.timeouts.intercept,
			Run: func(ctx context.Context, tab *browser.Tab) ([]models.MPriceQuote, error) {
				bodies, err := tab.CaptureResponses(ctx, pageURL, 0, todayPriceAPI)
				if err != nil {
					return nil, err
				}
				return ParsePricesJSON(bodies[todayPriceAPI])
			},
		},
		{
			Name:    "download",
			Timeout: e.timeouts.download,
			Run: func(ctx context.Context, tab *browser.Tab) ([]models.MPriceQuote, error) {
				if err := tab.Navigate(ctx, pageURL); err != nil {
					return nil, err
				}
				data, err := tab.Download(ctx, priceDownloadSel)
				if err != nil {
					return nil, err
				}
				return ParsePricesCSV(data)
			},
		},
		{
			Name:    "dom",
			Timeout: e.timeouts.dom,
			Run: func(ctx context.Context, tab *browser.Tab) ([]models.MPriceQuote, error) {
				if err := tab.Navigate(ctx, pageURL); err != nil {
					return nil, err
				}
				html, err := tab.HTML(ctx, priceTableReadSel)
				if err != nil {
					return nil, err
				}
				return ParsePricesHTML(html)
			},
		},
	}
}

// -----------------------------------------------------------------------------

// FetchTodayPrices returns every security's quote for the current session.
func (e *Extractor) FetchTodayPrices(ctx context.Context) ([]models.MPriceQuote, error) {
	return extract(ctx, e, "today prices", validQuotes, e.priceStrategies())
}

func trimSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
