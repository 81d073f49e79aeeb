package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// -----------------------------------------------------------------------------

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// -----------------------------------------------------------------------------

// tableRecords reads a table's header cells and body rows. Tables without a
// thead use their first row as header.
func tableRecords(table *goquery.Selection) []record {
	var header []string
	table.Find("thead tr").First().Find("th, td").Each(func(_ int, th *goquery.Selection) {
		header = append(header, cellText(th))
	})

	rows := table.Find("tbody tr")
	if len(header) == 0 {
		all := table.Find("tr")
		all.First().Find("th, td").Each(func(_ int, th *goquery.Selection) {
			header = append(header, cellText(th))
		})
		rows = all.Slice(1, all.Length())
	}

	var data [][]string
	rows.Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			row = append(row, cellText(td))
		})
		if len(row) > 0 {
			data = append(data, row)
		}
	})
	return recordsFromRows(header, data)
}

// -----------------------------------------------------------------------------

// findTable picks the table with the most rows among those whose header
// mentions every one of columns.
func findTable(sel *goquery.Selection, columns ...string) *goquery.Selection {
	var (
		best     *goquery.Selection
		bestRows = -1
	)
	sel.Find("table").Each(func(_ int, table *goquery.Selection) {
		head := canonicalKey(table.Find("tr").First().Text())
		for _, c := range columns {
			if !strings.Contains(head, c) {
				return
			}
		}
		if n := table.Find("tr").Length(); n > bestRows {
			best, bestRows = table, n
		}
	})
	return best
}

// -----------------------------------------------------------------------------

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
