package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nepse-observer/src/browser"
	"nepse-observer/src/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	homePath         = "/"
	indexAPI         = "/api/nots/nepse-index"
	marketOpenAPI    = "/api/nots/nepse-data/market-open"
	marketSummaryAPI = "/api/nots/market-summary"
	indexReadySel    = "body"
	indexSettle      = 3 * time.Second
	mainIndexName    = "nepseindex"
)

var (
	numberPattern = regexp.MustCompile(`\(?-?[\d,]+(?:\.\d+)?\)?%?`)
	asOfPattern   = regexp.MustCompile(`(?i)as\s+of\s*:?\s*(?:[A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4},?\s+)?(\d{1,2}:\d{2}(?::\d{2})?\s*[AP]M)`)
	statusPattern = regexp.MustCompile(`(?i)(pre[\s-]?open|market\s+open|market\s+close[d]?)`)
)

// -----------------------------------------------------------------------------
// Parsers
// -----------------------------------------------------------------------------

// ParseIndexJSON picks the main index out of the index API payload, matched
// by id, then by name.
func ParseIndexJSON(body []byte, mainIndexID int64) (models.MMarketIndex, error) {
	rs, err := recordsFromJSON(body)
	if err != nil {
		return models.MMarketIndex{}, err
	}

	var pick record
	for _, r := range rs {
		if id, ok := ParseNumber(r["id"]); ok && int64(id) == mainIndexID {
			pick = r
			break
		}
	}
	if pick == nil {
		for _, r := range rs {
			if canonicalKey(r.get([]string{"index", "indexname"})) == mainIndexName {
				pick = r
				break
			}
		}
	}
	if pick == nil {
		return models.MMarketIndex{}, fmt.Errorf("index %d not in %d records", mainIndexID, len(rs))
	}

	idx := models.MMarketIndex{
		IndexID:       mainIndexID,
		IndexName:     pick.get([]string{"index", "indexname"}),
		Value:         pick.number([]string{"currentvalue", "indexvalue", "close", "value"}),
		Change:        pick.number(fChange),
		PercentChange: pick.number(fPercentChange),
		High:          pick.number(fHigh),
		Low:           pick.number(fLow),
		PreviousClose: pick.number(fPrevClose),
	}
	idx.StatusTime, idx.BusinessDate = statusFromAsOf(pick.get([]string{"generatedtime", "asof"}))
	return idx, nil
}

// -----------------------------------------------------------------------------

// ApplyMarketStatusJSON copies the open flag and its "as of" time onto idx.
func ApplyMarketStatusJSON(idx *models.MMarketIndex, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("decode market status: %w", err)
	}
	r := flatten(obj)

	idx.Status = marketStatus(r.get([]string{"isopen", "status", "marketstatus"}))
	if t, d := statusFromAsOf(r.get([]string{"asof", "asofdate"})); t != "" {
		idx.StatusTime = t
		if d != "" {
			idx.BusinessDate = d
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyMarketSummaryJSON copies turnover, traded shares and transactions from
// the detail/value summary list.
func ApplyMarketSummaryJSON(idx *models.MMarketIndex, body []byte) error {
	rs, err := recordsFromJSON(body)
	if err != nil {
		return err
	}
	for _, r := range rs {
		label := canonicalKey(r.get([]string{"detail", "label", "name"}))
		v, ok := ParseNumber(r.get([]string{"value"}))
		if !ok {
			continue
		}
		switch {
		case strings.Contains(label, "turnover"):
			idx.Turnover = v
		case strings.Contains(label, "tradedshares"):
			idx.TradedShares = v
		case strings.Contains(label, "transactions"):
			idx.Transactions = int64(v)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// ParseIndexHTML reads the homepage index widget: the element labelled with
// the index name is followed by value, change and percent change.
func ParseIndexHTML(html string, mainIndexID int64) (models.MMarketIndex, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return models.MMarketIndex{}, err
	}

	var nums []float64
	doc.Find("body *").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if el.Children().Length() > 0 || canonicalKey(el.Text()) != mainIndexName {
			return true
		}
		container := el.Parent()
		for depth := 0; depth < 3 && len(nums) == 0; depth++ {
			nums = leafNumbers(container)
			container = container.Parent()
		}
		return len(nums) == 0
	})
	if len(nums) == 0 {
		return models.MMarketIndex{}, fmt.Errorf("index widget not found")
	}

	idx := models.MMarketIndex{IndexID: mainIndexID, IndexName: "NEPSE Index", Value: nums[0]}
	if len(nums) > 1 {
		idx.Change = nums[1]
	}
	if len(nums) > 2 {
		idx.PercentChange = nums[2]
	}

	text := doc.Find("body").Text()
	idx.Status = models.MarketUnknown
	if m := statusPattern.FindString(text); m != "" {
		idx.Status = marketStatus(m)
	}
	if m := asOfPattern.FindStringSubmatch(text); m != nil {
		idx.StatusTime, _ = statusFromAsOf(m[1])
	}
	return idx, nil
}

// leafNumbers reads one number per leaf element, in document order.
func leafNumbers(sel *goquery.Selection) []float64 {
	var out []float64
	sel.Find("*").Each(func(_ int, el *goquery.Selection) {
		if el.Children().Length() > 0 {
			return
		}
		if m := numberPattern.FindString(cellText(el)); m != "" {
			if v, ok := ParseNumber(m); ok {
				out = append(out, v)
			}
		}
	})
	return out
}

// -----------------------------------------------------------------------------

func validIndex(idx models.MMarketIndex) error {
	if idx.Value <= 0 {
		return fmt.Errorf("index value %v", idx.Value)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Strategies
// -----------------------------------------------------------------------------

func (e *Extractor) indexStrategies() []Strategy[models.MMarketIndex] {
	pageURL := e.url(homePath)
	mainID := e.Config.MainIndexID

	return []Strategy[models.MMarketIndex]{
		{
			Name:    "intercept",
			Timeout: e.timeouts.intercept,
			Run: func(ctx context.Context, tab *browser.Tab) (models.MMarketIndex, error) {
				bodies, err := tab.CaptureResponses(ctx, pageURL, indexSettle, indexAPI, marketOpenAPI, marketSummaryAPI)
				if err != nil {
					return models.MMarketIndex{}, err
				}
				body, ok := bodies[indexAPI]
				if !ok {
					return models.MMarketIndex{}, fmt.Errorf("index response missing")
				}
				idx, err := ParseIndexJSON(body, mainID)
				if err != nil {
					return idx, err
				}
				idx.Status = models.MarketUnknown
				if raw, ok := bodies[marketOpenAPI]; ok {
					if err := ApplyMarketStatusJSON(&idx, raw); err != nil {
						e.Logger.Warning("Market status payload ignored: %v", err)
					}
				}
				if raw, ok := bodies[marketSummaryAPI]; ok {
					if err := ApplyMarketSummaryJSON(&idx, raw); err != nil {
						e.Logger.Warning("Market summary payload ignored: %v", err)
					}
				}
				return idx, nil
			},
		},
		{
			Name:    "dom",
			Timeout: e.timeouts.dom,
			Run: func(ctx context.Context, tab *browser.Tab) (models.MMarketIndex, error) {
				if err := tab.Navigate(ctx, pageURL); err != nil {
					return models.MMarketIndex{}, err
				}
				html, err := tab.HTML(ctx, indexReadySel)
				if err != nil {
					return models.MMarketIndex{}, err
				}
				return ParseIndexHTML(html, mainID)
			},
		},
	}
}

// -----------------------------------------------------------------------------

// FetchMarketIndex returns the main index with the market status attached.
func (e *Extractor) FetchMarketIndex(ctx context.Context) (*models.MMarketIndex, error) {
	idx, err := extract(ctx, e, "market index", validIndex, e.indexStrategies())
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
