package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"nepse-observer/src/models"
	"nepse-observer/src/utils"
)

// record is one row of source data keyed by canonical column name. JSON
// objects, CSV rows and HTML table rows all reduce to it, so field aliasing
// lives in one place.
type record map[string]string

// canonicalKey folds "closePrice", "close_price" and "Close Price" together.
func canonicalKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Field aliases, canonical keys only, most specific first.
// -----------------------------------------------------------------------------

var (
	fSymbol        = []string{"symbol", "stocksymbol", "securitysymbol", "scrip"}
	fSecurityID    = []string{"securityid", "secid"}
	fSecurityName  = []string{"securityname", "companyname", "name"}
	fBusinessDate  = []string{"businessdate", "tradedate", "date", "asofdate"}
	fOpen          = []string{"openprice", "open"}
	fHigh          = []string{"highprice", "high", "maxprice"}
	fLow           = []string{"lowprice", "low", "minprice"}
	fClose         = []string{"closeprice", "close", "closingprice", "ltpclose"}
	fLTP           = []string{"lasttradedprice", "ltp", "lastprice"}
	fPrevClose     = []string{"previousdaycloseprice", "previousclose", "prevclose", "previousclosing"}
	fVolume        = []string{"totaltradedquantity", "totaltradedshares", "tradedshares", "totalquantity", "quantity", "qty", "volume"}
	fValue         = []string{"totaltradedvalue", "totalturnover", "turnover", "amount", "value"}
	fTrades        = []string{"totaltrades", "nooftransactions", "notrades", "totaltransactions", "transactions", "trades"}
	fWeek52High    = []string{"fiftytwoweekhigh", "52weekhigh", "week52high"}
	fWeek52Low     = []string{"fiftytwoweeklow", "52weeklow", "week52low"}
	fChange        = []string{"pointchange", "pricechange", "change", "difference", "diff"}
	fPercentChange = []string{"percentagechange", "percentchange", "perchange", "changepercent", "percentdiff"}
)

// get returns the first non-placeholder value among keys.
func (r record) get(keys []string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok && !isPlaceholder(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (r record) number(keys []string) float64 {
	v, _ := ParseNumber(r.get(keys))
	return v
}

func isPlaceholder(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "-", "--", "N/A", "n/a", "null", "NaN":
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// ParseNumber reads site-formatted numbers: thousands separators, percent
// signs, currency prefixes and parenthesised negatives. Placeholders such as
// "-" are reported as absent.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isPlaceholder(s) {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.TrimPrefix(s, "Rs.")
	s = strings.TrimPrefix(s, "Rs")
	s = strings.TrimPrefix(s, "NPR")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "%", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// -----------------------------------------------------------------------------
// Record sources
// -----------------------------------------------------------------------------

// recordsFromJSON accepts a bare array of objects or an envelope holding one
// under a common key ("content", "data", ...).
func recordsFromJSON(body []byte) ([]record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	items := findArray(root)
	if items == nil {
		return nil, fmt.Errorf("no record array in response")
	}
	out := make([]record, 0, len(items))
	for _, it := range items {
		if obj, ok := it.(map[string]any); ok {
			out = append(out, flatten(obj))
		}
	}
	return out, nil
}

func findArray(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		for _, k := range []string{"content", "data", "records", "result", "items"} {
			if arr, ok := t[k].([]any); ok {
				return arr
			}
		}
		for _, k := range []string{"content", "data", "result"} {
			if inner, ok := t[k].(map[string]any); ok {
				if arr := findArray(inner); arr != nil {
					return arr
				}
			}
		}
	}
	return nil
}

// flatten turns a JSON object into a record. Nested objects contribute their
// scalar fields under their own keys without overwriting outer ones.
func flatten(obj map[string]any) record {
	r := record{}
	var walk func(m map[string]any, depth int)
	walk = func(m map[string]any, depth int) {
		for k, v := range m {
			key := canonicalKey(k)
			switch t := v.(type) {
			case map[string]any:
				if depth < 3 {
					walk(t, depth+1)
				}
			case []any:
			default:
				if _, exists := r[key]; exists && depth > 0 {
					continue
				}
				r[key] = scalarString(t)
			}
		}
	}
	walk(obj, 0)
	return r
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// recordsFromRows maps a header row over data rows. Duplicate headers get a
// numeric suffix so a second "Change" column stays addressable.
func recordsFromRows(header []string, rows [][]string) []record {
	keys := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		k := canonicalKey(strings.TrimPrefix(h, "\ufeff"))
		if strings.Contains(h, "%") && !strings.Contains(k, "percent") {
			k = "percent" + k
		}
		if n := seen[k]; n > 0 {
			keys[i] = fmt.Sprintf("%s_%d", k, n)
		} else {
			keys[i] = k
		}
		seen[k]++
	}

	out := make([]record, 0, len(rows))
	for _, row := range rows {
		r := record{}
		for i, cell := range row {
			if i < len(keys) && keys[i] != "" {
				r[keys[i]] = strings.TrimSpace(cell)
			}
		}
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Canonical models
// -----------------------------------------------------------------------------

// quoteFromRecord builds a quote or reports false when the row has no symbol.
// A missing close falls back to the last traded price, and a missing change is
// derived from the previous close.
func quoteFromRecord(r record) (models.MPriceQuote, bool) {
	q := models.MPriceQuote{
		Symbol:          strings.ToUpper(r.get(fSymbol)),
		SecurityName:    r.get(fSecurityName),
		BusinessDate:    normalizeDate(r.get(fBusinessDate)),
		Open:            r.number(fOpen),
		High:            r.number(fHigh),
		Low:             r.number(fLow),
		Close:           r.number(fClose),
		LastTradedPrice: r.number(fLTP),
		PreviousClose:   r.number(fPrevClose),
		Volume:          r.number(fVolume),
		Value:           r.number(fValue),
		Trades:          int64(r.number(fTrades)),
		Week52High:      r.number(fWeek52High),
		Week52Low:       r.number(fWeek52Low),
	}
	if q.Symbol == "" {
		return q, false
	}
	if id, ok := ParseNumber(r.get(fSecurityID)); ok {
		q.SecurityID = int64(id)
	}
	if q.Close <= 0 && q.LastTradedPrice > 0 {
		q.Close = q.LastTradedPrice
	}
	if q.LastTradedPrice <= 0 {
		q.LastTradedPrice = q.Close
	}

	if v, ok := ParseNumber(r.get(fChange)); ok {
		q.Change = v
	} else if q.PreviousClose > 0 {
		q.Change = round2(q.Close - q.PreviousClose)
	}
	if v, ok := ParseNumber(r.get(fPercentChange)); ok {
		q.PercentChange = v
	} else if q.PreviousClose > 0 {
		q.PercentChange = round2((q.Close - q.PreviousClose) / q.PreviousClose * 100)
	}
	return q, true
}

func quotesFromRecords(rs []record) []models.MPriceQuote {
	out := make([]models.MPriceQuote, 0, len(rs))
	for _, r := range rs {
		if q, ok := quoteFromRecord(r); ok {
			out = append(out, q)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func historyFromRecord(key string, r record) (models.MHistoryRecord, bool) {
	h := models.MHistoryRecord{
		Key:          key,
		BusinessDate: normalizeDate(r.get(fBusinessDate)),
		Open:         r.number(fOpen),
		High:         r.number(fHigh),
		Low:          r.number(fLow),
		Close:        r.number(fClose),
		Volume:       r.number(fVolume),
		Value:        r.number(fValue),
	}
	if h.Close <= 0 {
		h.Close = r.number(fLTP)
	}
	h.Change = r.number(fChange)
	h.PercentChange = r.number(fPercentChange)
	return h, h.BusinessDate != "" && h.Close > 0
}

// -----------------------------------------------------------------------------

var dateLayouts = []string{
	utils.DateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"02 Jan 2006",
}

// normalizeDate renders any known date form as YYYY-MM-DD, or "" if unknown.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, utils.NPT); err == nil {
			return t.Format(utils.DateLayout)
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(utils.NPT).Format(utils.DateLayout)
	}
	return ""
}

// -----------------------------------------------------------------------------

// marketStatus maps the site's open flags onto the canonical statuses.
func marketStatus(raw string) string {
	s := canonicalKey(raw)
	switch {
	case s == "":
		return models.MarketUnknown
	case strings.Contains(s, "preopen"):
		return models.MarketPreOpen
	case s == "open" || s == "true" || s == "y" || strings.Contains(s, "marketopen"):
		return models.MarketOpen
	case strings.HasPrefix(s, "close") || s == "false" || s == "n" || strings.Contains(s, "marketclose"):
		return models.MarketClosed
	}
	return models.MarketUnknown
}

// statusFromAsOf reduces an "as of" timestamp to the 12-hour clock used as
// status time, plus the business date it names when it carries one.
func statusFromAsOf(asOf string) (statusTime, businessDate string) {
	asOf = strings.TrimSpace(asOf)
	if asOf == "" {
		return "", ""
	}
	for _, layout := range dateLayouts[1:4] {
		if t, err := time.ParseInLocation(layout, asOf, utils.NPT); err == nil {
			return utils.FormatStatusTime(t), t.Format(utils.DateLayout)
		}
	}
	if t, err := time.Parse(time.RFC3339, asOf); err == nil {
		return utils.FormatStatusTime(t), t.In(utils.NPT).Format(utils.DateLayout)
	}
	h, m, err := utils.ParseStatusTime(asOf)
	if err != nil {
		return "", ""
	}
	return utils.FormatStatusTime(time.Date(2000, 1, 1, h, m, 0, 0, utils.NPT)), ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
