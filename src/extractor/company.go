package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"nepse-observer/src/browser"
	"nepse-observer/src/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	companyPathFmt = "/company/detail/%d"
	securityAPI    = "/api/nots/security/"
	companyReady   = "table"
	tabSelector    = ".nav-tabs a, [role=tab]"
	activePaneSel  = ".tab-pane.active, .tab-pane.show, [role=tabpanel].active"
)

// -----------------------------------------------------------------------------
// Instrument classification
// -----------------------------------------------------------------------------

var instrumentMarkers = []struct {
	kind    string
	markers []string
}{
	{models.InstrumentDebenture, []string{"debenture", "deb"}},
	{models.InstrumentMutualFund, []string{"mutualfund", "mf", "scheme", "fund"}},
	{models.InstrumentBond, []string{"bond", "bonds"}},
	{models.InstrumentPreference, []string{"preference", "pref"}},
	{models.InstrumentPromoter, []string{"promoter", "promotershare"}},
}

// ClassifyInstrument derives the instrument type from page hints such as the
// instrument label, sector, tab titles and the security name. Any specific
// marker beats a generic equity label, since the site labels some debentures
// and funds as equity.
func ClassifyInstrument(hints ...string) string {
	for _, im := range instrumentMarkers {
		for _, h := range hints {
			if hasMarker(h, im.markers) {
				return im.kind
			}
		}
	}
	for _, h := range hints {
		k := canonicalKey(h)
		if k == "eq" || strings.Contains(k, "equity") || strings.Contains(k, "ordinary") {
			return models.InstrumentEquity
		}
	}
	return models.InstrumentUnknown
}

// hasMarker matches long markers as substrings and short ones as whole words.
func hasMarker(hint string, markers []string) bool {
	k := canonicalKey(hint)
	words := strings.FieldsFunc(strings.ToLower(hint), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, m := range markers {
		if len(m) > 4 {
			if strings.Contains(k, m) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == m {
				return true
			}
		}
	}
	return false
}

func isTabbedInstrument(kind string) bool {
	switch kind {
	case models.InstrumentDebenture, models.InstrumentMutualFund, models.InstrumentBond:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// API payload
// -----------------------------------------------------------------------------

type securityPayload struct {
	Security struct {
		ID             int64  `json:"id"`
		Symbol         string `json:"symbol"`
		SecurityName   string `json:"securityName"`
		ActiveStatus   string `json:"activeStatus"`
		InstrumentType struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"instrumentType"`
		CompanyID struct {
			CompanyName    string `json:"companyName"`
			Email          string `json:"email"`
			CompanyWebsite string `json:"companyWebsite"`
			SectorMaster   struct {
				SectorDescription string `json:"sectorDescription"`
			} `json:"sectorMaster"`
		} `json:"companyId"`
	} `json:"security"`
	StockListedShares float64 `json:"stockListedShares"`
	PaidUpCapital     float64 `json:"paidUpCapital"`
}

// ParseSecurityJSON reads the security API payload. The security's own name
// is used, never the parent company's.
func ParseSecurityJSON(body []byte) (models.MSecurity, error) {
	var p securityPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&p); err != nil {
		return models.MSecurity{}, fmt.Errorf("decode security: %w", err)
	}
	s := p.Security
	if s.ID == 0 || s.Symbol == "" {
		return models.MSecurity{}, fmt.Errorf("security payload without id or symbol")
	}

	name := s.SecurityName
	if name == "" {
		name = s.CompanyID.CompanyName
	}
	return models.MSecurity{
		ID:     s.ID,
		Symbol: trimSymbol(s.Symbol),
		Name:   strings.TrimSpace(name),
		Sector: s.CompanyID.SectorMaster.SectorDescription,
		InstrumentType: ClassifyInstrument(
			s.InstrumentType.Description, s.InstrumentType.Code,
			s.CompanyID.SectorMaster.SectorDescription, s.SecurityName,
		),
		Status:       securityStatus(s.ActiveStatus),
		Email:        s.CompanyID.Email,
		Website:      s.CompanyID.CompanyWebsite,
		ListedShares: p.StockListedShares,
		PaidUpValue:  p.PaidUpCapital,
	}, nil
}

func securityStatus(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "S", "SUSPENDED":
		return models.SecuritySuspended
	case "D", "DELISTED":
		return models.SecurityDelisted
	}
	return models.SecurityActive
}

// -----------------------------------------------------------------------------
// Detail page
// -----------------------------------------------------------------------------

// companyPage is what the detail page's markup says before tab activation.
type companyPage struct {
	Security  models.MSecurity
	TabLabels []string
	// ActivateTab selects the tab holding the security's own name, when the
	// instrument needs one.
	ActivateTab string
}

// parseCompanyHTML reads the label/value rows and headings of the detail
// page and classifies the instrument.
func parseCompanyHTML(html string) (companyPage, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return companyPage{}, err
	}

	fields := labelValues(doc.Selection)
	var page companyPage
	doc.Find(tabSelector).Each(func(_ int, a *goquery.Selection) {
		page.TabLabels = append(page.TabLabels, cellText(a))
	})

	sec := models.MSecurity{
		Name:    firstHeading(doc.Selection),
		Sector:  fields.get([]string{"sectorname", "sector"}),
		Email:   fields.get([]string{"email", "emailaddress"}),
		Website: fields.get([]string{"companywebsite", "website"}),
		Status:  securityStatus(fields.get([]string{"status", "activestatus"})),
	}
	sec.ListedShares = fields.number([]string{"listedshares", "totallistedshares", "listedsharesnumber"})
	sec.PaidUpValue = fields.number([]string{"paidupvalue", "paidupcapital", "paidupamount"})

	sec.InstrumentType = classifyPage(fields.get([]string{"instrumenttype", "instrument"}), sec.Sector, sec.Name, page.TabLabels)
	if v := fields.get([]string{"permittedtotrade"}); strings.EqualFold(v, "no") || strings.EqualFold(v, "n") {
		sec.Status = models.SecuritySuspended
	}
	page.Security = sec

	if isTabbedInstrument(sec.InstrumentType) {
		page.ActivateTab = instrumentTab(doc, sec.InstrumentType)
	}
	return page, nil
}

// classifyPage trusts the page's own instrument field, sector and heading.
// Tab labels only decide when those say nothing: an equity page may list the
// company's debentures or funds under tabs of their own.
func classifyPage(explicit, sector, heading string, tabs []string) string {
	kind := ClassifyInstrument(explicit, sector, heading)
	if kind != models.InstrumentUnknown {
		return kind
	}
	return ClassifyInstrument(tabs...)
}

// instrumentTab builds a clickable selector for the tab naming kind.
func instrumentTab(doc *goquery.Document, kind string) string {
	return findTab(doc, func(label string) bool { return ClassifyInstrument(label) == kind })
}

// findTab returns a selector for the first tab whose label satisfies match,
// or "" if none does.
func findTab(doc *goquery.Document, match func(label string) bool) string {
	var sel string
	doc.Find(tabSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !match(cellText(a)) {
			return true
		}
		if id, ok := a.Attr("id"); ok && id != "" {
			sel = "#" + id
		} else if href, ok := a.Attr("href"); ok && strings.HasPrefix(href, "#") && len(href) > 1 {
			sel = fmt.Sprintf(`a[href="%s"]`, href)
		} else if li := a.Closest("li"); li.Length() > 0 {
			sel = fmt.Sprintf(".nav-tabs li:nth-child(%d) a", li.Index()+1)
		}
		return sel == ""
	})
	return sel
}

// parseActivatedName reads the security name from the active tab pane.
func parseActivatedName(html string) string {
	doc, err := parseDocument(html)
	if err != nil {
		return ""
	}
	pane := doc.Find(activePaneSel).First()
	if pane.Length() == 0 {
		return ""
	}
	fields := labelValues(pane)
	if v := fields.get([]string{"securityname", "debenturename", "bondname", "schemename", "fundname", "name"}); v != "" {
		return v
	}
	return firstHeading(pane)
}

// -----------------------------------------------------------------------------

// labelValues collects two-cell rows (th/td or td/td) as a record keyed by
// the label.
func labelValues(sel *goquery.Selection) record {
	r := record{}
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("th, td")
		if cells.Length() != 2 {
			return
		}
		k := canonicalKey(cellText(cells.First()))
		if _, seen := r[k]; k != "" && !seen {
			r[k] = cellText(cells.Last())
		}
	})
	return r
}

func firstHeading(sel *goquery.Selection) string {
	for _, q := range []string{"h1", ".company__title", "h2", "h3"} {
		if t := cellText(sel.Find(q).First()); t != "" {
			return t
		}
	}
	return ""
}

// -----------------------------------------------------------------------------
// Fundamentals tables
// -----------------------------------------------------------------------------

// like returns the value of the first key, in sorted order, containing any
// of substrs. Table headers vary too much for exact aliases.
func (r record) like(substrs ...string) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, s := range substrs {
		for _, k := range keys {
			if strings.Contains(k, s) && !isPlaceholder(r[k]) {
				return r[k]
			}
		}
	}
	return ""
}

func number(s string) float64 {
	v, _ := ParseNumber(s)
	return v
}

// ParseDividendsHTML reads the dividend history table, if present.
func ParseDividendsHTML(html string) ([]models.MDividend, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	table := findTable(doc.Selection, "fiscalyear", "cash")
	if table == nil {
		return nil, nil
	}

	var out []models.MDividend
	for _, r := range tableRecords(table) {
		d := models.MDividend{
			FiscalYear:    r.get([]string{"fiscalyear", "fy", "year"}),
			CashPercent:   number(r.like("cash")),
			BonusPercent:  number(r.like("bonus")),
			RightShare:    r.like("right"),
			BookCloseDate: r.like("bookclose"),
		}
		if nd := normalizeDate(d.BookCloseDate); nd != "" {
			d.BookCloseDate = nd
		}
		if d.FiscalYear != "" {
			out = append(out, d)
		}
	}
	return out, nil
}

// ParseFinancialsHTML reads the quarterly financials table, if present.
func ParseFinancialsHTML(html string) ([]models.MFinancial, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	table := findTable(doc.Selection, "fiscalyear", "profit")
	if table == nil {
		return nil, nil
	}

	var out []models.MFinancial
	for _, r := range tableRecords(table) {
		f := models.MFinancial{
			FiscalYear:         r.get([]string{"fiscalyear", "fy", "year"}),
			Quarter:            r.get([]string{"quarter", "qtr"}),
			PaidUpCapital:      number(r.like("paidup")),
			NetProfit:          number(r.like("netprofit", "profit")),
			EPS:                number(r.get([]string{"eps", "earningpershare", "earningspershare"})),
			NetWorthPerShare:   number(r.like("networth", "bookvalue")),
			PriceEarningsRatio: number(r.get([]string{"peratio", "pe", "priceearningsratio"})),
		}
		if f.Quarter == "" {
			f.Quarter = "annual"
		}
		if f.FiscalYear != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Strategies
// -----------------------------------------------------------------------------

func validDetail(d models.MCompanyDetail) error {
	if d.Security.ID <= 0 || d.Security.Symbol == "" || d.Security.Name == "" {
		return fmt.Errorf("incomplete security %d/%q/%q", d.Security.ID, d.Security.Symbol, d.Security.Name)
	}
	return nil
}

func (e *Extractor) companyStrategies(securityID int64, symbol string) []Strategy[models.MCompanyDetail] {
	pageURL := e.url(fmt.Sprintf(companyPathFmt, securityID))
	apiPattern := securityAPI + formatID(securityID)

	return []Strategy[models.MCompanyDetail]{
		{
			Name:    "intercept",
			Timeout: e.timeouts.intercept,
			Run: func(ctx context.Context, tab *browser.Tab) (models.MCompanyDetail, error) {
				bodies, err := tab.CaptureResponses(ctx, pageURL, 0, apiPattern)
				if err != nil {
					return models.MCompanyDetail{}, err
				}
				sec, err := ParseSecurityJSON(bodies[apiPattern])
				if err != nil {
					return models.MCompanyDetail{}, err
				}
				detail := models.MCompanyDetail{Security: sec}
				e.readFundamentals(ctx, tab, &detail)
				return detail, nil
			},
		},
		{
			Name:    "dom",
			Timeout: e.timeouts.dom,
			Run: func(ctx context.Context, tab *browser.Tab) (models.MCompanyDetail, error) {
				if err := tab.Navigate(ctx, pageURL); err != nil {
					return models.MCompanyDetail{}, err
				}
				html, err := tab.HTML(ctx, companyReady)
				if err != nil {
					return models.MCompanyDetail{}, err
				}
				page, err := parseCompanyHTML(html)
				if err != nil {
					return models.MCompanyDetail{}, err
				}

				sec := page.Security
				sec.ID = securityID
				sec.Symbol = trimSymbol(symbol)
				if page.ActivateTab != "" {
					name, err := e.activatedName(ctx, tab, page.ActivateTab)
					if err != nil {
						return models.MCompanyDetail{}, fmt.Errorf("activate %s tab: %w", sec.InstrumentType, err)
					}
					if name != "" {
						sec.Name = name
					}
				}

				detail := models.MCompanyDetail{Security: sec}
				e.readFundamentals(ctx, tab, &detail)
				return detail, nil
			},
		},
	}
}

// -----------------------------------------------------------------------------

func (e *Extractor) activatedName(ctx context.Context, tab *browser.Tab, selector string) (string, error) {
	if err := tab.Click(ctx, selector); err != nil {
		return "", err
	}
	html, err := tab.HTML(ctx, activePaneSel)
	if err != nil {
		return "", err
	}
	return parseActivatedName(html), nil
}

// readFundamentals fills dividends and financials from the loaded page. The
// tables are optional, so failures are logged and the detail kept.
func (e *Extractor) readFundamentals(ctx context.Context, tab *browser.Tab, d *models.MCompanyDetail) {
	html, err := tab.HTML(ctx, "body")
	if err != nil {
		e.Logger.Debug("Fundamentals for %s unavailable: %v", d.Security.Symbol, err)
		return
	}
	if d.Dividends, err = ParseDividendsHTML(html); err != nil {
		e.Logger.Debug("Dividends for %s: %v", d.Security.Symbol, err)
	}
	if d.Financials, err = ParseFinancialsHTML(html); err != nil {
		e.Logger.Debug("Financials for %s: %v", d.Security.Symbol, err)
	}
}

// -----------------------------------------------------------------------------

// FetchCompanyDetail returns the security, its classification and the
// fundamentals shown on its detail page.
func (e *Extractor) FetchCompanyDetail(ctx context.Context, securityID int64, symbol string) (*models.MCompanyDetail, error) {
	if securityID <= 0 {
		return nil, fmt.Errorf("security id %d: %w", securityID, errEmpty)
	}
	op := "company detail " + trimSymbol(symbol)
	d, err := extract(ctx, e, op, validDetail, e.companyStrategies(securityID, symbol))
	if err != nil {
		return nil, err
	}
	return &d, nil
}
