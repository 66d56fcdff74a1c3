package extraction

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Location is the result of locating the listing table in a document.
type Location struct {
	Table     *goquery.Selection // nil when no table qualified
	Headers   []string
	Roles     RoleMap
	Rows      *goquery.Selection
	RowSource string // name of the row selector that produced Rows
}

// Degraded reports whether no structured table was found.
func (l *Location) Degraded() bool {
	return l.Table == nil
}

// RowSelector yields candidate rows from a document. table is nil when
// no listing table was located.
type RowSelector interface {
	Name() string
	Select(doc *goquery.Document, table *goquery.Selection) *goquery.Selection
}

// DefaultRowSelectors returns the row selectors in fallback order.
func DefaultRowSelectors() []RowSelector {
	return []RowSelector{tableBodyRows{}, coinAttributeRows{}, anyRows{}}
}

type tableBodyRows struct{}

func (tableBodyRows) Name() string { return "table_body" }

func (tableBodyRows) Select(_ *goquery.Document, table *goquery.Selection) *goquery.Selection {
	if table == nil {
		return nil
	}
	return table.ChildrenFiltered("tbody").ChildrenFiltered("tr").FilterFunction(hasDataCells)
}

type coinAttributeRows struct{}

// coinAttributes are row attributes that identify a listed asset.
var coinAttributes = []string{"data-coin-id", "data-coin-symbol", "data-coin-slug"}

func (coinAttributeRows) Name() string { return "coin_attribute" }

func (coinAttributeRows) Select(doc *goquery.Document, _ *goquery.Selection) *goquery.Selection {
	selectors := make([]string, len(coinAttributes))
	for i, attr := range coinAttributes {
		selectors[i] = "tr[" + attr + "]"
	}
	return doc.Find(strings.Join(selectors, ", "))
}

type anyRows struct{}

func (anyRows) Name() string { return "any_row" }

func (anyRows) Select(doc *goquery.Document, _ *goquery.Selection) *goquery.Selection {
	return doc.Find("tr").FilterFunction(hasDataCells)
}

func hasDataCells(_ int, row *goquery.Selection) bool {
	return row.ChildrenFiltered("td").Length() > 0
}

// findTable returns the first table whose headers mention both price and
// market, along with its normalized header texts.
func findTable(doc *goquery.Document) (*goquery.Selection, []string) {
	var (
		found   *goquery.Selection
		headers []string
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		h := tableHeaders(table)
		if containsSubstring(h, "price") && containsSubstring(h, "market") {
			found, headers = table, h
			return false
		}
		return true
	})
	return found, headers
}

// tableHeaders reads the header row of table: the first thead row, or else
// the first row carrying th cells.
func tableHeaders(table *goquery.Selection) []string {
	row := table.Find("thead tr").First()
	if row.Length() == 0 {
		row = table.Find("tr").FilterFunction(func(_ int, r *goquery.Selection) bool {
			return r.ChildrenFiltered("th").Length() > 0
		}).First()
	}
	if row.Length() == 0 {
		return nil
	}
	cells := row.ChildrenFiltered("th, td")
	headers := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		headers = append(headers, strings.ToLower(spacedText(c)))
	})
	return headers
}

func containsSubstring(values []string, sub string) bool {
	for _, v := range values {
		if strings.Contains(v, sub) {
			return true
		}
	}
	return false
}
