package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/normalization"
)

// minColumnCells is the number of direct cells a row needs for column extraction.
const minColumnCells = 5

// symbolPattern matches a ticker-like all-uppercase run.
var symbolPattern = regexp.MustCompile(`\b[A-Z]{2,6}\b`)

// ignoredSymbols are uppercase tokens that are UI labels, not tickers.
var ignoredSymbols = map[string]bool{"BUY": true}

// partial is a row's fields before reconciliation and identity checks.
type partial struct {
	rank      *int
	name      string
	symbol    string
	price     float64
	change    float64
	direction domain.Direction
	volume    float64
	marketCap float64
	imageURL  string

	// moneyCells holds the texts of currency-bearing cells, used by the
	// reconciliation pass when volume or market cap are missing.
	moneyCells []string
}

// RowStrategy extracts a partial record from a row. ok is false when the
// strategy could not make sense of the row.
type RowStrategy interface {
	Name() string
	Applies(row *goquery.Selection) bool
	Extract(row *goquery.Selection, roles RoleMap) (p *partial, ok bool)
}

// DefaultRowStrategies returns the row strategies in priority order.
func DefaultRowStrategies() []RowStrategy {
	return []RowStrategy{columnStrategy{}, textScanStrategy{}}
}

// columnStrategy reads fields by column position, using the role map when
// a role is determined and positional heuristics otherwise.
type columnStrategy struct{}

func (columnStrategy) Name() string { return "column" }

func (columnStrategy) Applies(row *goquery.Selection) bool {
	return row.ChildrenFiltered("td, th").Length() >= minColumnCells
}

func (columnStrategy) Extract(row *goquery.Selection, roles RoleMap) (*partial, bool) {
	cells := row.ChildrenFiltered("td, th")
	p := &partial{direction: domain.DirectionFlat}

	rankIdx, ok := roles.Index(RoleRank)
	if !ok || rankIdx >= cells.Length() {
		rankIdx = leadingRankCell(cells)
	}
	if rankIdx >= 0 {
		p.rank = parseRank(spacedText(cells.Eq(rankIdx)))
	}

	coinIdx, ok := roles.Index(RoleCoin)
	if !ok || coinIdx >= cells.Length() {
		coinIdx = coinCellAfter(cells, rankIdx)
	}
	if coinIdx >= 0 {
		coin := cells.Eq(coinIdx)
		p.symbol = findSymbol(textTokens(coin))
		if alt := imageAlt(coin); alt != "" {
			p.name = alt
		} else {
			p.name = nameWithoutSymbol(textTokens(coin), p.symbol)
		}
	}

	if idx, ok := roles.Index(RolePrice); ok && idx < cells.Length() {
		p.price = normalization.ParseMagnitude(spacedText(cells.Eq(idx)))
	} else if idx := firstMoneyCell(cells, coinIdx); idx >= 0 {
		p.price = normalization.ParseMagnitude(spacedText(cells.Eq(idx)))
	}

	if idx, ok := roles.Index(RoleChange24); ok && idx < cells.Length() {
		p.change, p.direction = normalization.ParsePercent(spacedText(cells.Eq(idx)))
	} else if text, ok := guessChangeCell(cells); ok {
		p.change, p.direction = normalization.ParsePercent(text)
	}

	if idx, ok := roles.Index(RoleVolume24); ok && idx < cells.Length() {
		p.volume = normalization.ParseMagnitude(spacedText(cells.Eq(idx)))
	}
	if idx, ok := roles.Index(RoleMarketCap); ok && idx < cells.Length() {
		p.marketCap = normalization.ParseMagnitude(spacedText(cells.Eq(idx)))
	}

	cells.Each(func(_ int, c *goquery.Selection) {
		if text := spacedText(c); normalization.HasMoney(text) {
			p.moneyCells = append(p.moneyCells, text)
		}
	})
	p.imageURL = imageSource(row)

	return p, p.name != "" || p.symbol != ""
}

// textScanStrategy walks the row's text tokens in document order.
// Currency tokens fill price, market cap and volume in the order met.
// A text node can carry several words ("1 Bitcoin BTC"), so rank and name
// are read word by word; amounts and percents stay whole nodes so "$1.2 B"
// is not split.
type textScanStrategy struct{}

func (textScanStrategy) Name() string { return "text_scan" }

func (textScanStrategy) Applies(*goquery.Selection) bool { return true }

func (textScanStrategy) Extract(row *goquery.Selection, _ RoleMap) (*partial, bool) {
	tokens := textTokens(row)
	p := &partial{direction: domain.DirectionFlat}

	if len(tokens) > 0 {
		words := strings.Fields(tokens[0])
		if rank := parseRank(words[0]); rank != nil {
			p.rank = rank
			tokens[0] = strings.Join(words[1:], " ")
		}
	}
	p.symbol = findSymbol(tokens)

	var money []float64
	var percents []string
	for _, t := range tokens {
		switch {
		case normalization.HasPercent(t):
			percents = append(percents, t)
		case normalization.HasMoney(t):
			money = append(money, normalization.ParseMagnitude(t))
		case p.name == "":
			if name := nameWithoutSymbol([]string{t}, p.symbol); len(name) > 2 && hasLetter(name) {
				p.name = name
			}
		}
	}
	if text, ok := pickChange(percents); ok {
		p.change, p.direction = normalization.ParsePercent(text)
	}
	for i, v := range money {
		switch i {
		case 0:
			p.price = v
		case 1:
			p.marketCap = v
		case 2:
			p.volume = v
		}
	}
	if alt := imageAlt(row); alt != "" {
		p.name = alt
	}
	p.imageURL = imageSource(row)

	return p, p.name != "" || p.symbol != ""
}

// parseRank parses an integer rank such as "3" or "#3".
func parseRank(text string) *int {
	text = strings.TrimPrefix(strings.TrimSpace(text), "#")
	n, err := strconv.Atoi(text)
	if err != nil {
		return nil
	}
	return &n
}

// leadingRankCell returns the index of the rank cell, skipping a leading
// favorite-star cell. It returns -1 when neither of the first two cells
// holds an integer.
func leadingRankCell(cells *goquery.Selection) int {
	for i := 0; i < 2 && i < cells.Length(); i++ {
		if parseRank(spacedText(cells.Eq(i))) != nil {
			return i
		}
		if !isStarCell(cells.Eq(i)) {
			break
		}
	}
	return -1
}

// isStarCell reports whether a cell looks like a watchlist toggle:
// no text of its own, or a star/favorite marker.
func isStarCell(cell *goquery.Selection) bool {
	if strings.TrimSpace(spacedText(cell)) == "" {
		return true
	}
	class, _ := cell.Attr("class")
	class = strings.ToLower(class)
	return strings.Contains(class, "star") || strings.Contains(class, "fav") || strings.Contains(class, "watch")
}

// coinCellAfter picks the coin cell when no header names it: the first cell
// after the rank holding an image, or otherwise the first with letters.
func coinCellAfter(cells *goquery.Selection, rankIdx int) int {
	for i := rankIdx + 1; i < cells.Length(); i++ {
		if cells.Eq(i).Find("img").Length() > 0 {
			return i
		}
	}
	for i := rankIdx + 1; i < cells.Length(); i++ {
		text := spacedText(cells.Eq(i))
		if hasLetter(text) && !normalization.HasMoney(text) && !normalization.HasPercent(text) {
			return i
		}
	}
	return -1
}

func firstMoneyCell(cells *goquery.Selection, after int) int {
	for i := after + 1; i < cells.Length(); i++ {
		if normalization.HasMoney(spacedText(cells.Eq(i))) {
			return i
		}
	}
	return -1
}

// guessChangeCell picks the 24h change among unlabeled percent cells.
func guessChangeCell(cells *goquery.Selection) (string, bool) {
	var percents []string
	cells.Each(func(_ int, c *goquery.Selection) {
		if text := spacedText(c); normalization.HasPercent(text) {
			percents = append(percents, text)
		}
	})
	return pickChange(percents)
}

// pickChange chooses the 24h change among percent texts in row order.
// A single percent is taken as is; with several, the second one is used,
// matching the common 1h / 24h / 7d column order.
func pickChange(percents []string) (string, bool) {
	switch len(percents) {
	case 0:
		return "", false
	case 1:
		return percents[0], true
	default:
		return percents[1], true
	}
}

// findSymbol returns the first ticker-like token, skipping UI labels.
func findSymbol(tokens []string) string {
	for _, t := range tokens {
		for _, m := range symbolPattern.FindAllString(t, -1) {
			if !ignoredSymbols[m] {
				return m
			}
		}
	}
	return ""
}

// nameWithoutSymbol builds a display name from coin cell text, dropping the
// ticker and UI labels.
func nameWithoutSymbol(tokens []string, symbol string) string {
	var words []string
	for _, t := range tokens {
		for _, w := range strings.Fields(t) {
			if w == symbol || ignoredSymbols[strings.ToUpper(w)] {
				continue
			}
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

func imageAlt(sel *goquery.Selection) string {
	alt, _ := sel.Find("img").First().Attr("alt")
	return collapseSpace(alt)
}

func imageSource(sel *goquery.Selection) string {
	img := sel.Find("img").First()
	if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	src, _ := img.Attr("data-src")
	return strings.TrimSpace(src)
}
