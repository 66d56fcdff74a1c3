// Package extraction turns a listing page into asset records.
//
// Extraction runs in layers, each with ordered fallbacks: the listing table
// is located by its headers, candidate rows come from the first row selector
// that yields any, and each row is read by the first row strategy that
// succeeds. A reconciliation pass then fills market cap and volume from the
// row's currency cells when the columns did not provide them.
package extraction

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"crypto-tracker/internal/domain"
)

// DefaultMaxRank is the largest rank kept when a row's rank is known.
const DefaultMaxRank = 10

var (
	// ErrEmptyDocument is returned when there is no markup to parse.
	ErrEmptyDocument = errors.New("empty document")
	// ErrNoRows is returned when no row selector yields a row.
	ErrNoRows = errors.New("no candidate rows")

	// ErrNoIdentity marks a row with neither a name nor a symbol.
	ErrNoIdentity = errors.New("row has no name or symbol")
	// ErrRankOutOfRange marks a row whose rank lies outside [1, max rank].
	ErrRankOutOfRange = errors.New("rank out of range")
	// ErrRowPanic marks a row whose extraction panicked.
	ErrRowPanic = errors.New("row extraction panicked")
	// ErrInvalidRecord marks a row that produced a record failing validation.
	ErrInvalidRecord = errors.New("invalid record")
)

// Extractor holds the selectors and strategies used to read a page.
type Extractor struct {
	maxRank    int
	selectors  []RowSelector
	strategies []RowStrategy
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxRank sets the largest accepted rank.
func WithMaxRank(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxRank = n
		}
	}
}

// WithRowSelectors replaces the row selectors.
func WithRowSelectors(selectors ...RowSelector) Option {
	return func(e *Extractor) {
		e.selectors = selectors
	}
}

// WithRowStrategies replaces the row strategies.
func WithRowStrategies(strategies ...RowStrategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// New creates an Extractor with default selectors and strategies.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxRank:    DefaultMaxRank,
		selectors:  DefaultRowSelectors(),
		strategies: DefaultRowStrategies(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse builds a document from raw markup.
func (e *Extractor) Parse(raw []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyDocument
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Locate finds the listing table, builds its role map and selects candidate
// rows. When no table qualifies the location is degraded: Table is nil, the
// role map is empty and rows come from the document-wide selectors.
func (e *Extractor) Locate(doc *goquery.Document) (*Location, error) {
	table, headers := findTable(doc)
	loc := &Location{Table: table, Headers: headers, Roles: RoleMap{}}
	if table != nil {
		loc.Roles = BuildRoleMap(headers)
	}

	for _, sel := range e.selectors {
		rows := sel.Select(doc, table)
		if rows != nil && rows.Length() > 0 {
			loc.Rows = rows
			loc.RowSource = sel.Name()
			return loc, nil
		}
	}
	return loc, ErrNoRows
}

// ExtractRow reads one row into a record. A skipped row yields a nil record
// and an error saying why. It never panics.
func (e *Extractor) ExtractRow(row *goquery.Selection, roles RoleMap) (rec *domain.AssetRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("%w: %v", ErrRowPanic, r)
		}
	}()

	var p *partial
	for _, s := range e.strategies {
		if !s.Applies(row) {
			continue
		}
		if got, ok := s.Extract(row, roles); ok {
			p = got
			break
		}
	}
	if p == nil {
		return nil, ErrNoIdentity
	}

	reconcile(p)

	if p.rank != nil && (*p.rank < 1 || *p.rank > e.maxRank) {
		return nil, fmt.Errorf("%w: %d", ErrRankOutOfRange, *p.rank)
	}

	rec = toRecord(p)
	if !rec.Validate() {
		return nil, fmt.Errorf("%w: symbol %q", ErrInvalidRecord, rec.Symbol)
	}
	return rec, nil
}

func toRecord(p *partial) *domain.AssetRecord {
	name := p.name
	if name == "" {
		name = p.symbol
	}
	if name == "" {
		name = domain.UnknownName
	}
	direction := p.direction
	if !direction.IsValid() {
		direction = domain.DirectionOf(p.change)
	}
	return &domain.AssetRecord{
		Symbol:          domain.CanonicalSymbol(p.symbol, p.name),
		Name:            name,
		Price:           p.price,
		MarketCap:       p.marketCap,
		Volume24h:       p.volume,
		Change24h:       p.change,
		ChangeDirection: direction,
		ImageURL:        p.imageURL,
		Rank:            p.rank,
	}
}
