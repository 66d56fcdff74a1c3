package orchestrator

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/extraction"
)

// MaxTopN is the hard cap on distinct symbols kept per cycle.
const MaxTopN = extraction.DefaultMaxRank

// DefaultTopN is the number of distinct symbols kept per cycle.
const DefaultTopN = MaxTopN

// Row skip reasons.
const (
	ReasonRankOutOfRange = "rank_out_of_range"
	ReasonNoIdentity     = "no_identity"
	ReasonPanic          = "panic"
	ReasonInvalidRecord  = "invalid_record"
	ReasonDuplicate      = "duplicate"
	ReasonOther          = "other"
)

// RowFailure describes one skipped row.
type RowFailure struct {
	Index  int    // zero-based position among candidate rows
	Reason string // one of the Reason* constants
	Err    error
}

// Extraction is the outcome of reading one page.
type Extraction struct {
	Records   []*domain.AssetRecord // distinct symbols in page order, at most topN
	Failures  []RowFailure
	RowsSeen  int
	RowSource string
	Degraded  bool // no listing table qualified
}

// Symbols returns the symbols of the extracted records.
func (e *Extraction) Symbols() []string {
	symbols := make([]string, len(e.Records))
	for i, r := range e.Records {
		symbols[i] = r.Symbol
	}
	return symbols
}

// Collect parses raw and extracts records in page order. A symbol seen twice
// keeps its first occurrence. Scanning stops once topN distinct symbols are
// collected, or after rowScanLimit rows when rowScanLimit > 0. topN is
// clamped to (0, MaxTopN].
func Collect(ex *extraction.Extractor, raw []byte, topN, rowScanLimit int) (*Extraction, error) {
	if ex == nil {
		ex = extraction.New()
	}
	topN = clampTopN(topN)

	doc, err := ex.Parse(raw)
	if err != nil {
		return &Extraction{Degraded: true}, err
	}
	loc, err := ex.Locate(doc)
	result := &Extraction{RowSource: loc.RowSource, Degraded: loc.Degraded()}
	if err != nil {
		return result, err
	}

	seen := make(map[string]struct{}, topN)
	loc.Rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if rowScanLimit > 0 && i >= rowScanLimit {
			return false
		}
		result.RowsSeen++

		rec, err := ex.ExtractRow(row, loc.Roles)
		if err != nil {
			result.Failures = append(result.Failures, RowFailure{Index: i, Reason: reasonOf(err), Err: err})
			return true
		}
		if _, dup := seen[rec.Symbol]; dup {
			result.Failures = append(result.Failures, RowFailure{Index: i, Reason: ReasonDuplicate, Err: fmt.Errorf("symbol %s already extracted", rec.Symbol)})
			return true
		}
		seen[rec.Symbol] = struct{}{}
		result.Records = append(result.Records, rec)
		return len(result.Records) < topN
	})

	return result, nil
}

func clampTopN(n int) int {
	if n <= 0 || n > MaxTopN {
		return DefaultTopN
	}
	return n
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, extraction.ErrRankOutOfRange):
		return ReasonRankOutOfRange
	case errors.Is(err, extraction.ErrNoIdentity):
		return ReasonNoIdentity
	case errors.Is(err, extraction.ErrRowPanic):
		return ReasonPanic
	case errors.Is(err, extraction.ErrInvalidRecord):
		return ReasonInvalidRecord
	default:
		return ReasonOther
	}
}
