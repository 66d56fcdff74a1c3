package domain

import "strings"

// MaxSymbolLength bounds the canonical symbol identifier.
const MaxSymbolLength = 10

// UnknownName is the display name used when a row yields none.
const UnknownName = "Unknown"

// Direction is the sign of the 24h change.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionUp || d == DirectionDown || d == DirectionFlat
}

// DirectionOf classifies a signed percent change.
func DirectionOf(change float64) Direction {
	switch {
	case change > 0:
		return DirectionUp
	case change < 0:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// AssetRecord is one asset's extracted field set for a single extraction cycle.
// Records are created and discarded within one orchestrator run.
type AssetRecord struct {
	Symbol          string    // canonical identifier, uppercased, 1-10 chars
	Name            string    // display name
	Price           float64   // USD price
	MarketCap       float64   // USD market capitalisation
	Volume24h       float64   // USD traded volume over 24h
	Change24h       float64   // signed percent
	ChangeDirection Direction // derived from Change24h
	ImageURL        string    // logo source, may be empty
	Rank            *int      // leaderboard position when resolvable
}

// CanonicalSymbol derives the symbol for a record: the explicit token when present,
// otherwise the first whitespace-delimited token of name. The result is uppercased and
// truncated to MaxSymbolLength. Returns "" when neither input yields a token.
func CanonicalSymbol(symbol, name string) string {
	s := strings.TrimSpace(symbol)
	if s == "" {
		fields := strings.Fields(name)
		if len(fields) == 0 {
			return ""
		}
		s = fields[0]
	}
	s = strings.ToUpper(s)
	if r := []rune(s); len(r) > MaxSymbolLength {
		s = string(r[:MaxSymbolLength])
	}
	return s
}

// Validate reports whether the record can be persisted.
func (r *AssetRecord) Validate() bool {
	if r == nil || r.Symbol == "" || len([]rune(r.Symbol)) > MaxSymbolLength {
		return false
	}
	return r.Price >= 0 && r.MarketCap >= 0 && r.Volume24h >= 0
}
