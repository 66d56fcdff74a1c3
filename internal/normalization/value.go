// Package normalization converts textual magnitudes scraped from listing pages
// ("$3.38T", "12,345", "−4.2%") into signed floating-point numbers.
//
// Every function here is total: malformed input degrades to zero, never to an error.
package normalization

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"crypto-tracker/internal/domain"
)

// unicodeMinus is U+2212, used by many listing pages for negative changes.
const unicodeMinus = "−"

// Suffix multipliers. Matching is case-sensitive: "m" is not a million.
var suffixMultipliers = map[byte]float64{
	'T': 1e12,
	'B': 1e9,
	'M': 1e6,
	'K': 1e3,
}

// stripper removes currency glyphs, thousands separators and whitespace.
var stripper = strings.NewReplacer(
	"$", "",
	"€", "",
	"£", "",
	"¥", "",
	",", "",
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
	"\n", "",
	unicodeMinus, "-",
)

// numberPattern matches the first signed decimal literal in a string.
var numberPattern = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

// ParseMagnitude converts a money-like string into a float.
//
// Currency symbols and thousands separators are stripped, a trailing T/B/M/K
// suffix multiplies the preceding literal, and if the whole string still does not
// parse the first signed decimal substring is used. Returns 0 when nothing numeric
// is present.
func ParseMagnitude(text string) float64 {
	s := stripper.Replace(strings.TrimSpace(text))
	if s == "" {
		return 0
	}

	if v, ok := parseWithSuffix(s); ok {
		return v
	}

	m := numberPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, ok := parseFinite(m)
	if !ok {
		return 0
	}
	return v
}

// parseWithSuffix parses s as a plain literal or a literal followed by one suffix.
func parseWithSuffix(s string) (float64, bool) {
	if v, ok := parseFinite(s); ok {
		return v, true
	}
	mult, ok := suffixMultipliers[s[len(s)-1]]
	if !ok || len(s) == 1 {
		return 0, false
	}
	v, ok := parseFinite(s[:len(s)-1])
	if !ok {
		return 0, false
	}
	return v * mult, true
}

// ParsePercent converts a percent string into a signed value and its direction.
// Unparseable input yields (0, flat).
func ParsePercent(text string) (float64, domain.Direction) {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, "%", "")
	s = stripper.Replace(s)
	if s == "" {
		return 0, domain.DirectionFlat
	}

	v, ok := parseFinite(s)
	if !ok {
		return 0, domain.DirectionFlat
	}
	return v, domain.DirectionOf(v)
}

// parseFinite rejects the NaN and Inf spellings strconv accepts.
func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// HasMoney reports whether text looks like a currency amount: a currency glyph and a digit.
func HasMoney(text string) bool {
	return strings.ContainsAny(text, "$€£¥") && strings.ContainsAny(text, "0123456789")
}

// HasPercent reports whether text looks like a percentage: a percent sign and a digit.
func HasPercent(text string) bool {
	return strings.Contains(text, "%") && strings.ContainsAny(text, "0123456789")
}
