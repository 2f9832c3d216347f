package reader

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ParseNumber parses a numeric cell from a statistical table. Blanks and the
// placeholders used for unavailable data ("...", "…", "-", "NA") are NaN.
// Thousands separators (commas, spaces) are removed.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "...", "…", "-", "–", "NA", "N/A", "n/a", "nan", "NaN":
		return math.NaN()
	}
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseYear reads a year header such as "2024" or "2024.0".
func ParseYear(s string) (int, bool) {
	v := ParseNumber(s)
	if math.IsNaN(v) || v != math.Trunc(v) || v < 1000 || v > 9999 {
		return 0, false
	}
	return int(v), true
}

// CleanText trims NUL padding and whitespace and normalizes to NFC so names
// from different sources compare equal.
func CleanText(s string) string {
	s = strings.TrimRight(s, "\x00")
	return norm.NFC.String(strings.TrimSpace(s))
}
