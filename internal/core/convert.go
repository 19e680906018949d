package core

// convert.go provides the typed parsers behind the row normalizer.
//
// Dealer exports are written by German back-office software, so numbers use
// '.' for thousands and ',' for decimals, dates come as DD.MM.YYYY and
// booleans as "j"/"nein" next to "1"/"0". The parsers accept those forms as
// well as the ISO/dotted forms produced by classifieds feeds.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateMode selects which date forms are accepted.
type DateMode string

const (
	// DateStrict accepts DD.MM.YYYY, MM.YYYY and YYYY-MM-DD and rejects anything else.
	DateStrict DateMode = "strict"
	// DateLenient accepts only YYYY-MM-DD and silently drops anything else.
	DateLenient DateMode = "lenient"
)

// IntegerMode selects how non-numeric integer input is handled.
type IntegerMode string

const (
	// IntegerLenient coerces best-effort; text without a numeric prefix becomes 0.
	IntegerLenient IntegerMode = "lenient"
	// IntegerStrict rejects anything that is not a whole (optionally grouped) integer.
	IntegerStrict IntegerMode = "strict"
)

// zeroDate is the MySQL-style placeholder some exports use for "no date".
const zeroDate = "0000-00-00"

var (
	// groupedInteger matches integers with '.' thousands grouping: 12.500, 1.234.567.
	// A leading 0 group (0.750) is a decimal, never grouping.
	groupedInteger = regexp.MustCompile(`^[+-]?[1-9]\d{0,2}(\.\d{3})+$`)

	// plainInteger matches an optionally signed run of digits.
	plainInteger = regexp.MustCompile(`^[+-]?\d+$`)

	// numericPrefix captures the leading number of strings like "150 PS".
	numericPrefix = regexp.MustCompile(`^[+-]?\d[\d.]*`)

	// decimalFormat validates a dotted decimal after separator cleanup.
	decimalFormat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

	// strictDateLayouts are tried in order.
	strictDateLayouts = []string{"2.1.2006", "1.2006", "2006-01-02"}
)

// decimalNoise is stripped from decimal input before separator handling.
var decimalNoise = strings.NewReplacer(
	" ", "",
	"\u00a0", "", // no-break space
	"\u202f", "", // narrow no-break space
	"\u20ac", "", // euro
	"EUR", "",
	"$", "",
	"\u00a3", "",
	"'", "",
)

// ParseDecimal converts a price-like string to float64.
//
// Separator rules:
//   - both '.' and ',' present: the later one is the decimal separator
//   - only ',': decimal comma
//   - only '.': thousands separator when grouped as d{1,3}(.ddd)+, else decimal point
func ParseDecimal(s string) (float64, error) {
	raw := s
	s = decimalNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("invalid number %q", raw)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, fmt.Errorf("invalid number %q", raw)
		}
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if groupedInteger.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	if !decimalFormat.MatchString(s) {
		return 0, fmt.Errorf("invalid number %q", raw)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return f, nil
}

// ParseInteger converts a count-like string (mileage, power, displacement) to int64.
// The exact result reports whether the whole input was consumed as a number;
// lenient coercions (prefix parsing, non-numeric to 0) return exact=false.
// A number outside the int64 range is an error in both modes.
func ParseInteger(s string, mode IntegerMode) (n int64, exact bool, err error) {
	s = strings.TrimSpace(s)

	switch {
	case plainInteger.MatchString(s):
		n, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid integer %q", s)
		}
		return n, true, nil
	case groupedInteger.MatchString(s):
		n, err = strconv.ParseInt(strings.ReplaceAll(s, ".", ""), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid integer %q", s)
		}
		return n, true, nil
	}

	if mode == IntegerStrict {
		return 0, false, fmt.Errorf("invalid integer %q", s)
	}

	prefix := numericPrefix.FindString(s)
	if prefix == "" {
		return 0, false, nil
	}
	if !groupedInteger.MatchString(prefix) {
		// "1.5 l" reads as 1, like a truncating cast
		if i := strings.IndexByte(prefix, '.'); i >= 0 {
			prefix = prefix[:i]
		}
	}
	n, err = strconv.ParseInt(strings.ReplaceAll(prefix, ".", ""), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("integer out of range %q", s)
	}
	return n, false, nil
}

// ParseDate converts a date string to ISO YYYY-MM-DD.
// ok is false when the value should be treated as absent.
func ParseDate(s string, mode DateMode) (iso string, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || s == zeroDate {
		return "", false, nil
	}

	if mode == DateLenient {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return "", false, nil
		}
		return t.Format("2006-01-02"), true, nil
	}

	for _, layout := range strictDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true, nil
		}
	}
	return "", false, fmt.Errorf("invalid date %q", s)
}

// truthy holds the accepted spellings of a set flag, compared case-insensitively.
var truthy = map[string]bool{
	"1":    true,
	"yes":  true,
	"true": true,
	"j":    true,
	"y":    true,
}

// ParseBool renders a flag as "1" or "0". Any present value is coerced.
func ParseBool(s string) string {
	if truthy[strings.ToLower(strings.TrimSpace(s))] {
		return "1"
	}
	return "0"
}

// CleanText trims surrounding whitespace and quote characters.
func CleanText(s string) string {
	return strings.Trim(s, " \t\r\n\"'")
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	return s
}

// CleanHeader normalizes a header cell: BOM stripped, trimmed, lowercased.
func CleanHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(CleanText(s))
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are cleaned with CleanHeader; the first occurrence of a name wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := CleanHeader(h)
		if key == "" {
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}
