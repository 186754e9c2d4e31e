package core

// convert.go turns loosely typed cell values into the types the lead schema
// expects.
//
// These functions handle the messy reality of user-provided files:
//   - Multiple date formats (ISO, RFC 3339, day-first dotted, US slashes)
//   - Currency symbols, spaces and commas in numbers
//   - Various boolean representations (yes/no, true/false, 1/0, да/нет)
//   - Excel formula prefixes (="value")
//   - Numbers that arrive as json.Number or float64 from JSON and XLSX
//
// Parse* functions report ok=false for empty or invalid input so callers
// decide whether that is a null or a violation.

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/leadintake/internal/schema"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var digitsRegex = regexp.MustCompile(`^\d+$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Timestamp layouts tried in order. Layouts without a zone are read as UTC.
var (
	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"02.01.2006 15:04:05",
		"02.01.2006 15:04",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "2.1.06", "02.01.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"2.1.2006", "02.01.2006",
		"1/2/2006", "01/02/2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseTimestamp parses a date or date-time.
// Supports multiple formats and handles 2-digit years with a pivot relative
// to now.
func ParseTimestamp(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseDecimal parses a number, tolerating currency symbols, accounting
// negatives "(123.45)", space or comma thousands separators and a comma
// decimal separator when no dot is present.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", "₽", "руб.", "руб", " ", " ", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt parses a whole number. Integral decimals such as "12.0" are
// accepted since spreadsheets often store integers as floats.
func ParseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, ok := ParseDecimal(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// ParseBool accepts true/false, yes/no, t/f, y/n, 1/0 and да/нет.
func ParseBool(s string) (value, ok bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1", "да":
		return true, true
	case "false", "f", "no", "n", "0", "нет":
		return false, true
	default:
		return false, false
	}
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	return strings.Trim(s, `"'`)
}

// cellText renders a raw value as text for parsing. Floats are printed
// without exponent so large phone numbers survive.
func cellText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return CleanCell(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// isBlank reports whether a raw value means "no value".
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return CleanCell(s) == ""
	}
	return false
}

// Coerce converts a raw value into the Go type for ft:
// string for text, enum and digits, int64, float64, bool and time.Time.
// now anchors two-digit years.
func Coerce(v any, ft schema.FieldType, now time.Time) (any, error) {
	switch ft {
	case schema.FieldBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		s, _ := cellText(v)
		if b, ok := ParseBool(s); ok {
			return b, nil
		}
		return nil, fmt.Errorf("must be yes/no, true/false, or 1/0")

	case schema.FieldInt:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int:
			return int64(t), nil
		}
		s, _ := cellText(v)
		if n, ok := ParseInt(s); ok {
			return n, nil
		}
		return nil, fmt.Errorf("invalid number format: must be an integer")

	case schema.FieldNumeric:
		if f, ok := v.(float64); ok {
			return f, nil
		}
		s, _ := cellText(v)
		if f, ok := ParseDecimal(s); ok {
			return f, nil
		}
		return nil, fmt.Errorf("invalid number format")

	case schema.FieldDate:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD or RFC 3339)")
		}
		if t, ok := ParseTimestamp(CleanCell(s), now); ok {
			return t, nil
		}
		return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD or RFC 3339)")

	case schema.FieldDigits:
		s, ok := cellText(v)
		if !ok {
			return nil, fmt.Errorf("must contain only digits")
		}
		if _, isFloat := v.(float64); isFloat && strings.Contains(s, ".") {
			return nil, fmt.Errorf("must contain only digits")
		}
		if !digitsRegex.MatchString(s) {
			return nil, fmt.Errorf("must contain only digits")
		}
		return s, nil

	default:
		s, ok := cellText(v)
		if !ok {
			return nil, fmt.Errorf("must be text")
		}
		return s, nil
	}
}
