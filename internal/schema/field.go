package schema

import (
	"regexp"
	"time"
)

// FieldType represents the expected data type for a lead field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInt
	FieldBool
	FieldDigits // string of decimal digits, leading zeros kept
)

// String returns a human-readable name for a field type.
func (ft FieldType) String() string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "timestamp"
	case FieldNumeric:
		return "decimal"
	case FieldInt:
		return "integer"
	case FieldBool:
		return "bool"
	case FieldDigits:
		return "digits"
	default:
		return "value"
	}
}

// CheckFunc runs an extra rule against an already coerced value.
// now is the validation clock.
type CheckFunc func(v any, now time.Time) error

// FieldSpec defines validation rules for a single field of the nested lead,
// addressed by its dotted path.
type FieldSpec struct {
	Name       string         // Dotted path, e.g. "user.phone"
	Type       FieldType      // Expected data type
	Required   bool           // Value must be present and non-null
	Default    any            // Used when the value is absent or null
	EnumValues []string       // Valid values for FieldEnum
	MinLen     int            // Minimum length in runes (text)
	MaxLen     int            // Maximum length in runes (text), 0 = unbounded
	Digits     int            // Exact digit count (FieldInt, FieldDigits), 0 = any
	Positive   bool           // Numeric value must be > 0
	Pattern    *regexp.Regexp // Text must match
	PatternMsg string         // Message used when Pattern does not match
	Check      CheckFunc      // Optional extra rule
}
