package core

// validation.go checks nested lead records against the lead schema.
//
// Validation collects every violation in a record rather than stopping at
// the first, so a rejected upload tells the user everything that needs
// fixing. Values are coerced to their schema types on the way (CSV cells
// arrive as text), defaults are filled in, and the clean result is decoded
// into a schema.Lead.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/leadintake/internal/pathmap"
	"github.com/JonMunkholm/leadintake/internal/schema"
)

// RecordValidator validates nested records against a list of field specs.
type RecordValidator struct {
	specs []schema.FieldSpec
	now   func() time.Time

	// RequireAppliedAt makes applied_at mandatory. File ingestion sets it;
	// single-record creation leaves it off and applied_at defaults to now.
	RequireAppliedAt bool
}

// NewRecordValidator creates a validator for the canonical lead schema.
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{specs: schema.LeadFieldSpecs, now: time.Now}
}

// WithClock returns a copy of the validator that reads the current time
// from now.
func (v *RecordValidator) WithClock(now func() time.Time) *RecordValidator {
	cp := *v
	cp.now = now
	return &cp
}

// Strict returns a copy that requires applied_at.
func (v *RecordValidator) Strict() *RecordValidator {
	cp := *v
	cp.RequireAppliedAt = true
	return &cp
}

// Validate checks rec and builds the typed lead. On failure it returns a
// *SchemaValidationError holding every violation in field order.
func (v *RecordValidator) Validate(rec *pathmap.Record) (*schema.Lead, error) {
	now := v.now()
	clean := pathmap.NewRecord()
	var errs []FieldError

	for _, spec := range v.specs {
		value, present := lookupScalar(rec, spec.Name)
		if !present && spec.Name == schema.PathAppliedAt && !v.RequireAppliedAt {
			value, present = now.UTC(), true
		}

		if !present {
			if spec.Required || (spec.Name == schema.PathAppliedAt && v.RequireAppliedAt) {
				errs = append(errs, FieldError{Path: spec.Name, Message: "required field is empty"})
				continue
			}
			if spec.Default != nil {
				setClean(clean, spec.Name, spec.Default)
			}
			continue
		}

		coerced, fe := checkField(value, spec, now)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		setClean(clean, spec.Name, coerced)
	}

	sales, salesErrs := validateSales(rec, now)
	errs = append(errs, salesErrs...)

	if len(errs) > 0 {
		return nil, &SchemaValidationError{Errors: errs}
	}

	_ = pathmap.SetValue(clean, []string{schema.PathSales}, sales)

	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode validated lead: %w", err)
	}
	var lead schema.Lead
	if err := json.Unmarshal(data, &lead); err != nil {
		return nil, fmt.Errorf("decode validated lead: %w", err)
	}
	if lead.AppliedAt != nil {
		t := lead.AppliedAt.UTC()
		lead.AppliedAt = &t
	}
	return &lead, nil
}

// lookupScalar finds the value at a dotted path. Blank text counts as
// absent. A nested record or list where a scalar belongs is returned as-is
// so the type check reports it.
func lookupScalar(rec *pathmap.Record, name string) (any, bool) {
	val, ok := rec.Lookup(pathmap.Split(name, pathmap.DefaultSep)...)
	if !ok || val.IsNull() {
		return nil, false
	}
	if val.Kind() != pathmap.KindScalar {
		return val, true
	}
	raw := val.Scalar()
	if isBlank(raw) {
		return nil, false
	}
	return raw, true
}

func setClean(rec *pathmap.Record, name string, v any) {
	// Paths come from the field table and never collide.
	_ = pathmap.SetPath(rec, pathmap.Split(name, pathmap.DefaultSep), v)
}

// checkField coerces value and applies every rule in spec.
func checkField(value any, spec schema.FieldSpec, now time.Time) (any, *FieldError) {
	fail := func(msg string) (any, *FieldError) {
		return nil, &FieldError{Path: spec.Name, Message: msg, Value: displayValue(value)}
	}

	if _, isValue := value.(pathmap.Value); isValue {
		return fail(fmt.Sprintf("must be a single %s value", spec.Type))
	}

	coerced, err := Coerce(value, spec.Type, now)
	if err != nil {
		return fail(err.Error())
	}

	switch c := coerced.(type) {
	case string:
		n := utf8.RuneCountInString(c)
		if spec.MinLen > 0 && n < spec.MinLen {
			return fail(fmt.Sprintf("must be at least %d characters", spec.MinLen))
		}
		if spec.MaxLen > 0 && n > spec.MaxLen {
			return fail(fmt.Sprintf("must be at most %d characters", spec.MaxLen))
		}
		if spec.Digits > 0 && len(c) != spec.Digits {
			return fail(fmt.Sprintf("must be exactly %d digits long", spec.Digits))
		}
		if spec.Pattern != nil && !spec.Pattern.MatchString(c) {
			msg := spec.PatternMsg
			if msg == "" {
				msg = "has an invalid format"
			}
			return fail(msg)
		}
		if spec.Type == schema.FieldEnum && !enumContains(spec.EnumValues, c) {
			return fail("invalid enum value, must be one of: " + strings.Join(spec.EnumValues, ", "))
		}
	case int64:
		if spec.Digits > 0 && (c < 0 || len(strconv.FormatInt(c, 10)) != spec.Digits) {
			return fail(fmt.Sprintf("must be exactly %d digits long", spec.Digits))
		}
		if spec.Positive && c <= 0 {
			return fail("must be greater than 0")
		}
	case float64:
		if spec.Positive && c <= 0 {
			return fail("must be greater than 0")
		}
	case time.Time:
		coerced = c.UTC()
	}

	if spec.Check != nil {
		if err := spec.Check(coerced, now); err != nil {
			return fail(err.Error())
		}
	}
	return coerced, nil
}

// validateSales checks the sales list and returns its clean form.
func validateSales(rec *pathmap.Record, now time.Time) (pathmap.Value, []FieldError) {
	val, ok := rec.Get(schema.PathSales)
	if !ok || val.IsNull() {
		return pathmap.List(), nil
	}
	if val.Kind() != pathmap.KindList {
		return pathmap.Value{}, []FieldError{{
			Path:    schema.PathSales,
			Message: "sales must be a JSON list of sale objects",
			Value:   displayValue(val.Interface()),
		}}
	}

	var errs []FieldError
	items := make([]pathmap.Value, 0, len(val.Items()))
	for i, item := range val.Items() {
		path := fmt.Sprintf("%s.%d.%s", schema.PathSales, i, schema.PathCampaign)
		if item.Kind() != pathmap.KindNested {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("%s.%d", schema.PathSales, i),
				Message: "must be an object with a campaignID",
			})
			continue
		}
		raw, present := lookupScalar(item.Record(), schema.PathCampaign)
		if !present {
			errs = append(errs, FieldError{Path: path, Message: "required field is empty"})
			continue
		}
		id, err := Coerce(raw, schema.FieldText, now)
		if err != nil {
			errs = append(errs, FieldError{Path: path, Message: err.Error()})
			continue
		}
		sale := pathmap.NewRecord()
		sale.Set(schema.PathCampaign, pathmap.Scalar(id))
		items = append(items, pathmap.Nested(sale))
	}
	return pathmap.List(items...), errs
}

func enumContains(values []string, v string) bool {
	for _, ev := range values {
		if ev == v {
			return true
		}
	}
	return false
}

func displayValue(v any) any {
	if s, ok := v.(string); ok && utf8.RuneCountInString(s) > 100 {
		return string([]rune(s)[:100]) + "..."
	}
	return v
}
