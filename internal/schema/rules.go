package schema

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"regexp"
	"time"
)

// Field paths referenced outside the rule table.
const (
	PathType      = "type"
	PathAppliedAt = "applied_at"
	PathSales     = "sales"
	PathCampaign  = "campaignID"
)

// LeadType is the only accepted value of the type field.
const LeadType = "lead"

var (
	alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	cyrillicName = regexp.MustCompile(`^[А-Яа-яЁё\s]+$`)
)

// LeadFieldSpecs lists every scalar field of a lead in canonical column
// order. sales is validated separately since it is a list.
var LeadFieldSpecs = buildLeadFieldSpecs()

func buildLeadFieldSpecs() []FieldSpec {
	specs := []FieldSpec{
		{Name: "type", Type: FieldEnum, Default: LeadType, EnumValues: []string{LeadType}},
		{Name: "api_token", Type: FieldText, Required: true},
		{Name: "product", Type: FieldInt, Required: true, Check: intBetween(1, 2)},
		{Name: "stream", Type: FieldText, Required: true, MinLen: 2, MaxLen: 64, Pattern: alphanumeric, PatternMsg: "must contain only latin letters and digits"},
		{Name: "applied_at", Type: FieldDate},

		{Name: "meta.is_test", Type: FieldBool, Default: true},
	}
	for i := 1; i <= 5; i++ {
		specs = append(specs, FieldSpec{
			Name: fmt.Sprintf("meta.sub%d", i), Type: FieldText,
			MinLen: 2, MaxLen: 64, Pattern: alphanumeric, PatternMsg: "must contain only latin letters and digits",
		})
	}

	specs = append(specs,
		cyrillic("user.first_name"),
		cyrillic("user.father_name"),
		cyrillic("user.last_name"),
		FieldSpec{Name: "user.birth_date", Type: FieldDate, Check: adultBirthDate},
		FieldSpec{Name: "user.birth_place", Type: FieldText, MaxLen: 500},
		FieldSpec{Name: "user.gender", Type: FieldEnum, Default: "m", EnumValues: []string{"f", "m"}},
		FieldSpec{Name: "user.phone", Type: FieldInt, Required: true, Digits: 11},
		FieldSpec{Name: "user.email", Type: FieldText, Required: true, Check: emailAddress},
		FieldSpec{Name: "user.ip", Type: FieldText, Default: "127.0.0.1", Check: ipAddress},

		FieldSpec{Name: "consent.status", Type: FieldBool},
		FieldSpec{Name: "consent.datetime", Type: FieldDate},
		FieldSpec{Name: "mailing_consent.status", Type: FieldBool},
		FieldSpec{Name: "mailing_consent.datetime", Type: FieldDate},

		FieldSpec{Name: "codes.snils", Type: FieldText, MaxLen: 12},
		FieldSpec{Name: "codes.inn", Type: FieldText, MaxLen: 12},

		FieldSpec{Name: "passport.seria", Type: FieldDigits, Digits: 4},
		FieldSpec{Name: "passport.number", Type: FieldDigits, Digits: 6},
		FieldSpec{Name: "passport.issuer", Type: FieldText, MaxLen: 255},
		FieldSpec{Name: "passport.issuer_code", Type: FieldText, MaxLen: 20},
		FieldSpec{Name: "passport.date", Type: FieldDate},

		FieldSpec{Name: "credit.amount", Type: FieldNumeric, Default: 1.0, Positive: true},
		FieldSpec{Name: "credit.term", Type: FieldInt, Default: int64(1), Positive: true},
		FieldSpec{Name: "income.salary", Type: FieldNumeric, Default: 1.0, Positive: true},
	)

	specs = append(specs, addressSpecs("addr_reg")...)
	specs = append(specs, addressSpecs("addr_fact")...)
	specs = append(specs, FieldSpec{Name: "addr_fact.equal_to_reg", Type: FieldBool})
	return specs
}

func cyrillic(name string) FieldSpec {
	return FieldSpec{
		Name: name, Type: FieldText, MinLen: 2, MaxLen: 50,
		Pattern: cyrillicName, PatternMsg: "must contain only Cyrillic letters and spaces",
	}
}

func addressSpecs(prefix string) []FieldSpec {
	text := func(field string, maxLen int) FieldSpec {
		return FieldSpec{Name: prefix + "." + field, Type: FieldText, MaxLen: maxLen}
	}
	specs := []FieldSpec{
		text("address", 500),
		text("country", 60),
		{Name: prefix + ".country_iso", Type: FieldText, MinLen: 2, MaxLen: 2},
		text("postal_code", 6),
	}
	for _, level := range []string{"region", "region_area", "city", "city_district", "settlement", "street"} {
		specs = append(specs,
			text(level, 60),
			text(level+"_type", 20),
			text(level+"_fias_id", 36),
			FieldSpec{Name: prefix + "." + level + "_kladr_code", Type: FieldDigits, Digits: 13},
		)
	}
	for _, part := range []string{"house", "block", "flat_num"} {
		typeField := part + "_type"
		if part == "flat_num" {
			typeField = "flat_type"
		}
		specs = append(specs, text(part, 60), text(typeField, 20))
	}
	return specs
}

func intBetween(lo, hi int64) CheckFunc {
	return func(v any, _ time.Time) error {
		n, ok := v.(int64)
		if !ok || n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

// adultBirthDate accepts dates between 100 and 18 years before now.
func adultBirthDate(v any, now time.Time) error {
	t, ok := v.(time.Time)
	if !ok {
		return errors.New("must be a date")
	}
	oldest := now.AddDate(-100, 0, 0)
	youngest := now.AddDate(-18, 0, 0)
	if t.Before(oldest) || t.After(youngest) {
		return errors.New("birth date must be between 18 and 100 years ago")
	}
	return nil
}

func emailAddress(v any, _ time.Time) error {
	s, _ := v.(string)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return errors.New("must be a valid email address")
	}
	return nil
}

func ipAddress(v any, _ time.Time) error {
	s, _ := v.(string)
	if net.ParseIP(s) == nil {
		return errors.New("must be a valid IPv4 or IPv6 address")
	}
	return nil
}
