package schema

import "time"

// ExampleLead returns a fully populated lead used for file templates when
// no stored lead is available.
func ExampleLead() *Lead {
	str := func(s string) *string { return &s }
	yes := true
	birth := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	issued := time.Date(2010, time.March, 15, 0, 0, 0, 0, time.UTC)
	applied := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	addr := Address{
		Address:         str("г Москва, ул Тверская, д 1, кв 10"),
		Country:         str("Россия"),
		CountryISO:      str("RU"),
		PostalCode:      str("125009"),
		Region:          str("Москва"),
		RegionType:      str("г"),
		RegionFiasID:    str("0c5b2444-70a0-4932-980c-b4dc0d3f02b5"),
		RegionKladrCode: str("7700000000000"),
		City:            str("Москва"),
		CityType:        str("г"),
		CityFiasID:      str("0c5b2444-70a0-4932-980c-b4dc0d3f02b5"),
		CityKladrCode:   str("7700000000000"),
		Street:          str("Тверская"),
		StreetType:      str("ул"),
		House:           str("1"),
		HouseType:       str("д"),
		FlatNum:         str("10"),
		FlatType:        str("кв"),
	}

	return &Lead{
		Type:      LeadType,
		APIToken:  "token",
		Product:   1,
		Stream:    "stream1",
		AppliedAt: &applied,
		Meta:      Meta{IsTest: true, Sub1: str("sub1")},
		User: User{
			FirstName:  str("Иван"),
			FatherName: str("Иванович"),
			LastName:   str("Иванов"),
			BirthDate:  &birth,
			BirthPlace: str("г Москва"),
			Gender:     "m",
			Phone:      79990000000,
			Email:      "ivanov@example.com",
			IP:         "127.0.0.1",
		},
		Consent:        Consent{Status: &yes, Datetime: &applied},
		MailingConsent: Consent{Status: &yes, Datetime: &applied},
		Codes:          Codes{Snils: str("11223344595"), Inn: str("500100732259")},
		Passport: Passport{
			Seria:      str("4510"),
			Number:     str("123456"),
			Issuer:     str("ОВД Тверского района г Москвы"),
			IssuerCode: str("770-001"),
			Date:       &issued,
		},
		Credit:   Credit{Amount: 50000, Term: 12},
		Income:   Income{Salary: 80000},
		AddrReg:  addr,
		AddrFact: AddressFact{Address: addr, EqualToReg: &yes},
		Sales:    []Sale{{CampaignID: "campaign1"}},
	}
}
