// Package schema defines the canonical lead record and the rules every
// incoming lead is validated against.
package schema

import "time"

// Lead is a validated lead in its canonical nested shape.
// Sub-entities are values so that every lead flattens to the same columns.
type Lead struct {
	Type           string      `json:"type"`
	APIToken       string      `json:"api_token"`
	Product        int64       `json:"product"`
	Stream         string      `json:"stream"`
	AppliedAt      *time.Time  `json:"applied_at"`
	Meta           Meta        `json:"meta"`
	User           User        `json:"user"`
	Consent        Consent     `json:"consent"`
	MailingConsent Consent     `json:"mailing_consent"`
	Codes          Codes       `json:"codes"`
	Passport       Passport    `json:"passport"`
	Credit         Credit      `json:"credit"`
	Income         Income      `json:"income"`
	AddrReg        Address     `json:"addr_reg"`
	AddrFact       AddressFact `json:"addr_fact"`
	Sales          []Sale      `json:"sales"`
}

type Meta struct {
	IsTest bool    `json:"is_test"`
	Sub1   *string `json:"sub1"`
	Sub2   *string `json:"sub2"`
	Sub3   *string `json:"sub3"`
	Sub4   *string `json:"sub4"`
	Sub5   *string `json:"sub5"`
}

type User struct {
	FirstName  *string    `json:"first_name"`
	FatherName *string    `json:"father_name"`
	LastName   *string    `json:"last_name"`
	BirthDate  *time.Time `json:"birth_date"`
	BirthPlace *string    `json:"birth_place"`
	Gender     string     `json:"gender"`
	Phone      int64      `json:"phone"`
	Email      string     `json:"email"`
	IP         string     `json:"ip"`
}

// Consent is used for both consent and mailing_consent.
type Consent struct {
	Status   *bool      `json:"status"`
	Datetime *time.Time `json:"datetime"`
}

type Codes struct {
	Snils *string `json:"snils"`
	Inn   *string `json:"inn"`
}

type Passport struct {
	Seria      *string    `json:"seria"`
	Number     *string    `json:"number"`
	Issuer     *string    `json:"issuer"`
	IssuerCode *string    `json:"issuer_code"`
	Date       *time.Time `json:"date"`
}

type Credit struct {
	Amount float64 `json:"amount"`
	Term   int64   `json:"term"`
}

type Income struct {
	Salary float64 `json:"salary"`
}

// Address is a registration or residence address with FIAS/KLADR
// references for each level.
type Address struct {
	Address    *string `json:"address"`
	Country    *string `json:"country"`
	CountryISO *string `json:"country_iso"`
	PostalCode *string `json:"postal_code"`

	Region          *string `json:"region"`
	RegionType      *string `json:"region_type"`
	RegionFiasID    *string `json:"region_fias_id"`
	RegionKladrCode *string `json:"region_kladr_code"`

	RegionArea          *string `json:"region_area"`
	RegionAreaType      *string `json:"region_area_type"`
	RegionAreaFiasID    *string `json:"region_area_fias_id"`
	RegionAreaKladrCode *string `json:"region_area_kladr_code"`

	City          *string `json:"city"`
	CityType      *string `json:"city_type"`
	CityFiasID    *string `json:"city_fias_id"`
	CityKladrCode *string `json:"city_kladr_code"`

	CityDistrict          *string `json:"city_district"`
	CityDistrictType      *string `json:"city_district_type"`
	CityDistrictFiasID    *string `json:"city_district_fias_id"`
	CityDistrictKladrCode *string `json:"city_district_kladr_code"`

	Settlement          *string `json:"settlement"`
	SettlementType      *string `json:"settlement_type"`
	SettlementFiasID    *string `json:"settlement_fias_id"`
	SettlementKladrCode *string `json:"settlement_kladr_code"`

	Street          *string `json:"street"`
	StreetType      *string `json:"street_type"`
	StreetFiasID    *string `json:"street_fias_id"`
	StreetKladrCode *string `json:"street_kladr_code"`

	House     *string `json:"house"`
	HouseType *string `json:"house_type"`
	Block     *string `json:"block"`
	BlockType *string `json:"block_type"`
	FlatNum   *string `json:"flat_num"`
	FlatType  *string `json:"flat_type"`
}

// AddressFact is the actual residence address.
type AddressFact struct {
	Address
	EqualToReg *bool `json:"equal_to_reg"`
}

type Sale struct {
	CampaignID string `json:"campaignID"`
}

// StoredLead is a lead as persisted, with its store-assigned identity.
type StoredLead struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Lead
}
