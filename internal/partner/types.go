package partner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// ErrNotConfigured is returned when the partner's base URL is not set.
var ErrNotConfigured = errors.New("partner API is not configured")

// SendLead is the short lead shape accepted by UNICORE.
type SendLead struct {
	ID         *int64  `json:"id"`
	Phone      int64   `json:"phone"`
	Campaign   string  `json:"campaign"`
	Token      string  `json:"token"`
	ExternalID *string `json:"external_id"`
	Sub1       *string `json:"sub1"`
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	FatherName *string `json:"father_name"`
}

// Validate checks the fields UNICORE rejects outright. All problems are
// returned joined.
func (l *SendLead) Validate() error {
	var errs []error

	phone := strconv.FormatInt(l.Phone, 10)
	switch {
	case len(phone) != 11:
		errs = append(errs, &ValidationError{Field: "phone", Message: "phone number must be exactly 11 digits long"})
	case phone[0] != '7':
		errs = append(errs, &ValidationError{Field: "phone", Message: "phone number must start with 7"})
	}
	if l.Campaign == "" {
		errs = append(errs, &ValidationError{Field: "campaign", Message: "required field is empty"})
	}
	if l.Sub1 != nil {
		if n := utf8.RuneCountInString(*l.Sub1); n < 2 || n > 128 {
			errs = append(errs, &ValidationError{Field: "sub1", Message: "length must be between 2 and 128"})
		}
	}
	return errors.Join(errs...)
}

// ValidationError reports one invalid outgoing lead field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid outgoing lead: %s: %s", e.Field, e.Message)
}

// Accepted is UNICORE's 200 response.
type Accepted struct {
	LeadID     int64  `json:"lead_id"`
	LeadStatus string `json:"lead_status"`
	Status     string `json:"status"`
}

// Unauthorized is UNICORE's 401 response.
type Unauthorized struct {
	Error string `json:"error"`
}

// Rejected is UNICORE's 422 response.
type Rejected struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// SendResult holds exactly one of the UNICORE outcomes.
type SendResult struct {
	StatusCode   int
	Accepted     *Accepted
	Unauthorized *Unauthorized
	Rejected     *Rejected
}

// Body returns the populated outcome for relaying to the caller.
func (r *SendResult) Body() any {
	switch {
	case r.Accepted != nil:
		return r.Accepted
	case r.Unauthorized != nil:
		return r.Unauthorized
	default:
		return r.Rejected
	}
}

// CampaignStatus is the per-campaign outcome of a forwarded lead.
type CampaignStatus struct {
	CampaignID string `json:"campaignID"`
	Status     string `json:"status"`
}

// ForwardResult is LEADCRAFT's 200 response.
type ForwardResult struct {
	ID      json.RawMessage  `json:"id"`
	Status  string           `json:"status"`
	Details []CampaignStatus `json:"details"`
}

// UpstreamError carries a partner response outside the documented set.
type UpstreamError struct {
	Partner    string
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Partner, e.StatusCode, body)
}
