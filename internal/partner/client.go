// Package partner sends leads to the downstream partner APIs.
//
// UNICORE receives the short SendLead shape at /leads/store. LEADCRAFT
// receives full leads at /webmasters/lead. In both cases the caller's token
// is replaced with the server-side key before the request leaves. Calls are
// not retried; the HTTP client's timeout bounds each request.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/leadintake/internal/config"
	"github.com/JonMunkholm/leadintake/internal/metrics"
	"github.com/JonMunkholm/leadintake/internal/schema"
)

const (
	Unicore   = "unicore"
	Leadcraft = "leadcraft"
)

// maxResponseSize caps how much of a partner response is read.
const maxResponseSize = 1 << 20

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to UNICORE and LEADCRAFT.
type Client struct {
	unicoreURL   string
	unicoreKey   string
	leadcraftURL string
	leadcraftKey string
	httpClient   HTTPDoer
	metrics      *metrics.Metrics
}

// NewClient creates a partner client from config. m may be nil.
func NewClient(cfg config.PartnerConfig, m *metrics.Metrics) *Client {
	return &Client{
		unicoreURL:   strings.TrimRight(cfg.UnicoreURL, "/"),
		unicoreKey:   cfg.UnicoreKey,
		leadcraftURL: strings.TrimRight(cfg.LeadcraftURL, "/"),
		leadcraftKey: cfg.LeadcraftKey,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		metrics:      m,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// SendLead validates lead and posts it to UNICORE with the server token.
// 200, 401 and 422 are returned as a SendResult; anything else is an
// *UpstreamError.
func (c *Client) SendLead(ctx context.Context, lead SendLead) (*SendResult, error) {
	if c.unicoreURL == "" {
		return nil, ErrNotConfigured
	}
	if err := lead.Validate(); err != nil {
		return nil, err
	}
	lead.Token = c.unicoreKey

	status, body, err := c.post(ctx, Unicore, c.unicoreURL+"/leads/store", lead)
	if err != nil {
		return nil, err
	}

	result := &SendResult{StatusCode: status}
	var target any
	switch status {
	case http.StatusOK:
		result.Accepted = &Accepted{}
		target = result.Accepted
	case http.StatusUnauthorized:
		result.Unauthorized = &Unauthorized{}
		target = result.Unauthorized
	case http.StatusUnprocessableEntity:
		result.Rejected = &Rejected{}
		target = result.Rejected
	default:
		return nil, &UpstreamError{Partner: Unicore, StatusCode: status, Body: body}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return nil, fmt.Errorf("%s: decode %d response: %w", Unicore, status, err)
	}
	return result, nil
}

// ForwardLead posts a validated lead to LEADCRAFT with api_token replaced
// and meta.is_test set to isTest. lead is not modified.
func (c *Client) ForwardLead(ctx context.Context, lead *schema.Lead, isTest bool) (*ForwardResult, error) {
	if c.leadcraftURL == "" {
		return nil, ErrNotConfigured
	}

	out := *lead
	out.APIToken = c.leadcraftKey
	out.Meta.IsTest = isTest

	status, body, err := c.post(ctx, Leadcraft, c.leadcraftURL+"/webmasters/lead", &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &UpstreamError{Partner: Leadcraft, StatusCode: status, Body: body}
	}

	var raw struct {
		ID      json.RawMessage `json:"id"`
		Status  string          `json:"status"`
		Details map[string]struct {
			Status string `json:"status"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", Leadcraft, err)
	}

	result := &ForwardResult{ID: raw.ID, Status: raw.Status}
	for id, d := range raw.Details {
		result.Details = append(result.Details, CampaignStatus{CampaignID: id, Status: d.Status})
	}
	slices.SortFunc(result.Details, func(a, b CampaignStatus) int {
		return strings.Compare(a.CampaignID, b.CampaignID)
	})
	return result, nil
}

// post sends payload as JSON and returns the status code and body.
func (c *Client) post(ctx context.Context, partner, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: marshal request: %w", partner, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", partner, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.IncrementPartnerResponse(partner, "error")
		return 0, nil, fmt.Errorf("%s: request failed: %w", partner, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: read response: %w", partner, err)
	}

	c.metrics.IncrementPartnerResponse(partner, strconv.Itoa(resp.StatusCode))
	return resp.StatusCode, body, nil
}
