// Package marketplace is the HTTP client for the marketplace Taxonomy Service and Inventory API.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// TokenSource supplies the bearer credential for marketplace calls.
// The credential itself is minted by an external OAuth refresh flow.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns the same token on every call.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("marketplace: empty access token")
	}
	return string(s), nil
}

// Options configures a Client. Policy ids and the merchant location are
// attached to every offer the client creates.
type Options struct {
	BaseURL             string
	MarketplaceID       string
	CategoryTreeID      string
	Currency            string
	FulfillmentPolicyID string
	PaymentPolicyID     string
	ReturnPolicyID      string
	MerchantLocationKey string
	Timeout             time.Duration
}

// Client calls the marketplace REST APIs with a bearer token.
type Client struct {
	opts       Options
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient builds a marketplace client.
func NewClient(opts Options, tokens TokenSource) *Client {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.CategoryTreeID == "" {
		opts.CategoryTreeID = "0"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Client{
		opts:       opts,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// ErrorParameter is a name/value pair attached to a marketplace error.
type ErrorParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ErrorDetail is one entry of the marketplace errors array.
type ErrorDetail struct {
	ErrorID    int              `json:"errorId"`
	Category   string           `json:"category,omitempty"`
	Message    string           `json:"message"`
	Parameters []ErrorParameter `json:"parameters,omitempty"`
}

// APIError is returned for any 4xx/5xx response.
type APIError struct {
	Status int
	Errors []ErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("marketplace api error: status %d", e.Status)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		msgs = append(msgs, d.Message)
	}
	return fmt.Sprintf("marketplace api error: status %d: %s", e.Status, strings.Join(msgs, "; "))
}

// errIDUserError is shared by several request errors, including "offer already
// exists" and missing item specifics; the message and parameters tell them apart.
const errIDUserError = 25002

var missingSpecificPattern = regexp2.MustCompile(`item specifics? (.+?) (?:is|are) missing`, regexp2.IgnoreCase)

// MissingAspects returns the aspect names the marketplace reported as missing.
func (e *APIError) MissingAspects() []string {
	var names []string
	seen := map[string]bool{}
	for _, d := range e.Errors {
		if !strings.Contains(strings.ToLower(d.Message), "item specific") {
			continue
		}
		m, err := missingSpecificPattern.FindStringMatch(d.Message)
		if err != nil || m == nil {
			continue
		}
		name := strings.Trim(m.GroupByNumber(1).String(), `"' .`)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// ExistingOfferID returns the offer id when the marketplace rejected an offer
// because one already exists for the SKU.
func (e *APIError) ExistingOfferID() (string, bool) {
	for _, d := range e.Errors {
		if d.ErrorID != errIDUserError {
			continue
		}
		for _, p := range d.Parameters {
			if p.Name == "offerId" && p.Value != "" {
				return p.Value, true
			}
		}
	}
	return "", false
}

type errorEnvelope struct {
	Errors []ErrorDetail `json:"errors"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Language", "en-US")
	}
	if c.opts.MarketplaceID != "" {
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.opts.MarketplaceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("marketplace request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{Status: resp.StatusCode, Errors: env.Errors}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("marketplace decode: %w", err)
	}
	return nil
}
