// Package provider is the HTTP client for the external Product Data Provider.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"listing-service/internal/domain"
)

var ErrProductNotFound = errors.New("provider: product not found")

// Client fetches product data by external product id.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a provider client. apiKey may be empty for unauthenticated deployments.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Product returns the provider's record for id.
func (c *Client) Product(ctx context.Context, id string) (*domain.Product, error) {
	var resp productResponse
	if err := c.getJSON(ctx, "/products/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Title) == "" {
		return nil, fmt.Errorf("provider: product %s has no title", id)
	}
	p := &domain.Product{
		ID:          id,
		Title:       strings.TrimSpace(resp.Title),
		Brand:       strings.TrimSpace(resp.Brand),
		Model:       strings.TrimSpace(resp.Model),
		Color:       strings.TrimSpace(resp.Color),
		PartNumber:  strings.TrimSpace(resp.PartNumber),
		Description: resp.Description,
		ImageURLs:   resp.Images,
	}
	if upc := strings.TrimSpace(resp.UPC); upc != "" {
		p.UPC = &upc
	}
	return p, nil
}

// Related returns candidate product ids the provider associates with id.
func (c *Client) Related(ctx context.Context, id string) ([]string, error) {
	var resp relatedResponse
	if err := c.getJSON(ctx, "/products/"+url.PathEscape(id)+"/related", &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.IDs))
	for _, rid := range resp.IDs {
		if rid = strings.TrimSpace(rid); rid != "" {
			ids = append(ids, rid)
		}
	}
	return ids, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrProductNotFound
	}
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("provider api error: %s", errResp.Error)
		}
		return fmt.Errorf("provider api error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider decode: %w", err)
	}
	return nil
}

type productResponse struct {
	Title       string   `json:"title"`
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Color       string   `json:"color"`
	PartNumber  string   `json:"part_number"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	UPC         string   `json:"upc"`
}

type relatedResponse struct {
	IDs []string `json:"ids"`
}

type errorResponse struct {
	Error string `json:"error"`
}
