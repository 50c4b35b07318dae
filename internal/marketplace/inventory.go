package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// InventoryItem is the body of PUT /inventory_item/{sku}.
type InventoryItem struct {
	Condition   string
	Quantity    int
	Title       string
	Description string
	Aspects     map[string][]string
	ImageURLs   []string
	UPC         string
}

// Offer carries the per-listing offer fields; marketplace, currency, policies
// and location come from the client Options.
type Offer struct {
	SKU         string
	CategoryID  string
	Quantity    int
	Price       string // decimal string with at most two fraction digits
	Description string
}

type inventoryItemBody struct {
	Availability struct {
		ShipToLocationAvailability struct {
			Quantity int `json:"quantity"`
		} `json:"shipToLocationAvailability"`
	} `json:"availability"`
	Condition string           `json:"condition"`
	Product   inventoryProduct `json:"product"`
}

type inventoryProduct struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Aspects     map[string][]string `json:"aspects,omitempty"`
	ImageURLs   []string            `json:"imageUrls,omitempty"`
	UPC         []string            `json:"upc,omitempty"`
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type offerBody struct {
	SKU                 string `json:"sku"`
	MarketplaceID       string `json:"marketplaceId"`
	Format              string `json:"format"`
	AvailableQuantity   int    `json:"availableQuantity"`
	CategoryID          string `json:"categoryId"`
	ListingDescription  string `json:"listingDescription,omitempty"`
	MerchantLocationKey string `json:"merchantLocationKey,omitempty"`
	ListingPolicies     struct {
		FulfillmentPolicyID string `json:"fulfillmentPolicyId,omitempty"`
		PaymentPolicyID     string `json:"paymentPolicyId,omitempty"`
		ReturnPolicyID      string `json:"returnPolicyId,omitempty"`
	} `json:"listingPolicies"`
	PricingSummary struct {
		Price amount `json:"price"`
	} `json:"pricingSummary"`
}

type offerResponse struct {
	OfferID string `json:"offerId"`
}

type publishResponse struct {
	ListingID string `json:"listingId"`
}

// PutInventoryItem creates or replaces the inventory item for sku.
func (c *Client) PutInventoryItem(ctx context.Context, sku string, item InventoryItem) error {
	var body inventoryItemBody
	body.Availability.ShipToLocationAvailability.Quantity = item.Quantity
	body.Condition = item.Condition
	body.Product = inventoryProduct{
		Title:       item.Title,
		Description: item.Description,
		Aspects:     item.Aspects,
		ImageURLs:   item.ImageURLs,
	}
	if item.UPC != "" {
		body.Product.UPC = []string{item.UPC}
	}
	return c.doJSON(ctx, http.MethodPut, "/sell/inventory/v1/inventory_item/"+url.PathEscape(sku), body, nil)
}

func (c *Client) offerBody(offer Offer) offerBody {
	body := offerBody{
		SKU:                 offer.SKU,
		MarketplaceID:       c.opts.MarketplaceID,
		Format:              "FIXED_PRICE",
		AvailableQuantity:   offer.Quantity,
		CategoryID:          offer.CategoryID,
		ListingDescription:  offer.Description,
		MerchantLocationKey: c.opts.MerchantLocationKey,
	}
	body.ListingPolicies.FulfillmentPolicyID = c.opts.FulfillmentPolicyID
	body.ListingPolicies.PaymentPolicyID = c.opts.PaymentPolicyID
	body.ListingPolicies.ReturnPolicyID = c.opts.ReturnPolicyID
	body.PricingSummary.Price = amount{Value: offer.Price, Currency: c.opts.Currency}
	return body
}

// CreateOffer creates an unpublished fixed-price offer and returns its id.
// When an offer already exists for the SKU the returned *APIError reports it
// through ExistingOfferID.
func (c *Client) CreateOffer(ctx context.Context, offer Offer) (string, error) {
	var resp offerResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sell/inventory/v1/offer", c.offerBody(offer), &resp); err != nil {
		return "", err
	}
	if resp.OfferID == "" {
		return "", errors.New("marketplace: offer created without an offerId")
	}
	return resp.OfferID, nil
}

// UpdateOffer replaces the fields of an existing offer.
func (c *Client) UpdateOffer(ctx context.Context, offerID string, offer Offer) error {
	return c.doJSON(ctx, http.MethodPut, "/sell/inventory/v1/offer/"+url.PathEscape(offerID), c.offerBody(offer), nil)
}

// PublishOffer publishes an offer and returns the listing id.
func (c *Client) PublishOffer(ctx context.Context, offerID string) (string, error) {
	var resp publishResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sell/inventory/v1/offer/"+url.PathEscape(offerID)+"/publish", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.ListingID, nil
}

func (c *Client) DeleteOffer(ctx context.Context, offerID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/sell/inventory/v1/offer/"+url.PathEscape(offerID), nil, nil)
}

func (c *Client) DeleteInventoryItem(ctx context.Context, sku string) error {
	return c.doJSON(ctx, http.MethodDelete, "/sell/inventory/v1/inventory_item/"+url.PathEscape(sku), nil, nil)
}
