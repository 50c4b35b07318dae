package domain

// Product is the provider's view of a product, keyed by its external product id (ASIN-like).
// The json tags correspond to the fields returned by the Product Data Provider.
type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Color       string   `json:"color,omitempty"`
	PartNumber  string   `json:"part_number,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	UPC         *string  `json:"upc,omitempty"` // Pointer for optional fields
}

// Field returns the provider value for one of the mapped field names
// (brand, model, color, partNumber). Unknown names return "".
func (p *Product) Field(name string) string {
	switch name {
	case "brand":
		return p.Brand
	case "model":
		return p.Model
	case "color":
		return p.Color
	case "partNumber":
		return p.PartNumber
	default:
		return ""
	}
}

// Category represents a marketplace taxonomy node.
// Only categories with Leaf set may be used to build an offer.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Leaf bool   `json:"leaf"`
}

// CategoryCandidate is one ranked suggestion returned by the taxonomy service.
// Rank 0 is the best match.
type CategoryCandidate struct {
	Category
	Rank int `json:"rank"`
}
