package domain

import "time"

// AspectRequirement states whether an aspect is required for a category.
// Keyed by (CategoryID, AspectName).
type AspectRequirement struct {
	CategoryID string `json:"category_id"`
	AspectName string `json:"aspect_name"`
	Required   bool   `json:"required"`
}

// KeywordPattern maps a title pattern to an aspect value.
// A nil CategoryID means the pattern applies to every category.
type KeywordPattern struct {
	ID         int64     `json:"id"`
	AspectName string    `json:"aspect_name"`
	Pattern    string    `json:"pattern"`
	Value      string    `json:"value"`
	CategoryID *string   `json:"category_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Scoped reports whether the pattern is a category-scoped override.
func (p KeywordPattern) Scoped() bool {
	return p.CategoryID != nil
}

// MissStatus is the lifecycle state of an AspectMiss.
type MissStatus string

const (
	MissPending      MissStatus = "pending"
	MissProcessed    MissStatus = "processed"
	MissReviewNeeded MissStatus = "review_needed"
)

// AspectMiss records a required aspect that had no resolvable value at listing time.
// Rows are append-only; only the status and suggestion columns change.
type AspectMiss struct {
	ID               int64      `json:"id"`
	ProductID        string     `json:"product_id"`
	CategoryID       string     `json:"category_id"`
	CategoryName     string     `json:"category_name"`
	AspectName       string     `json:"aspect_name"`
	ProductTitle     string     `json:"product_title"`
	ProviderBrand    string     `json:"provider_brand,omitempty"`
	ProviderModel    string     `json:"provider_model,omitempty"`
	Status           MissStatus `json:"status"`
	SuggestedValue   *string    `json:"suggested_value,omitempty"`
	SuggestedPattern *string    `json:"suggested_pattern,omitempty"`
	Confidence       *string    `json:"confidence,omitempty"`
	Attempts         int        `json:"attempts"`
	LastError        *string    `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
