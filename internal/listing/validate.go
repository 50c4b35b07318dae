package listing

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"listing-service/internal/staticdata"
)

// MaxSKULength is the marketplace limit on SKU length.
const MaxSKULength = 50

// SKU derives the stable SKU for a product id: the prefix, a dash and the
// id's letters and digits upper-cased, cut to MaxSKULength.
func SKU(prefix, productID string) string {
	var b strings.Builder
	for _, r := range productID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	sku := b.String()
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		sku = strings.ToUpper(prefix) + "-" + sku
	}
	if len(sku) > MaxSKULength {
		sku = sku[:MaxSKULength]
	}
	return sku
}

// validPrice reports whether price is positive with at most two decimals.
func validPrice(price float64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return false
	}
	cents := price * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// formatPrice renders a validated price as the marketplace's decimal string.
func formatPrice(price float64) string {
	return strconv.FormatFloat(math.Round(price*100)/100, 'f', 2, 64)
}

// normalizeCondition upper-cases and trims a condition code.
func normalizeCondition(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// ValidateOffer checks the category-independent fields and returns the
// effective quantity (0 means 1).
func ValidateOffer(tables *staticdata.Tables, price float64, quantity int, condition string) (int, error) {
	if !validPrice(price) {
		return 0, ErrInvalidPrice
	}
	if quantity < 0 {
		return 0, ErrInvalidQuantity
	}
	if quantity == 0 {
		quantity = 1
	}
	if !tables.IsKnownCondition(normalizeCondition(condition)) {
		return 0, ErrUnknownCondition
	}
	return quantity, nil
}
