// Package listing validates listing drafts and runs the inventory item, offer and
// publish sequence against the marketplace, compensating on failure.
package listing

import (
	"errors"
	"fmt"
	"strings"
)

// Steps of the remote listing sequence, used in StepError and metrics.
const (
	StepProvider  = "provider"
	StepInventory = "inventory"
	StepOffer     = "offer"
	StepPublish   = "publish"
)

// ErrValidation is wrapped by every error raised before a remote call.
var ErrValidation = errors.New("listing: invalid request")

var (
	ErrNonLeafCategory             = fmt.Errorf("%w: category is not a leaf category", ErrValidation)
	ErrInvalidPrice                = fmt.Errorf("%w: price must be greater than 0 with at most two decimals", ErrValidation)
	ErrInvalidQuantity             = fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	ErrUnknownCondition            = fmt.Errorf("%w: condition is not a recognised condition", ErrValidation)
	ErrInvalidConditionForCategory = fmt.Errorf("%w: condition is not valid for this category", ErrValidation)
	ErrInvalidProductID            = fmt.Errorf("%w: product id must contain letters or digits", ErrValidation)
)

// StepError reports the remote step that failed. Compensation has already run
// when a StepError reaches the caller.
type StepError struct {
	Step string
	SKU  string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("listing: %s step failed for sku %s: %v", e.Step, e.SKU, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// MissingAspectsError is the marketplace rejecting a listing for missing item specifics.
type MissingAspectsError struct {
	Names []string
	Err   error
}

func (e *MissingAspectsError) Error() string {
	return fmt.Sprintf("listing: marketplace reports missing aspects: %s", strings.Join(e.Names, ", "))
}

func (e *MissingAspectsError) Unwrap() error { return e.Err }
