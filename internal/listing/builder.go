package listing

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"listing-service/internal/domain"
	"listing-service/internal/marketplace"
	"listing-service/internal/metrics"
	"listing-service/internal/staticdata"
)

const compensationTimeout = 30 * time.Second

// InventoryAPI is the slice of the marketplace client the builder drives.
type InventoryAPI interface {
	PutInventoryItem(ctx context.Context, sku string, item marketplace.InventoryItem) error
	CreateOffer(ctx context.Context, offer marketplace.Offer) (string, error)
	UpdateOffer(ctx context.Context, offerID string, offer marketplace.Offer) error
	PublishOffer(ctx context.Context, offerID string) (string, error)
	DeleteOffer(ctx context.Context, offerID string) error
	DeleteInventoryItem(ctx context.Context, sku string) error
}

// Draft is everything needed to create one listing.
type Draft struct {
	ProductID   string
	Category    domain.Category
	Title       string
	Description string
	Aspects     map[string][]string
	ImageURLs   []string
	UPC         string
	Price       float64
	Quantity    int // 0 means 1
	Condition   string
	Publish     bool
}

// Outcome of a successful run. ListingID is empty for drafts.
type Outcome struct {
	SKU         string
	OfferID     string
	ListingID   string
	OfferReused bool
}

// attempt is the compensation ledger of one run.
type attempt struct {
	sku              string
	inventoryCreated bool
	offerID          string
	offerCreated     bool
	offerReused      bool
}

type Builder struct {
	api       InventoryAPI
	tables    *staticdata.Tables
	skuPrefix string
	logger    logrus.FieldLogger
}

func NewBuilder(api InventoryAPI, tables *staticdata.Tables, skuPrefix string, logger logrus.FieldLogger) *Builder {
	return &Builder{api: api, tables: tables, skuPrefix: skuPrefix, logger: logger.WithField("component", "listing_builder")}
}

// validate checks a draft before any remote call and normalises its quantity and condition.
func (b *Builder) validate(d *Draft) error {
	if !d.Category.Leaf {
		return ErrNonLeafCategory
	}
	qty, err := ValidateOffer(b.tables, d.Price, d.Quantity, d.Condition)
	if err != nil {
		return err
	}
	d.Quantity = qty
	d.Condition = normalizeCondition(d.Condition)
	if !b.tables.AllowsCondition(d.Category.ID, d.Condition) {
		return ErrInvalidConditionForCategory
	}
	if SKU("", d.ProductID) == "" {
		return ErrInvalidProductID
	}
	return nil
}

// BuildAndPublish creates the inventory item and offer for the draft and publishes
// the offer when requested. On a remote failure every resource created by this
// run is deleted again before the StepError is returned.
func (b *Builder) BuildAndPublish(ctx context.Context, d Draft) (*Outcome, error) {
	if err := b.validate(&d); err != nil {
		metrics.ListingOutcomes.WithLabelValues("validation", "failed").Inc()
		return nil, err
	}

	a := &attempt{sku: SKU(b.skuPrefix, d.ProductID)}
	log := b.logger.WithFields(logrus.Fields{
		"product_id":  d.ProductID,
		"category_id": d.Category.ID,
		"sku":         a.sku,
	})

	err := b.api.PutInventoryItem(ctx, a.sku, marketplace.InventoryItem{
		Condition:   d.Condition,
		Quantity:    d.Quantity,
		Title:       d.Title,
		Description: d.Description,
		Aspects:     d.Aspects,
		ImageURLs:   d.ImageURLs,
		UPC:         d.UPC,
	})
	if err != nil {
		return nil, b.abort(ctx, a, StepInventory, err, log)
	}
	a.inventoryCreated = true

	offer := marketplace.Offer{
		SKU:         a.sku,
		CategoryID:  d.Category.ID,
		Quantity:    d.Quantity,
		Price:       formatPrice(d.Price),
		Description: d.Description,
	}
	offerID, err := b.api.CreateOffer(ctx, offer)
	if err != nil {
		var apiErr *marketplace.APIError
		existing, ok := "", false
		if errors.As(err, &apiErr) {
			existing, ok = apiErr.ExistingOfferID()
		}
		if !ok {
			return nil, b.abort(ctx, a, StepOffer, err, log)
		}
		log.WithField("offer_id", existing).Info("Reusing existing offer for SKU")
		offerID = existing
		a.offerReused = true
		// The existing offer is overwritten with this run's price, quantity and category.
		if err := b.api.UpdateOffer(ctx, existing, offer); err != nil {
			return nil, b.abort(ctx, a, StepOffer, err, log)
		}
	} else {
		a.offerCreated = true
	}
	a.offerID = offerID

	out := &Outcome{SKU: a.sku, OfferID: offerID, OfferReused: a.offerReused}
	if !d.Publish {
		metrics.ListingOutcomes.WithLabelValues(StepOffer, "ok").Inc()
		log.WithField("offer_id", offerID).Info("Draft offer created")
		return out, nil
	}

	listingID, err := b.api.PublishOffer(ctx, offerID)
	if err != nil {
		return nil, b.abort(ctx, a, StepPublish, err, log)
	}
	out.ListingID = listingID
	metrics.ListingOutcomes.WithLabelValues(StepPublish, "ok").Inc()
	log.WithFields(logrus.Fields{"offer_id": offerID, "listing_id": listingID}).Info("Offer published")
	return out, nil
}

// abort compensates and builds the error the caller sees.
func (b *Builder) abort(ctx context.Context, a *attempt, step string, cause error, log logrus.FieldLogger) error {
	metrics.ListingOutcomes.WithLabelValues(step, "failed").Inc()
	log.WithError(cause).WithField("step", step).Error("Listing step failed")

	b.compensate(ctx, a, log)

	err := cause
	var apiErr *marketplace.APIError
	if errors.As(cause, &apiErr) {
		if names := apiErr.MissingAspects(); len(names) > 0 {
			err = &MissingAspectsError{Names: names, Err: cause}
		}
	}
	return &StepError{Step: step, SKU: a.sku, Err: err}
}

// compensate deletes the offer created in this run, then the inventory item when
// no offer still points at it. An offer that could not be deleted keeps its item.
func (b *Builder) compensate(ctx context.Context, a *attempt, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if a.offerCreated {
		if err := b.api.DeleteOffer(ctx, a.offerID); err != nil {
			metrics.Compensations.WithLabelValues("offer", "failed").Inc()
			log.WithError(err).WithField("offer_id", a.offerID).Error("Compensation failed to delete offer")
			if a.inventoryCreated {
				metrics.Compensations.WithLabelValues("inventory_item", "skipped").Inc()
				log.WithField("offer_id", a.offerID).Warn("Keeping inventory item while its offer still exists")
			}
			return
		}
		metrics.Compensations.WithLabelValues("offer", "ok").Inc()
		log.WithField("offer_id", a.offerID).Info("Compensation deleted offer")
	}
	if a.inventoryCreated && !a.offerReused {
		if err := b.api.DeleteInventoryItem(ctx, a.sku); err != nil {
			metrics.Compensations.WithLabelValues("inventory_item", "failed").Inc()
			log.WithError(err).Error("Compensation failed to delete inventory item")
		} else {
			metrics.Compensations.WithLabelValues("inventory_item", "ok").Inc()
			log.Info("Compensation deleted inventory item")
		}
	}
}
