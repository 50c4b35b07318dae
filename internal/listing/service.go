package listing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"listing-service/internal/aspects"
	"listing-service/internal/domain"
	"listing-service/internal/metrics"
	"listing-service/internal/staticdata"
	"listing-service/internal/taxonomy"
)

// ProductSource looks up product data by external product id.
type ProductSource interface {
	Product(ctx context.Context, id string) (*domain.Product, error)
}

type CategoryResolver interface {
	Resolve(ctx context.Context, title string) taxonomy.Resolution
}

type AspectResolver interface {
	Resolve(ctx context.Context, category domain.Category, product *domain.Product) aspects.Result
}

// Publisher runs the remote create/publish sequence for a draft.
type Publisher interface {
	BuildAndPublish(ctx context.Context, d Draft) (*Outcome, error)
}

// Request asks for one product to be listed.
type Request struct {
	ProductID string
	Price     float64
	Quantity  int
	Condition string
	Publish   bool
}

// Result of a listing request. MissingAspects names required aspects that
// had no value and were left out of the inventory item.
type Result struct {
	SKU            string
	OfferID        string
	ListingID      string
	OfferReused    bool
	Category       domain.Category
	MissingAspects []string
}

type Service struct {
	products   ProductSource
	categories CategoryResolver
	aspects    AspectResolver
	publisher  Publisher
	tables     *staticdata.Tables
	logger     logrus.FieldLogger
}

func NewService(products ProductSource, categories CategoryResolver, aspects AspectResolver, publisher Publisher, tables *staticdata.Tables, logger logrus.FieldLogger) *Service {
	return &Service{
		products:   products,
		categories: categories,
		aspects:    aspects,
		publisher:  publisher,
		tables:     tables,
		logger:     logger.WithField("component", "listing"),
	}
}

// List fetches the product, resolves its category and aspects, and hands the
// draft to the publisher. Offer fields are checked before the provider is called.
func (s *Service) List(ctx context.Context, req Request) (*Result, error) {
	if SKU("", req.ProductID) == "" {
		return nil, ErrInvalidProductID
	}
	if _, err := ValidateOffer(s.tables, req.Price, req.Quantity, req.Condition); err != nil {
		metrics.ListingOutcomes.WithLabelValues("validation", "failed").Inc()
		return nil, err
	}
	log := s.logger.WithField("product_id", req.ProductID)

	product, err := s.products.Product(ctx, req.ProductID)
	if err != nil {
		metrics.ListingOutcomes.WithLabelValues(StepProvider, "failed").Inc()
		log.WithError(err).WithField("step", StepProvider).Error("Product lookup failed")
		return nil, &StepError{Step: StepProvider, Err: fmt.Errorf("product %s: %w", req.ProductID, err)}
	}

	res := s.categories.Resolve(ctx, product.Title)
	log = log.WithFields(logrus.Fields{"category_id": res.Category.ID, "taxonomy_outcome": res.Outcome})
	if !res.Category.Leaf {
		metrics.ListingOutcomes.WithLabelValues("validation", "failed").Inc()
		log.Warn("Refusing to list under a non-leaf category")
		return nil, ErrNonLeafCategory
	}

	resolved := s.aspects.Resolve(ctx, res.Category, product)
	if len(resolved.Misses) > 0 {
		log.WithField("missing_aspects", resolved.Misses).Info("Listing without some required aspects")
	}

	draft := Draft{
		ProductID:   req.ProductID,
		Category:    res.Category,
		Title:       product.Title,
		Description: product.Description,
		Aspects:     resolved.Aspects,
		ImageURLs:   product.ImageURLs,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Condition:   req.Condition,
		Publish:     req.Publish,
	}
	if product.UPC != nil {
		draft.UPC = *product.UPC
	}

	out, err := s.publisher.BuildAndPublish(ctx, draft)
	if err != nil {
		return nil, err
	}
	return &Result{
		SKU:            out.SKU,
		OfferID:        out.OfferID,
		ListingID:      out.ListingID,
		OfferReused:    out.OfferReused,
		Category:       res.Category,
		MissingAspects: resolved.Misses,
	}, nil
}
