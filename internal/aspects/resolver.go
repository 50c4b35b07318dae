// Package aspects assembles the aspect values a marketplace category needs for a product.
package aspects

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"listing-service/internal/domain"
	"listing-service/internal/metrics"
	"listing-service/internal/staticdata"
	"listing-service/internal/store"
)

// Source names where an aspect value came from.
type Source string

const (
	SourceScopedPattern    Source = "scoped_pattern"
	SourceUniversalPattern Source = "universal_pattern"
	SourceProvider         Source = "provider"
	SourceDefault          Source = "default"
)

// RequirementSource fetches a category's declared aspects from the taxonomy service.
type RequirementSource interface {
	ItemAspects(ctx context.Context, categoryID string) ([]domain.AspectRequirement, error)
}

// Result is the resolved aspect set for one product and category.
// Misses lists required aspects that had no value; they are omitted from Aspects.
type Result struct {
	Aspects map[string][]string
	Sources map[string]Source
	Misses  []string
}

type Resolver struct {
	store   store.AspectStorer
	remote  RequirementSource
	tables  *staticdata.Tables
	matcher *matcher
	logger  logrus.FieldLogger
}

func NewResolver(s store.AspectStorer, remote RequirementSource, tables *staticdata.Tables, logger logrus.FieldLogger) *Resolver {
	return &Resolver{
		store:   s,
		remote:  remote,
		tables:  tables,
		matcher: newMatcher(),
		logger:  logger.WithField("component", "aspects"),
	}
}

// Resolve fills every aspect of the category it can, in declared order:
// category-scoped pattern, universal pattern, provider field, static default.
// Required aspects left empty are recorded as pending misses. Resolve does not
// fail; storage problems only reduce what can be filled.
func (r *Resolver) Resolve(ctx context.Context, category domain.Category, product *domain.Product) Result {
	log := r.logger.WithFields(logrus.Fields{"product_id": product.ID, "category_id": category.ID})
	res := Result{
		Aspects: make(map[string][]string),
		Sources: make(map[string]Source),
	}

	reqs := r.requirements(ctx, category.ID, log)
	if len(reqs) == 0 {
		r.fillMappedOnly(product, &res)
		return res
	}

	patterns, err := r.store.PatternsForCategory(ctx, category.ID)
	if err != nil {
		log.WithError(err).Warn("Failed to load keyword patterns, continuing without them")
	}

	for _, req := range reqs {
		values, source, ok := r.resolveOne(category.ID, req.AspectName, product, patterns)
		if ok {
			res.Aspects[req.AspectName] = values
			res.Sources[req.AspectName] = source
			continue
		}
		if !req.Required {
			continue
		}
		res.Misses = append(res.Misses, req.AspectName)
		r.recordMiss(ctx, category, req.AspectName, product, log)
	}
	return res
}

func (r *Resolver) resolveOne(categoryID, aspect string, product *domain.Product, patterns []domain.KeywordPattern) ([]string, Source, bool) {
	if v, ok := r.matchPattern(aspect, product.Title, patterns, true); ok {
		return []string{v}, SourceScopedPattern, true
	}
	if v, ok := r.matchPattern(aspect, product.Title, patterns, false); ok {
		return []string{v}, SourceUniversalPattern, true
	}
	if field, ok := r.tables.ProviderField(aspect); ok {
		if v := strings.TrimSpace(product.Field(field)); v != "" {
			return []string{v}, SourceProvider, true
		}
	}
	if values, ok := r.tables.AspectDefault(categoryID, aspect); ok {
		return values, SourceDefault, true
	}
	return nil, "", false
}

func (r *Resolver) matchPattern(aspect, title string, patterns []domain.KeywordPattern, scoped bool) (string, bool) {
	for _, p := range patterns {
		if p.Scoped() != scoped || !strings.EqualFold(p.AspectName, aspect) {
			continue
		}
		if r.matcher.Match(p.Pattern, title) {
			return p.Value, true
		}
	}
	return "", false
}

// requirements reads the category's requirements, syncing them from the
// taxonomy service the first time a category is seen.
func (r *Resolver) requirements(ctx context.Context, categoryID string, log logrus.FieldLogger) []domain.AspectRequirement {
	reqs, err := r.store.GetRequirements(ctx, categoryID)
	if err != nil {
		log.WithError(err).Warn("Failed to read aspect requirements")
	}
	if len(reqs) > 0 {
		return reqs
	}

	reqs, err = r.remote.ItemAspects(ctx, categoryID)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch aspect requirements from taxonomy service")
		return nil
	}
	if err := r.store.UpsertRequirements(ctx, reqs); err != nil {
		log.WithError(err).Warn("Failed to store synced aspect requirements")
	}
	return reqs
}

// fillMappedOnly is used when no requirement list is available at all.
func (r *Resolver) fillMappedOnly(product *domain.Product, res *Result) {
	for field, aspect := range r.tables.FieldMapping {
		if v := strings.TrimSpace(product.Field(field)); v != "" {
			res.Aspects[aspect] = []string{v}
			res.Sources[aspect] = SourceProvider
		}
	}
}

func (r *Resolver) recordMiss(ctx context.Context, category domain.Category, aspect string, product *domain.Product, log logrus.FieldLogger) {
	metrics.AspectMisses.Inc()
	miss := &domain.AspectMiss{
		ProductID:     product.ID,
		CategoryID:    category.ID,
		CategoryName:  category.Name,
		AspectName:    aspect,
		ProductTitle:  product.Title,
		ProviderBrand: product.Brand,
		ProviderModel: product.Model,
	}
	recorded, err := r.store.RecordMiss(ctx, miss)
	if err != nil {
		log.WithError(err).WithField("aspect", aspect).Error("Failed to record aspect miss")
		return
	}
	if recorded {
		log.WithFields(logrus.Fields{"aspect": aspect, "miss_id": miss.ID}).Info("Recorded aspect miss")
	}
}
