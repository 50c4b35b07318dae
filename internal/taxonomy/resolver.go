// Package taxonomy maps free-text product titles onto a marketplace leaf category.
package taxonomy

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"listing-service/internal/domain"
	"listing-service/internal/metrics"
)

// MaxQueryLength is the longest title the suggestion endpoint accepts.
const MaxQueryLength = 100

// Outcome describes how a Resolution was reached.
type Outcome string

const (
	OutcomeMatched               Outcome = "matched"
	OutcomeFallbackNoCandidates  Outcome = "fallback_no_candidates"
	OutcomeFallbackUpstreamError Outcome = "fallback_upstream_error"
	OutcomeNonLeaf               Outcome = "non_leaf"
)

// Resolution is the category chosen for a title.
type Resolution struct {
	Category domain.Category
	Outcome  Outcome
}

// SuggestionSource returns ranked category candidates for a query.
type SuggestionSource interface {
	CategorySuggestions(ctx context.Context, query string) ([]domain.CategoryCandidate, error)
}

// Resolver picks the marketplace's top-ranked suggestion for a title.
type Resolver struct {
	source   SuggestionSource
	fallback domain.Category
	logger   logrus.FieldLogger
}

func NewResolver(source SuggestionSource, fallback domain.Category, logger logrus.FieldLogger) *Resolver {
	fallback.Leaf = true
	return &Resolver{source: source, fallback: fallback, logger: logger.WithField("component", "taxonomy")}
}

// Resolve never fails: upstream errors and empty suggestion lists degrade to the
// fallback category. A non-leaf top suggestion is returned as is with Leaf=false
// and must be rejected by the caller before any offer is built.
func (r *Resolver) Resolve(ctx context.Context, title string) Resolution {
	query := TruncateTitle(title, MaxQueryLength)
	log := r.logger.WithField("query", query)

	candidates, err := r.source.CategorySuggestions(ctx, query)
	if err != nil {
		log.WithError(err).Warn("Category suggestion failed, using fallback category")
		return r.finish(Resolution{Category: r.fallback, Outcome: OutcomeFallbackUpstreamError})
	}
	if len(candidates) == 0 {
		log.Info("No category suggestions, using fallback category")
		return r.finish(Resolution{Category: r.fallback, Outcome: OutcomeFallbackNoCandidates})
	}

	top := candidates[0].Category
	if !top.Leaf {
		log.WithFields(logrus.Fields{"category_id": top.ID, "category_name": top.Name}).
			Warn("Top category suggestion is not a leaf")
		return r.finish(Resolution{Category: top, Outcome: OutcomeNonLeaf})
	}
	return r.finish(Resolution{Category: top, Outcome: OutcomeMatched})
}

func (r *Resolver) finish(res Resolution) Resolution {
	metrics.TaxonomyOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

// TruncateTitle collapses whitespace and shortens the title to at most limit
// characters, cutting at the last word boundary. A first word longer than
// limit is cut at limit.
func TruncateTitle(title string, limit int) string {
	normalized := strings.Join(strings.Fields(title), " ")
	runes := []rune(normalized)
	if len(runes) <= limit {
		return normalized
	}
	// A space right after the limit means the cut already falls between words.
	if runes[limit] == ' ' {
		return string(runes[:limit])
	}
	cut := runes[:limit]
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return string(cut[:i])
		}
	}
	return string(cut)
}
