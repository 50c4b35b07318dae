// Package learning reviews recorded aspect misses with an inference backend and
// promotes confident answers into keyword patterns.
package learning

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"listing-service/internal/domain"
	"listing-service/internal/inference"
	"listing-service/internal/metrics"
	"listing-service/internal/store"
)

// Inferrer suggests a value and title pattern for one missing aspect.
type Inferrer interface {
	Infer(ctx context.Context, q inference.AspectQuery) (*inference.Suggestion, error)
}

// Summary counts the outcome of one review batch.
type Summary struct {
	Processed    int `json:"processed"`
	ReviewNeeded int `json:"review_needed"`
	Failed       int `json:"failed"`
}

// Loop reviews pending misses. Concurrent runs are safe: pattern inserts ignore
// conflicts and status updates are plain overwrites.
type Loop struct {
	store       store.LearningStorer
	inferrer    Inferrer
	maxAttempts int
	logger      logrus.FieldLogger
}

func NewLoop(s store.LearningStorer, inferrer Inferrer, maxAttempts int, logger logrus.FieldLogger) *Loop {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Loop{store: s, inferrer: inferrer, maxAttempts: maxAttempts, logger: logger.WithField("component", "learning")}
}

// ReviewPending reviews up to limit pending misses, oldest first.
// Only high-confidence suggestions become patterns; medium and low ones are
// parked for human review. A failed inference leaves the miss pending with
// its attempt counter raised, and the batch carries on.
func (l *Loop) ReviewPending(ctx context.Context, limit int) (Summary, error) {
	var sum Summary
	misses, err := l.store.PendingMisses(ctx, limit, l.maxAttempts)
	if err != nil {
		return sum, fmt.Errorf("learning: load pending misses: %w", err)
	}

	for _, miss := range misses {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := l.logger.WithFields(logrus.Fields{
			"miss_id":     miss.ID,
			"product_id":  miss.ProductID,
			"category_id": miss.CategoryID,
			"aspect":      miss.AspectName,
		})
		switch outcome := l.review(ctx, miss, log); outcome {
		case domain.MissProcessed:
			sum.Processed++
		case domain.MissReviewNeeded:
			sum.ReviewNeeded++
		default:
			sum.Failed++
		}
	}

	l.logger.WithFields(logrus.Fields{
		"processed":     sum.Processed,
		"review_needed": sum.ReviewNeeded,
		"failed":        sum.Failed,
	}).Info("Aspect miss review finished")
	return sum, nil
}

// review handles one miss and returns its new status, or MissPending when it stays pending.
func (l *Loop) review(ctx context.Context, miss domain.AspectMiss, log logrus.FieldLogger) domain.MissStatus {
	s, err := l.inferrer.Infer(ctx, inference.AspectQuery{
		AspectName:   miss.AspectName,
		ProductTitle: miss.ProductTitle,
		CategoryName: miss.CategoryName,
	})
	if err != nil {
		l.fail(ctx, miss, err, log)
		return domain.MissPending
	}

	sug := store.MissSuggestion{Value: s.Value, Pattern: s.Pattern, Confidence: string(s.Confidence)}
	var status domain.MissStatus
	switch s.Confidence {
	case inference.ConfidenceHigh:
		categoryID := miss.CategoryID
		inserted, err := l.store.InsertPattern(ctx, &domain.KeywordPattern{
			AspectName: miss.AspectName,
			Pattern:    s.Pattern,
			Value:      s.Value,
			CategoryID: &categoryID,
		})
		if err != nil {
			l.fail(ctx, miss, err, log)
			return domain.MissPending
		}
		log.WithFields(logrus.Fields{"pattern": s.Pattern, "value": s.Value, "inserted": inserted}).
			Info("Promoted high-confidence keyword pattern")
		status = domain.MissProcessed
	case inference.ConfidenceMedium, inference.ConfidenceLow:
		status = domain.MissReviewNeeded
	default:
		l.fail(ctx, miss, fmt.Errorf("%w: confidence %q", inference.ErrUnparseable, s.Confidence), log)
		return domain.MissPending
	}

	if err := l.store.ResolveMiss(ctx, miss.ID, status, sug); err != nil {
		log.WithError(err).Error("Failed to update aspect miss status")
		metrics.LearningOutcomes.WithLabelValues("failed").Inc()
		return domain.MissPending
	}
	metrics.LearningOutcomes.WithLabelValues(string(status)).Inc()
	return status
}

func (l *Loop) fail(ctx context.Context, miss domain.AspectMiss, cause error, log logrus.FieldLogger) {
	metrics.LearningOutcomes.WithLabelValues("failed").Inc()
	log.WithError(cause).Warn("Aspect miss review failed, leaving it pending")
	if err := l.store.NoteMissFailure(ctx, miss.ID, cause.Error()); err != nil {
		log.WithError(err).Error("Failed to record review failure")
	}
}
