// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "listing"

var (
	// TaxonomyOutcomes counts category resolutions by outcome
	// (matched, fallback_no_candidates, fallback_upstream_error, non_leaf).
	TaxonomyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "taxonomy_resolutions_total",
		Help:      "Category resolutions by outcome.",
	}, []string{"outcome"})

	AspectMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "aspect_misses_total",
		Help:      "Required aspects with no resolvable value.",
	})

	// ListingOutcomes counts listing pipeline results by step (inventory, offer, publish,
	// validation) and result (ok, failed).
	ListingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listing_results_total",
		Help:      "Listing attempts by final step and result.",
	}, []string{"step", "result"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Compensating deletes by resource and result.",
	}, []string{"resource", "result"})

	// JobStarts counts Start calls by outcome (created, already_running, trigger_failed).
	JobStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_starts_total",
		Help:      "Correlation job start calls by outcome.",
	}, []string{"outcome"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Correlation jobs reaching a terminal status.",
	}, []string{"status"})

	JobsStuck = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_stuck_processing",
		Help:      "Jobs in processing longer than the configured bound.",
	})

	// LearningOutcomes counts reviewed misses (processed, review_needed, failed).
	LearningOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "learning_reviews_total",
		Help:      "Aspect miss reviews by outcome.",
	}, []string{"outcome"})
)
