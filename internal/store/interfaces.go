package store

import (
	"context"
	"time"

	"listing-service/internal/domain"
)

// MissSuggestion is the inference output attached to an aspect miss when it is reviewed.
type MissSuggestion struct {
	Value      string
	Pattern    string
	Confidence string
}

// AspectStorer defines the database operations used while resolving aspects for a listing.
type AspectStorer interface {
	GetRequirements(ctx context.Context, categoryID string) ([]domain.AspectRequirement, error) // In declared order
	UpsertRequirements(ctx context.Context, reqs []domain.AspectRequirement) error
	PatternsForCategory(ctx context.Context, categoryID string) ([]domain.KeywordPattern, error) // Scoped first, then universal
	RecordMiss(ctx context.Context, miss *domain.AspectMiss) (bool, error)                      // False when an identical miss is already pending
}

// LearningStorer defines the database operations of the miss review loop.
type LearningStorer interface {
	PendingMisses(ctx context.Context, limit, maxAttempts int) ([]domain.AspectMiss, error)
	InsertPattern(ctx context.Context, pattern *domain.KeywordPattern) (bool, error) // False when the pattern already existed
	ResolveMiss(ctx context.Context, id int64, status domain.MissStatus, s MissSuggestion) error
	NoteMissFailure(ctx context.Context, id int64, reason string) error
}

// JobStorer defines the database operations behind the job manager API.
type JobStorer interface {
	FindActiveJob(ctx context.Context, userID, searchKey string) (*domain.Job, error)
	CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error)
	GetJobForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) // Ownership is part of the lookup
	ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error)
	FailJob(ctx context.Context, jobID, message string) error
	ListResults(ctx context.Context, userID, searchKey string) ([]domain.CorrelationResult, error)
	SetDecision(ctx context.Context, userID string, resultID int64, decision domain.Decision, reason *string) (*domain.CorrelationResult, error)
}

// WorkerStorer defines the database operations of the correlation worker and the stuck-job monitor.
type WorkerStorer interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimJob(ctx context.Context, jobID string) (bool, error) // False when the job is no longer pending
	SetJobTotal(ctx context.Context, jobID string, total int) error
	UpdateJobProgress(ctx context.Context, jobID string, processed, approved, rejected int) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, message string) error
	SaveResult(ctx context.Context, result *domain.CorrelationResult) (bool, error) // False when the candidate was already stored
	CountStuckJobs(ctx context.Context, olderThan time.Duration) (int, error)
}
