// Package jobs runs correlation-discovery jobs: the manager behind the HTTP API,
// the Redis stream handoff, the worker that scores candidates and the monitor
// that reports jobs stuck in processing.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"listing-service/internal/domain"
	"listing-service/internal/metrics"
	"listing-service/internal/store"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	failTimeout = 10 * time.Second
)

var (
	ErrJobNotFound     = errors.New("jobs: job not found")
	ErrResultNotFound  = errors.New("jobs: result not found")
	ErrInvalidInput    = errors.New("jobs: user id and search key are required")
	ErrInvalidDecision = errors.New("jobs: decision must be accepted or declined")
)

// TriggerError means the job row exists but could not be handed to a worker.
// The job has already been moved to error.
type TriggerError struct {
	JobID string
	Err   error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("jobs: failed to trigger job %s: %v", e.JobID, e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// Enqueuer hands a job id to the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// StartResult is the job that is now active for the key. AlreadyRunning is set
// when no new job was created.
type StartResult struct {
	Job            *domain.Job `json:"job"`
	AlreadyRunning bool        `json:"already_running"`
}

// StatusView is a job with its results, which are only loaded once it is complete.
type StatusView struct {
	Job     *domain.Job                `json:"job"`
	Results []domain.CorrelationResult `json:"results,omitempty"`
}

type Manager struct {
	store  store.JobStorer
	queue  Enqueuer
	logger logrus.FieldLogger
}

func NewManager(s store.JobStorer, queue Enqueuer, logger logrus.FieldLogger) *Manager {
	return &Manager{store: s, queue: queue, logger: logger.WithField("component", "job_manager")}
}

// Start creates a pending job for (userID, searchKey) and enqueues it, unless a
// pending or processing job already exists for the key.
func (m *Manager) Start(ctx context.Context, userID, searchKey string) (*StartResult, error) {
	userID, searchKey = strings.TrimSpace(userID), strings.TrimSpace(searchKey)
	if userID == "" || searchKey == "" {
		return nil, ErrInvalidInput
	}
	log := m.logger.WithFields(logrus.Fields{"user_id": userID, "search_key": searchKey})

	if active, err := m.activeJob(ctx, userID, searchKey); err != nil || active != nil {
		return active, err
	}

	job, err := m.store.CreateJob(ctx, &domain.Job{ID: uuid.NewString(), UserID: userID, SearchKey: searchKey})
	if errors.Is(err, store.ErrActiveJobExists) {
		// Lost the race against a concurrent start.
		active, err := m.activeJob(ctx, userID, searchKey)
		if err == nil && active == nil {
			err = errors.New("jobs: active job disappeared after conflicting insert")
		}
		return active, err
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: create job: %w", err)
	}
	log = log.WithField("job_id", job.ID)

	if err := m.queue.Enqueue(ctx, job.ID); err != nil {
		metrics.JobStarts.WithLabelValues("trigger_failed").Inc()
		log.WithError(err).Error("Failed to hand job to workers")
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
		defer cancel()
		if ferr := m.store.FailJob(failCtx, job.ID, "trigger failed: "+err.Error()); ferr != nil {
			log.WithError(ferr).Error("Failed to mark untriggered job as error")
		}
		return nil, &TriggerError{JobID: job.ID, Err: err}
	}

	metrics.JobStarts.WithLabelValues("created").Inc()
	log.Info("Correlation job started")
	return &StartResult{Job: job}, nil
}

// activeJob returns a StartResult for the active job, or nil when there is none.
func (m *Manager) activeJob(ctx context.Context, userID, searchKey string) (*StartResult, error) {
	job, err := m.store.FindActiveJob(ctx, userID, searchKey)
	if errors.Is(err, store.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: find active job: %w", err)
	}
	metrics.JobStarts.WithLabelValues("already_running").Inc()
	return &StartResult{Job: job, AlreadyRunning: true}, nil
}

// Status returns the caller's job. A job id that is malformed or owned by
// someone else is reported as ErrJobNotFound.
func (m *Manager) Status(ctx context.Context, jobID, userID string) (*StatusView, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, ErrJobNotFound
	}
	job, err := m.store.GetJobForUser(ctx, jobID, userID)
	if errors.Is(err, store.ErrJobNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get job: %w", err)
	}

	view := &StatusView{Job: job}
	if job.Status == domain.JobComplete {
		results, err := m.store.ListResults(ctx, userID, job.SearchKey)
		if err != nil {
			return nil, fmt.Errorf("jobs: list results: %w", err)
		}
		view.Results = results
	}
	return view, nil
}

// List returns the caller's most recent jobs.
func (m *Manager) List(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	jobs, err := m.store.ListJobs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: list jobs: %w", err)
	}
	return jobs, nil
}

// Decide records the caller's verdict on one of their results. A decline
// reason is only kept for declined results.
func (m *Manager) Decide(ctx context.Context, userID string, resultID int64, decision domain.Decision, reason *string) (*domain.CorrelationResult, error) {
	switch decision {
	case domain.DecisionAccepted:
		reason = nil
	case domain.DecisionDeclined:
	default:
		return nil, ErrInvalidDecision
	}
	res, err := m.store.SetDecision(ctx, userID, resultID, decision, reason)
	if errors.Is(err, store.ErrResultNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: set decision: %w", err)
	}
	return res, nil
}
