package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"listing-service/internal/correlation"
	"listing-service/internal/domain"
	"listing-service/internal/metrics"
	"listing-service/internal/provider"
	"listing-service/internal/store"
)

// ProductSource supplies the source product and its related candidates.
type ProductSource interface {
	Product(ctx context.Context, id string) (*domain.Product, error)
	Related(ctx context.Context, id string) ([]string, error)
}

// Worker runs one correlation job end to end.
type Worker struct {
	store         store.WorkerStorer
	products      ProductSource
	scorer        *correlation.Scorer
	maxCandidates int
	logger        logrus.FieldLogger
}

func NewWorker(s store.WorkerStorer, products ProductSource, scorer *correlation.Scorer, maxCandidates int, logger logrus.FieldLogger) *Worker {
	if maxCandidates <= 0 {
		maxCandidates = 50
	}
	return &Worker{
		store:         s,
		products:      products,
		scorer:        scorer,
		maxCandidates: maxCandidates,
		logger:        logger.WithField("component", "job_worker"),
	}
}

// Handle claims the job and processes it. A job that is no longer pending is
// skipped, so a redelivered message does nothing. Once claimed, any failure,
// shutdown included, moves the job to error so its owner can start it again.
func (w *Worker) Handle(ctx context.Context, jobID string) error {
	log := w.logger.WithField("job_id", jobID)

	claimed, err := w.store.ClaimJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("jobs: claim %s: %w", jobID, err)
	}
	if !claimed {
		log.Info("Job already claimed or finished, skipping")
		return nil
	}

	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return w.fail(ctx, jobID, fmt.Errorf("load job: %w", err), log)
	}
	log = log.WithFields(logrus.Fields{"user_id": job.UserID, "search_key": job.SearchKey})

	if err := w.run(ctx, job, log); err != nil {
		return w.fail(ctx, jobID, err, log)
	}
	if err := w.store.CompleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("jobs: complete %s: %w", jobID, err)
	}
	metrics.JobsFinished.WithLabelValues(string(domain.JobComplete)).Inc()
	log.Info("Correlation job complete")
	return nil
}

func (w *Worker) run(ctx context.Context, job *domain.Job, log logrus.FieldLogger) error {
	source, err := w.products.Product(ctx, job.SearchKey)
	if err != nil {
		return fmt.Errorf("fetch source product: %w", err)
	}
	related, err := w.products.Related(ctx, job.SearchKey)
	if err != nil {
		return fmt.Errorf("fetch related products: %w", err)
	}
	candidates := w.candidates(job.SearchKey, related)
	if err := w.store.SetJobTotal(ctx, job.ID, len(candidates)); err != nil {
		return err
	}

	var processed, approved, rejected int
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidate, err := w.products.Product(ctx, id)
		switch {
		case errors.Is(err, provider.ErrProductNotFound):
			rejected++
		case err != nil:
			return fmt.Errorf("fetch candidate %s: %w", id, err)
		default:
			m := w.scorer.Score(source, candidate)
			if !m.Approved {
				rejected++
				break
			}
			if _, err := w.store.SaveResult(ctx, &domain.CorrelationResult{
				UserID:         job.UserID,
				SearchKey:      job.SearchKey,
				CandidateKey:   candidate.ID,
				CandidateTitle: candidate.Title,
				Images:         candidate.ImageURLs,
				Score:          m.Score,
			}); err != nil {
				return err
			}
			approved++
		}
		processed++
		if err := w.store.UpdateJobProgress(ctx, job.ID, processed, approved, rejected); err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{"processed": processed, "approved": approved, "rejected": rejected}).
		Debug("Candidates scored")
	return nil
}

// candidates drops duplicates and the source itself, keeping provider order.
func (w *Worker) candidates(sourceID string, related []string) []string {
	seen := map[string]bool{strings.ToUpper(sourceID): true}
	out := make([]string, 0, len(related))
	for _, id := range related {
		key := strings.ToUpper(strings.TrimSpace(id))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(id))
		if len(out) == w.maxCandidates {
			break
		}
	}
	return out
}

func (w *Worker) fail(ctx context.Context, jobID string, cause error, log logrus.FieldLogger) error {
	log.WithError(cause).Error("Correlation job failed")
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	if err := w.store.FailJob(failCtx, jobID, cause.Error()); err != nil {
		log.WithError(err).Error("Failed to mark job as error")
	} else {
		metrics.JobsFinished.WithLabelValues(string(domain.JobError)).Inc()
	}
	return fmt.Errorf("jobs: job %s: %w", jobID, cause)
}
