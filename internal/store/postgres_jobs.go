package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"listing-service/internal/domain"
)

const jobColumns = `id, user_id, search_key, status, total_count, processed_count, approved_count,
	rejected_count, error_message, created_at, started_at, completed_at`

const resultColumns = `id, user_id, search_key, candidate_key, candidate_title, images, score,
	decision, decline_reason, decision_at, created_at`

func scanJob(row scanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.UserID, &j.SearchKey, &j.Status, &j.TotalCount, &j.ProcessedCount, &j.ApprovedCount,
		&j.RejectedCount, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanResult(row scanner) (*domain.CorrelationResult, error) {
	var r domain.CorrelationResult
	err := row.Scan(
		&r.ID, &r.UserID, &r.SearchKey, &r.CandidateKey, &r.CandidateTitle, pq.Array(&r.Images), &r.Score,
		&r.Decision, &r.DeclineReason, &r.DecisionAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- JobStorer Implementation ---

// FindActiveJob returns the pending or processing job for the key, or ErrJobNotFound.
func (s *PostgresStore) FindActiveJob(ctx context.Context, userID, searchKey string) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM listing.correlation_jobs
		WHERE user_id = $1 AND search_key = $2 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1;
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, userID, searchKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("store: FindActiveJob failed to scan row: %w", err)
	}
	return job, nil
}

// CreateJob inserts a pending job. A concurrent insert for the same active key
// is rejected by the partial unique index and reported as ErrActiveJobExists.
func (s *PostgresStore) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO listing.correlation_jobs (id, user_id, search_key, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING ` + jobColumns + `;
	`
	created, err := scanJob(s.db.QueryRowContext(ctx, query, job.ID, job.UserID, job.SearchKey))
	if err != nil {
		if isUniqueViolation(err, activeJobConstraint) {
			return nil, ErrActiveJobExists
		}
		return nil, fmt.Errorf("store: CreateJob failed to scan row: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetJobForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM listing.correlation_jobs
		WHERE id = $1 AND user_id = $2;
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("store: GetJobForUser failed to scan row: %w", err)
	}
	return job, nil
}

// ListJobs returns the user's jobs, most recent first.
func (s *PostgresStore) ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM listing.correlation_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: ListJobs failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListJobs failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListJobs iteration error: %w", err)
	}
	return jobs, nil
}

// FailJob moves a non-terminal job to error. Terminal jobs are left untouched.
func (s *PostgresStore) FailJob(ctx context.Context, jobID, message string) error {
	query := `
		UPDATE listing.correlation_jobs
		SET status = 'error', error_message = $2, completed_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'processing');
	`
	result, err := s.db.ExecContext(ctx, query, jobID, message)
	if err != nil {
		return fmt.Errorf("store: FailJob failed to execute update: %w", err)
	}
	return expectOneRow(result, "FailJob", ErrJobNotTransitable)
}

// ListResults returns the stored candidates for a key, best score first.
func (s *PostgresStore) ListResults(ctx context.Context, userID, searchKey string) ([]domain.CorrelationResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM listing.correlation_results
		WHERE user_id = $1 AND search_key = $2
		ORDER BY score DESC, id ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, userID, searchKey)
	if err != nil {
		return nil, fmt.Errorf("store: ListResults failed to query results: %w", err)
	}
	defer rows.Close()

	results := []domain.CorrelationResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListResults failed to scan result row: %w", err)
		}
		results = append(results, *r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListResults iteration error: %w", err)
	}
	return results, nil
}

// SetDecision records a reviewer's verdict on one of the user's results.
func (s *PostgresStore) SetDecision(ctx context.Context, userID string, resultID int64, decision domain.Decision, reason *string) (*domain.CorrelationResult, error) {
	query := `
		UPDATE listing.correlation_results
		SET decision = $3, decline_reason = $4, decision_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
		RETURNING ` + resultColumns + `;
	`
	r, err := scanResult(s.db.QueryRowContext(ctx, query, resultID, userID, string(decision), reason))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("store: SetDecision failed to scan row: %w", err)
	}
	return r, nil
}

// --- WorkerStorer Implementation ---

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM listing.correlation_jobs
		WHERE id = $1;
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("store: GetJob failed to scan row: %w", err)
	}
	return job, nil
}

// ClaimJob moves a pending job to processing. It returns false when another
// consumer already claimed it or the job was failed in the meantime.
func (s *PostgresStore) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE listing.correlation_jobs
		SET status = 'processing', started_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending';
	`
	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return false, fmt.Errorf("store: ClaimJob failed to execute update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: ClaimJob failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *PostgresStore) SetJobTotal(ctx context.Context, jobID string, total int) error {
	query := `UPDATE listing.correlation_jobs SET total_count = $2 WHERE id = $1 AND status = 'processing';`
	result, err := s.db.ExecContext(ctx, query, jobID, total)
	if err != nil {
		return fmt.Errorf("store: SetJobTotal failed to execute update: %w", err)
	}
	return expectOneRow(result, "SetJobTotal", ErrJobNotTransitable)
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, processed, approved, rejected int) error {
	query := `
		UPDATE listing.correlation_jobs
		SET processed_count = $2, approved_count = $3, rejected_count = $4
		WHERE id = $1 AND status = 'processing';
	`
	result, err := s.db.ExecContext(ctx, query, jobID, processed, approved, rejected)
	if err != nil {
		return fmt.Errorf("store: UpdateJobProgress failed to execute update: %w", err)
	}
	return expectOneRow(result, "UpdateJobProgress", ErrJobNotTransitable)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE listing.correlation_jobs
		SET status = 'complete', completed_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'processing';
	`
	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("store: CompleteJob failed to execute update: %w", err)
	}
	return expectOneRow(result, "CompleteJob", ErrJobNotTransitable)
}

// SaveResult stores an approved candidate. A candidate already stored for the key
// keeps its row, including any decision made on it.
func (s *PostgresStore) SaveResult(ctx context.Context, r *domain.CorrelationResult) (bool, error) {
	query := `
		INSERT INTO listing.correlation_results (user_id, search_key, candidate_key, candidate_title, images, score)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, search_key, candidate_key) DO NOTHING;
	`
	result, err := s.db.ExecContext(ctx, query,
		r.UserID, r.SearchKey, r.CandidateKey, r.CandidateTitle, pq.Array(r.Images), r.Score)
	if err != nil {
		return false, fmt.Errorf("store: SaveResult failed to execute insert: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: SaveResult failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CountStuckJobs counts jobs that have been processing for longer than olderThan.
func (s *PostgresStore) CountStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM listing.correlation_jobs
		WHERE status = 'processing' AND started_at < CURRENT_TIMESTAMP - make_interval(secs => $1);
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, olderThan.Seconds()).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: CountStuckJobs failed to count jobs: %w", err)
	}
	return count, nil
}
