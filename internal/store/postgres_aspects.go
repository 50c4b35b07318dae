package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"listing-service/internal/domain"
)

// --- AspectStorer Implementation ---

func (s *PostgresStore) GetRequirements(ctx context.Context, categoryID string) ([]domain.AspectRequirement, error) {
	query := `
		SELECT category_id, aspect_name, required
		FROM listing.aspect_requirements
		WHERE category_id = $1
		ORDER BY position ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("store: GetRequirements failed to query requirements: %w", err)
	}
	defer rows.Close()

	reqs := []domain.AspectRequirement{}
	for rows.Next() {
		var r domain.AspectRequirement
		if err := rows.Scan(&r.CategoryID, &r.AspectName, &r.Required); err != nil {
			return nil, fmt.Errorf("store: GetRequirements failed to scan requirement row: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetRequirements iteration error: %w", err)
	}
	return reqs, nil
}

// UpsertRequirements re-syncs a category's requirements in one transaction.
// The slice order becomes the declared order.
func (s *PostgresStore) UpsertRequirements(ctx context.Context, reqs []domain.AspectRequirement) error {
	if len(reqs) == 0 {
		return nil
	}
	query := `
		INSERT INTO listing.aspect_requirements (category_id, aspect_name, required, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (category_id, aspect_name)
		DO UPDATE SET required = EXCLUDED.required, position = EXCLUDED.position;
	`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: UpsertRequirements failed to begin transaction: %w", err)
	}
	for i, r := range reqs {
		if _, err := tx.ExecContext(ctx, query, r.CategoryID, r.AspectName, r.Required, i); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: UpsertRequirements failed for aspect %q: %w", r.AspectName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: UpsertRequirements failed to commit: %w", err)
	}
	return nil
}

// PatternsForCategory returns the category-scoped patterns followed by the universal ones,
// each group in insertion order.
func (s *PostgresStore) PatternsForCategory(ctx context.Context, categoryID string) ([]domain.KeywordPattern, error) {
	query := `
		SELECT id, aspect_name, pattern, value, category_id, created_at
		FROM listing.aspect_keyword_patterns
		WHERE category_id = $1 OR category_id IS NULL
		ORDER BY (category_id IS NULL) ASC, id ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("store: PatternsForCategory failed to query patterns: %w", err)
	}
	defer rows.Close()

	patterns := []domain.KeywordPattern{}
	for rows.Next() {
		var p domain.KeywordPattern
		if err := rows.Scan(&p.ID, &p.AspectName, &p.Pattern, &p.Value, &p.CategoryID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: PatternsForCategory failed to scan pattern row: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: PatternsForCategory iteration error: %w", err)
	}
	return patterns, nil
}

// RecordMiss appends a pending miss unless the same product, category and aspect
// already has one waiting for review.
func (s *PostgresStore) RecordMiss(ctx context.Context, miss *domain.AspectMiss) (bool, error) {
	query := `
		INSERT INTO listing.aspect_misses
			(product_id, category_id, category_name, aspect_name, product_title, provider_brand, provider_model, status)
		SELECT $1, $2, $3, $4, $5, $6, $7, 'pending'
		WHERE NOT EXISTS (
			SELECT 1 FROM listing.aspect_misses
			WHERE product_id = $1 AND category_id = $2 AND aspect_name = $4 AND status = 'pending'
		)
		RETURNING id, status, attempts, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query,
		miss.ProductID, miss.CategoryID, miss.CategoryName, miss.AspectName,
		miss.ProductTitle, miss.ProviderBrand, miss.ProviderModel,
	).Scan(&miss.ID, &miss.Status, &miss.Attempts, &miss.CreatedAt, &miss.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("store: RecordMiss failed to insert miss: %w", err)
	}
	return true, nil
}

// --- LearningStorer Implementation ---

// PendingMisses returns up to limit pending misses, oldest first, skipping those
// that already failed maxAttempts times.
func (s *PostgresStore) PendingMisses(ctx context.Context, limit, maxAttempts int) ([]domain.AspectMiss, error) {
	if limit <= 0 {
		return []domain.AspectMiss{}, nil
	}
	query := `
		SELECT id, product_id, category_id, category_name, aspect_name, product_title,
			provider_brand, provider_model, status, suggested_value, suggested_pattern,
			confidence, attempts, last_error, created_at, updated_at
		FROM listing.aspect_misses
		WHERE status = 'pending' AND attempts < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2;
	`
	rows, err := s.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("store: PendingMisses failed to query misses: %w", err)
	}
	defer rows.Close()

	misses := make([]domain.AspectMiss, 0, limit)
	for rows.Next() {
		var m domain.AspectMiss
		if err := rows.Scan(
			&m.ID, &m.ProductID, &m.CategoryID, &m.CategoryName, &m.AspectName, &m.ProductTitle,
			&m.ProviderBrand, &m.ProviderModel, &m.Status, &m.SuggestedValue, &m.SuggestedPattern,
			&m.Confidence, &m.Attempts, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: PendingMisses failed to scan miss row: %w", err)
		}
		misses = append(misses, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: PendingMisses iteration error: %w", err)
	}
	return misses, nil
}

// InsertPattern stores a keyword pattern; an existing (aspect, pattern, category) row wins.
func (s *PostgresStore) InsertPattern(ctx context.Context, pattern *domain.KeywordPattern) (bool, error) {
	query := `
		INSERT INTO listing.aspect_keyword_patterns (aspect_name, pattern, value, category_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING;
	`
	result, err := s.db.ExecContext(ctx, query, pattern.AspectName, pattern.Pattern, pattern.Value, pattern.CategoryID)
	if err != nil {
		return false, fmt.Errorf("store: InsertPattern failed to execute insert: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: InsertPattern failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ResolveMiss moves a miss out of pending and attaches the inference suggestion.
func (s *PostgresStore) ResolveMiss(ctx context.Context, id int64, status domain.MissStatus, sug MissSuggestion) error {
	query := `
		UPDATE listing.aspect_misses
		SET status = $2, suggested_value = $3, suggested_pattern = $4, confidence = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1;
	`
	result, err := s.db.ExecContext(ctx, query, id, string(status), sug.Value, sug.Pattern, sug.Confidence)
	if err != nil {
		return fmt.Errorf("store: ResolveMiss failed to execute update: %w", err)
	}
	return expectOneRow(result, "ResolveMiss", ErrMissNotFound)
}

// NoteMissFailure keeps the miss pending and records a failed review attempt.
func (s *PostgresStore) NoteMissFailure(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE listing.aspect_misses
		SET attempts = attempts + 1, last_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1;
	`
	result, err := s.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("store: NoteMissFailure failed to execute update: %w", err)
	}
	return expectOneRow(result, "NoteMissFailure", ErrMissNotFound)
}

func expectOneRow(result sql.Result, op string, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s failed to get rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
