package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Predefined errors for store operations
var (
	ErrJobNotFound       = errors.New("store: job not found")
	ErrActiveJobExists   = errors.New("store: an active job already exists for this key")
	ErrResultNotFound    = errors.New("store: correlation result not found")
	ErrMissNotFound      = errors.New("store: aspect miss not found")
	ErrJobNotTransitable = errors.New("store: job status does not allow this transition")
)

// activeJobConstraint is the partial unique index on (user_id, search_key)
// covering pending and processing rows.
const activeJobConstraint = "correlation_jobs_active_key"

// PostgresStore implements the AspectStorer, LearningStorer, JobStorer and WorkerStorer
// interfaces using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB, logger logrus.FieldLogger) *PostgresStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PostgresStore{db: db, logger: logger.WithField("component", "store")}
}

// Ping checks the connection; used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("Closing database connection pool...")
	if err := s.db.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close database connection pool")
		return err
	}
	s.logger.Info("Database connection pool closed successfully.")
	return nil
}

// isUniqueViolation reports whether err is a unique violation, optionally on a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" { // Unique violation
		return false
	}
	return constraint == "" || strings.Contains(pqErr.Constraint, constraint)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
