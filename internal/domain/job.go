package domain

import "time"

// JobStatus is the state of a correlation job.
// Transitions: pending -> processing -> complete | error.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// Active reports whether the status blocks a new job for the same key.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobError
}

// Job is a correlation-discovery job for one (UserID, SearchKey) pair.
type Job struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SearchKey      string     `json:"search_key"`
	Status         JobStatus  `json:"status"`
	TotalCount     int        `json:"total_count"`
	ProcessedCount int        `json:"processed_count"`
	ApprovedCount  int        `json:"approved_count"`
	RejectedCount  int        `json:"rejected_count"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Decision is the human verdict on a correlation result.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// CorrelationResult is a candidate product discovered for a job's search key.
// Decision stays nil until a reviewer sets it.
type CorrelationResult struct {
	ID             int64      `json:"id"`
	UserID         string     `json:"user_id"`
	SearchKey      string     `json:"search_key"`
	CandidateKey   string     `json:"candidate_key"`
	CandidateTitle string     `json:"candidate_title"`
	Images         []string   `json:"images"`
	Score          float64    `json:"score"`
	Decision       *Decision  `json:"decision,omitempty"`
	DeclineReason  *string    `json:"decline_reason,omitempty"`
	DecisionAt     *time.Time `json:"decision_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
