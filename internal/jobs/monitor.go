package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"listing-service/internal/metrics"
)

type StuckJobCounter interface {
	CountStuckJobs(ctx context.Context, olderThan time.Duration) (int, error)
}

// Monitor periodically reports jobs stuck in processing. It does not retry them.
type Monitor struct {
	store    StuckJobCounter
	after    time.Duration
	interval time.Duration
	logger   logrus.FieldLogger
}

func NewMonitor(s StuckJobCounter, after, interval time.Duration, logger logrus.FieldLogger) *Monitor {
	if after <= 0 {
		after = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{store: s, after: after, interval: interval, logger: logger.WithField("component", "job_monitor")}
}

// Run checks once immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check updates the stuck-job gauge and returns the count, or -1 when the count failed.
func (m *Monitor) Check(ctx context.Context) int {
	n, err := m.store.CountStuckJobs(ctx, m.after)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.WithError(err).Warn("Failed to count stuck jobs")
		}
		return -1
	}
	metrics.JobsStuck.Set(float64(n))
	if n > 0 {
		m.logger.WithFields(logrus.Fields{"count": n, "older_than": m.after.String()}).
			Warn("Jobs stuck in processing")
	}
	return n
}
