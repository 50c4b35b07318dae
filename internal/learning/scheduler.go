package learning

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs ReviewPending on a cron schedule until its context ends.
type Scheduler struct {
	loop      *Loop
	spec      string
	batchSize int
	logger    logrus.FieldLogger
}

func NewScheduler(loop *Loop, spec string, batchSize int, logger logrus.FieldLogger) *Scheduler {
	return &Scheduler{loop: loop, spec: spec, batchSize: batchSize, logger: logger.WithField("component", "learning_scheduler")}
}

// Run blocks until ctx is cancelled, then waits for an in-flight batch to finish.
// A tick that fires while the previous batch is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	_, err := c.AddFunc(s.spec, func() {
		if _, err := s.loop.ReviewPending(ctx, s.batchSize); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("Scheduled aspect miss review failed")
		}
	})
	if err != nil {
		return fmt.Errorf("learning: invalid schedule %q: %w", s.spec, err)
	}

	s.logger.WithField("schedule", s.spec).Info("Learning scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("Learning scheduler stopped")
	return nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
