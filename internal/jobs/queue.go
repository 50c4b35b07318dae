package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const jobIDField = "job_id"

// QueueConfig configures the Redis stream used to hand jobs to workers.
type QueueConfig struct {
	Stream     string
	Group      string
	Consumer   string // base name; each consumer loop appends its index
	ClaimIdle  time.Duration
	Block      time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// Handler processes one job id taken from the stream.
type Handler func(ctx context.Context, jobID string) error

// Queue is a Redis stream with one consumer group. Messages are acknowledged and
// deleted after the handler returns, whatever its result; a message whose
// consumer died is reclaimed by another consumer after ClaimIdle.
type Queue struct {
	client *redis.Client
	cfg    QueueConfig
	logger logrus.FieldLogger
	once   sync.Once
	grpErr error
}

func NewQueue(client *redis.Client, cfg QueueConfig, logger logrus.FieldLogger) (*Queue, error) {
	cfg.Stream = strings.TrimSpace(cfg.Stream)
	if cfg.Stream == "" {
		return nil, errors.New("jobs: queue stream required")
	}
	if cfg.Group = strings.TrimSpace(cfg.Group); cfg.Group == "" {
		cfg.Group = "default"
	}
	if cfg.Consumer = strings.TrimSpace(cfg.Consumer); cfg.Consumer == "" {
		cfg.Consumer = uuid.NewString()
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = 5 * time.Minute
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 10000
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.ClaimCount <= 0 {
		cfg.ClaimCount = 10
	}
	return &Queue{client: client, cfg: cfg, logger: logger.WithField("component", "job_queue")}, nil
}

// Enqueue appends the job id to the stream.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{jobIDField: jobID},
	}).Err()
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", jobID, err)
	}
	return nil
}

// EnsureGroup creates the stream and consumer group if they do not exist yet.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.grpErr = fmt.Errorf("jobs: create consumer group: %w", err)
		}
	})
	return q.grpErr
}

// Consume runs concurrency consumer loops until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.cfg.Consumer, i)
		g.Go(func() error {
			q.consumeLoop(ctx, consumer, handler)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	log := q.logger.WithField("consumer", consumer)
	for ctx.Err() == nil {
		msgs, err := q.claimStale(ctx, consumer)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Failed to reclaim stale messages")
		}
		for _, msg := range msgs {
			q.handle(ctx, msg, handler, log)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    q.cfg.ReadCount,
			Block:    q.cfg.Block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.WithError(err).Warn("Failed to read from job stream")
				sleep(ctx, time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handle(ctx, msg, handler, log)
			}
		}
	}
}

func (q *Queue) claimStale(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: consumer,
		MinIdle:  q.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    q.cfg.ClaimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return msgs, err
}

func (q *Queue) handle(ctx context.Context, msg redis.XMessage, handler Handler, log logrus.FieldLogger) {
	jobID, _ := msg.Values[jobIDField].(string)
	if jobID == "" {
		log.WithField("message_id", msg.ID).Warn("Dropping job message without job id")
		q.ackAndDel(ctx, msg.ID, log)
		return
	}
	if err := handler(ctx, jobID); err != nil {
		if ctx.Err() != nil {
			// Left pending for XAutoClaim. Only a job whose claim was interrupted is
			// still pending and runs again; a claimed job was already failed.
			return
		}
		log.WithError(err).WithField("job_id", jobID).Error("Job handler failed")
	}
	q.ackAndDel(ctx, msg.ID, log)
}

func (q *Queue) ackAndDel(ctx context.Context, msgID string, log logrus.FieldLogger) {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.cfg.Stream, q.cfg.Group, msgID)
	pipe.XDel(ctx, q.cfg.Stream, msgID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("message_id", msgID).Warn("Failed to acknowledge job message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
