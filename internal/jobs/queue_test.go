package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger, _ := test.NewNullLogger()
	q, err := NewQueue(client, QueueConfig{
		Stream:    "test:jobs",
		Group:     "test-workers",
		Consumer:  "consumer",
		Block:     50 * time.Millisecond,
		ClaimIdle: time.Minute,
	}, logger)
	require.NoError(t, err)
	return q, client
}

func TestNewQueue_RequiresStream(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewQueue(redis.NewClient(&redis.Options{}), QueueConfig{Stream: " "}, logger)
	assert.Error(t, err)
}

func TestQueue_EnqueueAndConsume(t *testing.T) {
	q, client := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Messages added before the group exists are still delivered.
	require.NoError(t, q.Enqueue(ctx, "job-1"))
	require.NoError(t, q.Enqueue(ctx, "job-2"))

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 2, func(_ context.Context, jobID string) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, jobID)
			if jobID == "job-2" {
				return errors.New("handler failed")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), "test:jobs").Result()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	pending, err := client.XPending(context.Background(), "test:jobs", "test-workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumers did not stop")
	}
	mu.Lock()
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, got)
	mu.Unlock()
}

func TestQueue_EnsureGroupIsIdempotent(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, client.XGroupCreateMkStream(ctx, "test:jobs", "test-workers", "0").Err())
	assert.NoError(t, q.EnsureGroup(ctx))
}

func TestQueue_DropsMessageWithoutJobID(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "test:jobs", Values: map[string]any{"other": "x"}}).Err())

	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "test-workers",
		Consumer: "consumer-0",
		Streams:  []string{"test:jobs", ">"},
		Count:    1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams[0].Messages, 1)

	called := false
	logger, _ := test.NewNullLogger()
	q.handle(ctx, streams[0].Messages[0], func(context.Context, string) error { called = true; return nil }, logger)

	assert.False(t, called)
	n, err := client.XLen(ctx, "test:jobs").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestQueue_InterruptedHandlerLeavesMessagePending(t *testing.T) {
	q, client := newTestQueue(t)
	bg := context.Background()
	require.NoError(t, q.EnsureGroup(bg))
	require.NoError(t, q.Enqueue(bg, "job-1"))

	streams, err := client.XReadGroup(bg, &redis.XReadGroupArgs{
		Group:    "test-workers",
		Consumer: "consumer-0",
		Streams:  []string{"test:jobs", ">"},
		Count:    1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams[0].Messages, 1)

	ctx, cancel := context.WithCancel(bg)
	cancel()
	logger, _ := test.NewNullLogger()
	q.handle(ctx, streams[0].Messages[0], func(ctx context.Context, _ string) error { return ctx.Err() }, logger)

	pending, err := client.XPending(bg, "test:jobs", "test-workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
	n, err := client.XLen(bg, "test:jobs").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
