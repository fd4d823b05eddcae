// Package redis provides the Redis-backed work queue: one FIFO list per job,
// expiring after a retention window so abandoned jobs cannot grow unbounded.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Retention is the expiry refreshed on every enqueue.
const Retention = 24 * time.Hour

// Queue implements llmstxt.Queue on a Redis list per job.
type Queue struct {
	client *redis.Client
}

// New constructs a Queue.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func queueKey(jobID string) string {
	return fmt.Sprintf("crawl:queue:%s", jobID)
}

// Enqueue appends urls in order and refreshes the job's retention window.
func (q *Queue) Enqueue(ctx context.Context, jobID string, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}
	key := queueKey(jobID)
	pipe := q.client.TxPipeline()
	pushCmd := pipe.RPush(ctx, key, members...)
	pipe.Expire(ctx, key, Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("enqueue urls: %w", err)
	}
	if pushCmd.Val() < int64(len(urls)) {
		return int(pushCmd.Val()), nil
	}
	return len(urls), nil
}

// DequeueOne atomically pops the oldest entry. LPOP guarantees no two callers
// receive the same URL. Returns "" when the queue is drained.
func (q *Queue) DequeueOne(ctx context.Context, jobID string) (string, error) {
	url, err := q.client.LPop(ctx, queueKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dequeue url: %w", err)
	}
	return url, nil
}

// Length returns the number of pending entries for the job.
func (q *Queue) Length(ctx context.Context, jobID string) (int, error) {
	n, err := q.client.LLen(ctx, queueKey(jobID)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}
