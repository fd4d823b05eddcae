// Package memory provides an in-memory work queue for local development and
// tests. Semantics match the Redis backend: FIFO per job, atomic pop.
package memory

import (
	"context"
	"sync"
)

// Queue is a per-job FIFO of URLs guarded by one mutex.
type Queue struct {
	mu    sync.Mutex
	lists map[string][]string
}

// NewQueue constructs a Queue.
func NewQueue() *Queue {
	return &Queue{lists: make(map[string][]string)}
}

// Enqueue appends urls in order and returns the number added.
func (q *Queue) Enqueue(_ context.Context, jobID string, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[jobID] = append(q.lists[jobID], urls...)
	return len(urls), nil
}

// DequeueOne pops the oldest entry, or returns "" when drained.
func (q *Queue) DequeueOne(_ context.Context, jobID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.lists[jobID]
	if len(list) == 0 {
		return "", nil
	}
	url := list[0]
	q.lists[jobID] = list[1:]
	return url, nil
}

// Length returns the number of pending entries for the job.
func (q *Queue) Length(_ context.Context, jobID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lists[jobID]), nil
}
