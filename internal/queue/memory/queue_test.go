package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFOExactlyOnce(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()

	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	added, err := q.Enqueue(ctx, "job-1", urls)
	require.NoError(t, err)
	require.Equal(t, 3, added)

	for _, want := range urls {
		got, err := q.DequeueOne(ctx, "job-1")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// Drained queue returns the empty sentinel, not an error.
	got, err := q.DequeueOne(ctx, "job-1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQueueLength(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()

	n, err := q.Length(ctx, "job-2")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = q.Enqueue(ctx, "job-2", []string{"https://b.example/1", "https://b.example/2"})
	require.NoError(t, err)

	n, err = q.Length(ctx, "job-2")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = q.DequeueOne(ctx, "job-2")
	require.NoError(t, err)
	n, err = q.Length(ctx, "job-2")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestQueueJobsAreIndependent(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "job-a", []string{"https://a.example/"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "job-b", []string{"https://b.example/"})
	require.NoError(t, err)

	got, err := q.DequeueOne(ctx, "job-a")
	require.NoError(t, err)
	require.Equal(t, "https://a.example/", got)

	n, err := q.Length(ctx, "job-b")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestQueueConcurrentPopsAreExclusive(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()

	const total = 50
	urls := make([]string, total)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://c.example/page-%02d", i)
	}
	_, err := q.Enqueue(ctx, "job-c", urls)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				url, err := q.DequeueOne(ctx, "job-c")
				if err != nil || url == "" {
					return
				}
				mu.Lock()
				seen[url]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for url, count := range seen {
		require.Equalf(t, 1, count, "url %s popped %d times", url, count)
	}
}
