package llmstxt

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists signals a keyed insert conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrRateLimited is returned by a Scraper when the external service rejects a
// call for rate-limit reasons. Callers cool down and retry the same URL once
// instead of marking it failed.
var ErrRateLimited = errors.New("scrape service rate limited")

// JobStore persists job records.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// UpdateJobStatus sets the status and error text. Implementations stamp
	// started_at on the first move out of pending and completed_at on a
	// terminal status.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	SetJobTotals(ctx context.Context, jobID string, totalURLs int) error
	// SetJobProgress writes recomputed counters; it never increments.
	SetJobProgress(ctx context.Context, jobID string, crawled, processed int) error
	SetJobContentSize(ctx context.Context, jobID string, size int64) error
	// FindActiveJob returns a non-terminal job for (user, domain), or
	// ErrNotFound. Used as the duplicate-crawl guard.
	FindActiveJob(ctx context.Context, userID, domain string) (Job, error)
	ListJobsByUser(ctx context.Context, userID string) ([]Job, error)
	// ListStaleJobs returns non-terminal jobs created before the cutoff.
	ListStaleJobs(ctx context.Context, cutoff time.Time) ([]Job, error)
}

// URLStore persists per-(job, url) records.
type URLStore interface {
	// CreateURLRecords bulk-creates pending records, skipping any (job, url)
	// pair that already exists. Returns the number created.
	CreateURLRecords(ctx context.Context, jobID string, urls []string) (int, error)
	// UpsertURLRecord overwrites the record keyed by (job_id, url).
	UpsertURLRecord(ctx context.Context, rec URLRecord) error
	// ListURLRecords returns records matching any of the given statuses
	// (all records when none given), ordered by url.
	ListURLRecords(ctx context.Context, jobID string, statuses ...URLStatus) ([]URLRecord, error)
	CountURLRecords(ctx context.Context, jobID string, status URLStatus) (int, error)
}

// FileStore persists generated file records.
type FileStore interface {
	DeleteFiles(ctx context.Context, jobID string) error
	CreateFile(ctx context.Context, file GeneratedFile) error
	ListFiles(ctx context.Context, jobID string) ([]GeneratedFile, error)
	GetFile(ctx context.Context, jobID, filePath string) (GeneratedFile, error)
	IncrementDownloadCount(ctx context.Context, jobID, filePath string) error
}

// Queue is the per-job FIFO of URLs awaiting processing. It may be entirely
// absent (nil); the controller then falls back to degraded batch mode.
type Queue interface {
	// Enqueue appends urls in order, refreshing the job's retention window.
	// Returns the number of entries added.
	Enqueue(ctx context.Context, jobID string, urls []string) (int, error)
	// DequeueOne atomically pops the oldest entry. Returns "" with a nil
	// error when the queue is drained.
	DequeueOne(ctx context.Context, jobID string) (string, error)
	Length(ctx context.Context, jobID string) (int, error)
}

// RateLimiter bounds calls to the external scrape API with a sliding window
// shared across all jobs. Implementations fail open: backend errors report
// allow=true.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Mapper discovers candidate URLs for a domain via the external service.
type Mapper interface {
	MapSite(ctx context.Context, domain string, limit int) ([]string, error)
}

// Scraper fetches one URL's content through the external scrape service.
type Scraper interface {
	Scrape(ctx context.Context, url string) (ScrapeResult, error)
}

// Summarizer derives a short title and description from a content excerpt.
type Summarizer interface {
	Summarize(ctx context.Context, url, excerpt string) (Summary, error)
}

// BlobStore writes durable copies of generated documents and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes job-completed events to Pub/Sub (or similar). Publishing
// is fire-and-forget; failures are logged, never propagated.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for generated file content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
