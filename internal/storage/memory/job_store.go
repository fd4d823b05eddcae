// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// JobStore holds job records in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]llmstxt.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]llmstxt.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job llmstxt.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return llmstxt.ErrAlreadyExists
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (llmstxt.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return llmstxt.Job{}, llmstxt.ErrNotFound
	}
	return job, nil
}

// UpdateJobStatus sets status and error text, stamping started/completed times.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status llmstxt.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return llmstxt.ErrNotFound
	}
	// A cancelled or failed job is never resurrected by a late writer.
	if job.Status.Terminal() && !status.Terminal() {
		return nil
	}
	job.Status = status
	job.ErrorMessage = errText
	now := time.Now().UTC()
	if status != llmstxt.JobStatusPending && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.Terminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	s.jobs[jobID] = job
	return nil
}

// SetJobTotals records the mapped URL count.
func (s *JobStore) SetJobTotals(_ context.Context, jobID string, totalURLs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return llmstxt.ErrNotFound
	}
	job.TotalURLs = totalURLs
	s.jobs[jobID] = job
	return nil
}

// SetJobProgress writes recomputed crawl counters.
func (s *JobStore) SetJobProgress(_ context.Context, jobID string, crawled, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return llmstxt.ErrNotFound
	}
	job.URLsCrawled = crawled
	job.URLsProcessed = processed
	s.jobs[jobID] = job
	return nil
}

// SetJobContentSize records the total size of generated content.
func (s *JobStore) SetJobContentSize(_ context.Context, jobID string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return llmstxt.ErrNotFound
	}
	job.TotalContentSize = size
	s.jobs[jobID] = job
	return nil
}

// FindActiveJob returns a non-terminal job for (user, domain).
func (s *JobStore) FindActiveJob(_ context.Context, userID, domain string) (llmstxt.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.UserID == userID && job.Domain == domain && !job.Status.Terminal() {
			return job, nil
		}
	}
	return llmstxt.Job{}, llmstxt.ErrNotFound
}

// ListJobsByUser returns all jobs owned by the user.
func (s *JobStore) ListJobsByUser(_ context.Context, userID string) ([]llmstxt.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []llmstxt.Job
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	return out, nil
}

// ListStaleJobs returns non-terminal jobs created before the cutoff.
func (s *JobStore) ListStaleJobs(_ context.Context, cutoff time.Time) ([]llmstxt.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []llmstxt.Job
	for _, job := range s.jobs {
		if !job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}
