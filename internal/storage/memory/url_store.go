package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// URLStore holds per-(job, url) records keyed by job then url.
type URLStore struct {
	mu      sync.RWMutex
	records map[string]map[string]llmstxt.URLRecord
}

// NewURLStore constructs a URLStore.
func NewURLStore() *URLStore {
	return &URLStore{records: make(map[string]map[string]llmstxt.URLRecord)}
}

// CreateURLRecords bulk-creates pending records, skipping existing pairs.
func (s *URLStore) CreateURLRecords(_ context.Context, jobID string, urls []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byURL, ok := s.records[jobID]
	if !ok {
		byURL = make(map[string]llmstxt.URLRecord, len(urls))
		s.records[jobID] = byURL
	}
	created := 0
	for _, u := range urls {
		if _, exists := byURL[u]; exists {
			continue
		}
		byURL[u] = llmstxt.URLRecord{
			JobID:  jobID,
			URL:    u,
			Status: llmstxt.URLStatusPending,
		}
		created++
	}
	return created, nil
}

// UpsertURLRecord overwrites the record keyed by (job_id, url).
func (s *URLStore) UpsertURLRecord(_ context.Context, rec llmstxt.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byURL, ok := s.records[rec.JobID]
	if !ok {
		byURL = make(map[string]llmstxt.URLRecord)
		s.records[rec.JobID] = byURL
	}
	byURL[rec.URL] = rec
	return nil
}

// ListURLRecords returns records matching any given status, ordered by url.
func (s *URLStore) ListURLRecords(_ context.Context, jobID string, statuses ...llmstxt.URLStatus) ([]llmstxt.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []llmstxt.URLRecord
	for _, rec := range s.records[jobID] {
		if len(statuses) == 0 || matchesStatus(rec.Status, statuses) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// CountURLRecords counts records in the given status.
func (s *URLStore) CountURLRecords(_ context.Context, jobID string, status llmstxt.URLStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records[jobID] {
		if rec.Status == status {
			count++
		}
	}
	return count, nil
}

func matchesStatus(status llmstxt.URLStatus, statuses []llmstxt.URLStatus) bool {
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}
