package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// FileStore holds generated file records keyed by job then file path.
type FileStore struct {
	mu    sync.RWMutex
	files map[string]map[string]llmstxt.GeneratedFile
}

// NewFileStore constructs a FileStore.
func NewFileStore() *FileStore {
	return &FileStore{files: make(map[string]map[string]llmstxt.GeneratedFile)}
}

// DeleteFiles removes all generated files for a job.
func (s *FileStore) DeleteFiles(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, jobID)
	return nil
}

// CreateFile stores one generated file, replacing any record with the same
// (job_id, file_path) key.
func (s *FileStore) CreateFile(_ context.Context, file llmstxt.GeneratedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPath, ok := s.files[file.JobID]
	if !ok {
		byPath = make(map[string]llmstxt.GeneratedFile)
		s.files[file.JobID] = byPath
	}
	byPath[file.FilePath] = file
	return nil
}

// ListFiles returns all generated files for a job, ordered by path.
func (s *FileStore) ListFiles(_ context.Context, jobID string) ([]llmstxt.GeneratedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []llmstxt.GeneratedFile
	for _, f := range s.files[jobID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

// GetFile fetches one generated file by its path.
func (s *FileStore) GetFile(_ context.Context, jobID, filePath string) (llmstxt.GeneratedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[jobID][filePath]
	if !ok {
		return llmstxt.GeneratedFile{}, llmstxt.ErrNotFound
	}
	return f, nil
}

// IncrementDownloadCount bumps the download counter for a file.
func (s *FileStore) IncrementDownloadCount(_ context.Context, jobID, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[jobID][filePath]
	if !ok {
		return llmstxt.ErrNotFound
	}
	f.DownloadCount++
	s.files[jobID][filePath] = f
	return nil
}
