package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// JobStore persists job records in the crawl_jobs table.
type JobStore struct {
	pool dbConn
}

// NewJobStore constructs a JobStore from an existing pool.
func NewJobStore(pool dbConn) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, user_id, domain, max_pages, status, total_urls, urls_crawled,
urls_processed, created_at, started_at, completed_at, error_message, total_content_size`

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job llmstxt.Job) error {
	query := `
INSERT INTO crawl_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Domain,
		job.MaxPages,
		string(job.Status),
		job.TotalURLs,
		job.URLsCrawled,
		job.URLsProcessed,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.ErrorMessage,
		job.TotalContentSize,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (llmstxt.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = $1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return llmstxt.Job{}, llmstxt.ErrNotFound
	}
	if err != nil {
		return llmstxt.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus sets status and error text. started_at is stamped on the
// first move out of pending and completed_at on a terminal status. The WHERE
// guard keeps terminal jobs terminal: a late writer cannot resurrect a
// cancelled job.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status llmstxt.JobStatus, errText string) error {
	query := `
UPDATE crawl_jobs SET
	status = $2,
	error_message = $3,
	started_at = CASE WHEN started_at IS NULL AND $2 <> 'pending' THEN now() ELSE started_at END,
	completed_at = CASE WHEN $2 IN ('completed','failed') AND completed_at IS NULL THEN now() ELSE completed_at END
WHERE id = $1
  AND NOT (status IN ('completed','failed') AND $2 NOT IN ('completed','failed'))`
	tag, err := s.pool.Exec(ctx, query, jobID, string(status), errText)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the job is missing or the terminal guard held; only the
		// former is an error.
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

// SetJobTotals records the mapped URL count.
func (s *JobStore) SetJobTotals(ctx context.Context, jobID string, totalURLs int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET total_urls = $2 WHERE id = $1`, jobID, totalURLs)
	if err != nil {
		return fmt.Errorf("set job totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return llmstxt.ErrNotFound
	}
	return nil
}

// SetJobProgress writes recomputed crawl counters.
func (s *JobStore) SetJobProgress(ctx context.Context, jobID string, crawled, processed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET urls_crawled = $2, urls_processed = $3 WHERE id = $1`,
		jobID, crawled, processed)
	if err != nil {
		return fmt.Errorf("set job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return llmstxt.ErrNotFound
	}
	return nil
}

// SetJobContentSize records the total size of generated content.
func (s *JobStore) SetJobContentSize(ctx context.Context, jobID string, size int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET total_content_size = $2 WHERE id = $1`, jobID, size)
	if err != nil {
		return fmt.Errorf("set job content size: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return llmstxt.ErrNotFound
	}
	return nil
}

// FindActiveJob returns a non-terminal job for (user, domain), or ErrNotFound.
func (s *JobStore) FindActiveJob(ctx context.Context, userID, domain string) (llmstxt.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs
WHERE user_id = $1 AND domain = $2 AND status NOT IN ('completed','failed')
ORDER BY created_at DESC LIMIT 1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, userID, domain))
	if errors.Is(err, pgx.ErrNoRows) {
		return llmstxt.Job{}, llmstxt.ErrNotFound
	}
	if err != nil {
		return llmstxt.Job{}, fmt.Errorf("select active job: %w", err)
	}
	return job, nil
}

// ListJobsByUser returns all jobs owned by the user, newest first.
func (s *JobStore) ListJobsByUser(ctx context.Context, userID string) ([]llmstxt.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListStaleJobs returns non-terminal jobs created before the cutoff.
func (s *JobStore) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]llmstxt.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs
WHERE status NOT IN ('completed','failed') AND created_at < $1
ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func scanJob(row pgx.Row) (llmstxt.Job, error) {
	var job llmstxt.Job
	var status string
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Domain,
		&job.MaxPages,
		&status,
		&job.TotalURLs,
		&job.URLsCrawled,
		&job.URLsProcessed,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
		&job.TotalContentSize,
	)
	if err != nil {
		return llmstxt.Job{}, err
	}
	job.Status = llmstxt.JobStatus(status)
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]llmstxt.Job, error) {
	var out []llmstxt.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}
