package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// URLStore persists per-(job, url) records in the crawl_urls table.
type URLStore struct {
	pool dbConn
}

// NewURLStore constructs a URLStore from an existing pool.
func NewURLStore(pool dbConn) (*URLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &URLStore{pool: pool}, nil
}

const urlColumns = `job_id, url, status, title, description, content, error_message, crawled_at`

// CreateURLRecords bulk-creates pending records. ON CONFLICT DO NOTHING keeps
// the (job_id, url) uniqueness invariant under concurrent mapping calls.
func (s *URLStore) CreateURLRecords(ctx context.Context, jobID string, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	query := `
INSERT INTO crawl_urls (job_id, url, status)
SELECT $1, unnest($2::text[]), 'pending'
ON CONFLICT (job_id, url) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, jobID, urls)
	if err != nil {
		return 0, fmt.Errorf("insert url records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertURLRecord overwrites the record keyed by (job_id, url).
func (s *URLStore) UpsertURLRecord(ctx context.Context, rec llmstxt.URLRecord) error {
	query := `
INSERT INTO crawl_urls (` + urlColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (job_id, url) DO UPDATE SET
	status = EXCLUDED.status,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	content = EXCLUDED.content,
	error_message = EXCLUDED.error_message,
	crawled_at = EXCLUDED.crawled_at`
	_, err := s.pool.Exec(ctx, query,
		rec.JobID,
		rec.URL,
		string(rec.Status),
		rec.Title,
		rec.Description,
		rec.Content,
		rec.ErrorMessage,
		rec.CrawledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert url record: %w", err)
	}
	return nil
}

// ListURLRecords returns records matching any given status (all when none
// given), ordered by url for deterministic file generation.
func (s *URLStore) ListURLRecords(ctx context.Context, jobID string, statuses ...llmstxt.URLStatus) ([]llmstxt.URLRecord, error) {
	var rows pgx.Rows
	var err error
	if len(statuses) == 0 {
		query := `SELECT ` + urlColumns + ` FROM crawl_urls WHERE job_id = $1 ORDER BY url`
		rows, err = s.pool.Query(ctx, query, jobID)
	} else {
		query := `SELECT ` + urlColumns + ` FROM crawl_urls
WHERE job_id = $1 AND status = ANY($2::text[]) ORDER BY url`
		values := make([]string, len(statuses))
		for i, st := range statuses {
			values[i] = string(st)
		}
		rows, err = s.pool.Query(ctx, query, jobID, values)
	}
	if err != nil {
		return nil, fmt.Errorf("list url records: %w", err)
	}
	defer rows.Close()

	var out []llmstxt.URLRecord
	for rows.Next() {
		var rec llmstxt.URLRecord
		var status string
		if err := rows.Scan(
			&rec.JobID,
			&rec.URL,
			&status,
			&rec.Title,
			&rec.Description,
			&rec.Content,
			&rec.ErrorMessage,
			&rec.CrawledAt,
		); err != nil {
			return nil, fmt.Errorf("scan url record: %w", err)
		}
		rec.Status = llmstxt.URLStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate url records: %w", err)
	}
	return out, nil
}

// CountURLRecords counts records in the given status.
func (s *URLStore) CountURLRecords(ctx context.Context, jobID string, status llmstxt.URLStatus) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM crawl_urls WHERE job_id = $1 AND status = $2`,
		jobID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count url records: %w", err)
	}
	return count, nil
}
