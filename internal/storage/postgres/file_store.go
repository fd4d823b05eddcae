package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// FileStore persists generated file records in the generated_files table.
type FileStore struct {
	pool dbConn
}

// NewFileStore constructs a FileStore from an existing pool.
func NewFileStore(pool dbConn) (*FileStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FileStore{pool: pool}, nil
}

const fileColumns = `job_id, file_type, file_path, content, size, content_hash, blob_uri, created_at, download_count`

// DeleteFiles removes all generated files for a job. The generator calls
// this before re-inserting so regeneration replaces rather than duplicates.
func (s *FileStore) DeleteFiles(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM generated_files WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete generated files: %w", err)
	}
	return nil
}

// CreateFile stores one generated file, replacing any row with the same
// (job_id, file_path) key.
func (s *FileStore) CreateFile(ctx context.Context, file llmstxt.GeneratedFile) error {
	query := `
INSERT INTO generated_files (` + fileColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (job_id, file_path) DO UPDATE SET
	file_type = EXCLUDED.file_type,
	content = EXCLUDED.content,
	size = EXCLUDED.size,
	content_hash = EXCLUDED.content_hash,
	blob_uri = EXCLUDED.blob_uri,
	created_at = EXCLUDED.created_at`
	_, err := s.pool.Exec(ctx, query,
		file.JobID,
		string(file.FileType),
		file.FilePath,
		file.Content,
		file.Size,
		file.ContentHash,
		file.BlobURI,
		file.CreatedAt,
		file.DownloadCount,
	)
	if err != nil {
		return fmt.Errorf("insert generated file: %w", err)
	}
	return nil
}

// ListFiles returns all generated files for a job, ordered by path.
func (s *FileStore) ListFiles(ctx context.Context, jobID string) ([]llmstxt.GeneratedFile, error) {
	query := `SELECT ` + fileColumns + ` FROM generated_files WHERE job_id = $1 ORDER BY file_path`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list generated files: %w", err)
	}
	defer rows.Close()

	var out []llmstxt.GeneratedFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generated file: %w", err)
		}
		out = append(out, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated files: %w", err)
	}
	return out, nil
}

// GetFile fetches one generated file by its path.
func (s *FileStore) GetFile(ctx context.Context, jobID, filePath string) (llmstxt.GeneratedFile, error) {
	query := `SELECT ` + fileColumns + ` FROM generated_files WHERE job_id = $1 AND file_path = $2`
	file, err := scanFile(s.pool.QueryRow(ctx, query, jobID, filePath))
	if errors.Is(err, pgx.ErrNoRows) {
		return llmstxt.GeneratedFile{}, llmstxt.ErrNotFound
	}
	if err != nil {
		return llmstxt.GeneratedFile{}, fmt.Errorf("select generated file: %w", err)
	}
	return file, nil
}

// IncrementDownloadCount bumps the download counter for a file.
func (s *FileStore) IncrementDownloadCount(ctx context.Context, jobID, filePath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generated_files SET download_count = download_count + 1 WHERE job_id = $1 AND file_path = $2`,
		jobID, filePath)
	if err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return llmstxt.ErrNotFound
	}
	return nil
}

func scanFile(row pgx.Row) (llmstxt.GeneratedFile, error) {
	var file llmstxt.GeneratedFile
	var fileType string
	err := row.Scan(
		&file.JobID,
		&fileType,
		&file.FilePath,
		&file.Content,
		&file.Size,
		&file.ContentHash,
		&file.BlobURI,
		&file.CreatedAt,
		&file.DownloadCount,
	)
	if err != nil {
		return llmstxt.GeneratedFile{}, err
	}
	file.FileType = llmstxt.FileType(fileType)
	return file, nil
}
