package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

func newFileStoreMock(t *testing.T) (*FileStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewFileStore(mock)
	require.NoError(t, err)
	return store, mock
}

func fileRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"job_id", "file_type", "file_path", "content", "size", "content_hash",
		"blob_uri", "created_at", "download_count",
	})
}

func TestFileStoreDeleteThenCreate(t *testing.T) {
	t.Parallel()

	store, mock := newFileStoreMock(t)
	created := time.Now()
	file := llmstxt.GeneratedFile{
		JobID:       "job-1",
		FileType:    llmstxt.FileTypeIndex,
		FilePath:    "llms.txt",
		Content:     "# example.com\n",
		Size:        14,
		ContentHash: "abc123",
		CreatedAt:   created,
	}

	mock.ExpectExec("DELETE FROM generated_files").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO generated_files").
		WithArgs(file.JobID, "llms_txt", file.FilePath, file.Content,
			file.Size, file.ContentHash, "", created, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := context.Background()
	require.NoError(t, store.DeleteFiles(ctx, "job-1"))
	require.NoError(t, store.CreateFile(ctx, file))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileStoreGetFile(t *testing.T) {
	t.Parallel()

	store, mock := newFileStoreMock(t)
	created := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM generated_files").
		WithArgs("job-1", "llms.txt").
		WillReturnRows(fileRows().AddRow(
			"job-1", "llms_txt", "llms.txt", "# example.com\n", int64(14),
			"abc123", "", created, 2,
		))

	file, err := store.GetFile(context.Background(), "job-1", "llms.txt")
	require.NoError(t, err)
	require.Equal(t, llmstxt.FileTypeIndex, file.FileType)
	require.Equal(t, 2, file.DownloadCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileStoreGetFileNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newFileStoreMock(t)

	mock.ExpectQuery("SELECT (.+) FROM generated_files").
		WithArgs("job-1", "missing.txt").
		WillReturnRows(fileRows())

	_, err := store.GetFile(context.Background(), "job-1", "missing.txt")
	require.ErrorIs(t, err, llmstxt.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileStoreListFiles(t *testing.T) {
	t.Parallel()

	store, mock := newFileStoreMock(t)
	created := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM generated_files").
		WithArgs("job-1").
		WillReturnRows(fileRows().
			AddRow("job-1", "llms_full_txt", "llms-full.txt", "full", int64(4),
				"h1", "", created, 0).
			AddRow("job-1", "llms_txt", "llms.txt", "index", int64(5),
				"h2", "", created, 0))

	files, err := store.ListFiles(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "llms-full.txt", files[0].FilePath)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileStoreIncrementDownloadCount(t *testing.T) {
	t.Parallel()

	store, mock := newFileStoreMock(t)

	mock.ExpectExec("UPDATE generated_files SET download_count").
		WithArgs("job-1", "llms.txt").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE generated_files SET download_count").
		WithArgs("job-1", "missing.txt").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := context.Background()
	require.NoError(t, store.IncrementDownloadCount(ctx, "job-1", "llms.txt"))
	require.ErrorIs(t, store.IncrementDownloadCount(ctx, "job-1", "missing.txt"), llmstxt.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
