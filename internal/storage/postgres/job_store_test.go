package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

func newJobStoreMock(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock)
	require.NoError(t, err)
	return store, mock
}

func jobRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "domain", "max_pages", "status", "total_urls",
		"urls_crawled", "urls_processed", "created_at", "started_at",
		"completed_at", "error_message", "total_content_size",
	})
}

func TestJobStoreCreateJob(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	job := llmstxt.Job{
		ID:        "job-1",
		UserID:    "user-1",
		Domain:    "example.com",
		MaxPages:  20,
		Status:    llmstxt.JobStatusPending,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO crawl_jobs").
		WithArgs(job.ID, job.UserID, job.Domain, job.MaxPages, "pending",
			0, 0, 0, job.CreatedAt, job.StartedAt, job.CompletedAt, "", int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJob(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	created := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(jobRows().AddRow(
			"job-1", "user-1", "example.com", 20, "processing", 10,
			4, 3, created, (*time.Time)(nil), (*time.Time)(nil), "", int64(0),
		))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, llmstxt.JobStatusProcessing, job.Status)
	require.Equal(t, 10, job.TotalURLs)
	require.Equal(t, 3, job.URLsProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(jobRows())

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, llmstxt.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreUpdateJobStatus(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectExec("UPDATE crawl_jobs SET").
		WithArgs("job-1", "completed", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateJobStatus(context.Background(), "job-1", llmstxt.JobStatusCompleted, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreUpdateJobStatusGuardHolds(t *testing.T) {
	t.Parallel()

	// Zero rows affected with an existing job means the terminal guard
	// rejected the write; that is a silent no-op, not an error.
	store, mock := newJobStoreMock(t)
	created := time.Now()

	mock.ExpectExec("UPDATE crawl_jobs SET").
		WithArgs("job-1", "processing", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(jobRows().AddRow(
			"job-1", "user-1", "example.com", 20, "failed", 10,
			10, 8, created, &created, &created, "cancelled by user", int64(0),
		))

	require.NoError(t, store.UpdateJobStatus(context.Background(), "job-1", llmstxt.JobStatusProcessing, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreUpdateJobStatusMissing(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectExec("UPDATE crawl_jobs SET").
		WithArgs("missing", "failed", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(jobRows())

	err := store.UpdateJobStatus(context.Background(), "missing", llmstxt.JobStatusFailed, "boom")
	require.ErrorIs(t, err, llmstxt.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreSetJobProgress(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectExec("UPDATE crawl_jobs SET urls_crawled").
		WithArgs("job-1", 5, 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetJobProgress(context.Background(), "job-1", 5, 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreFindActiveJob(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	created := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs").
		WithArgs("user-1", "example.com").
		WillReturnRows(jobRows().AddRow(
			"job-1", "user-1", "example.com", 20, "mapping", 0,
			0, 0, created, &created, (*time.Time)(nil), "", int64(0),
		))

	job, err := store.FindActiveJob(context.Background(), "user-1", "example.com")
	require.NoError(t, err)
	require.Equal(t, llmstxt.JobStatusMapping, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreListStaleJobs(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	cutoff := time.Now().Add(-10 * time.Minute)
	created := cutoff.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs").
		WithArgs(cutoff).
		WillReturnRows(jobRows().
			AddRow("job-1", "user-1", "a.com", 20, "processing", 10,
				2, 2, created, &created, (*time.Time)(nil), "", int64(0)).
			AddRow("job-2", "user-2", "b.com", 20, "mapping", 0,
				0, 0, created, &created, (*time.Time)(nil), "", int64(0)))

	jobs, err := store.ListStaleJobs(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-2", jobs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
