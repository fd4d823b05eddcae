package files

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/indexfox/llmstxt/internal/hash/sha256"
	"github.com/indexfox/llmstxt/internal/llmstxt"
	pubmem "github.com/indexfox/llmstxt/internal/publisher/memory"
	storemem "github.com/indexfox/llmstxt/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeBlobStore struct {
	objects map[string][]byte
	err     error
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[path] = data
	return "gs://test-bucket/" + path, nil
}

type generatorFixture struct {
	jobs      *storemem.JobStore
	urls      *storemem.URLStore
	files     *storemem.FileStore
	blobs     *fakeBlobStore
	publisher *pubmem.Publisher
	gen       *Generator
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()
	f := &generatorFixture{
		jobs:      storemem.NewJobStore(),
		urls:      storemem.NewURLStore(),
		files:     storemem.NewFileStore(),
		blobs:     &fakeBlobStore{},
		publisher: pubmem.New(),
	}
	f.gen = New(f.jobs, f.urls, f.files, f.blobs, f.publisher, sha256.New(),
		&fakeClock{now: time.Unix(1700000000, 0)},
		Config{BlobPrefix: "generated", Topic: "llmstxt.job.completed"}, nil)
	return f
}

func (f *generatorFixture) seedJob(t *testing.T, records ...llmstxt.URLRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.jobs.CreateJob(ctx, llmstxt.Job{
		ID: "j1", UserID: "u1", Domain: "example.com", MaxPages: 20,
		Status: llmstxt.JobStatusProcessing, TotalURLs: len(records),
		CreatedAt: time.Unix(1700000000, 0),
	}))
	for _, rec := range records {
		rec.JobID = "j1"
		require.NoError(t, f.urls.UpsertURLRecord(ctx, rec))
	}
}

func completedRecord(url, title, desc, content string) llmstxt.URLRecord {
	return llmstxt.URLRecord{
		URL: url, Status: llmstxt.URLStatusCompleted,
		Title: title, Description: desc, Content: content,
	}
}

func TestGenerateBuildsDocuments(t *testing.T) {
	t.Parallel()

	f := newGeneratorFixture(t)
	f.seedJob(t,
		completedRecord("https://example.com/b", "Page B", "Second page.", "B content."),
		completedRecord("https://example.com/a", "Page A", "First page.", "A content.\n\n\n\nMore."),
	)

	ctx := context.Background()
	require.NoError(t, f.gen.Generate(ctx, "j1"))

	index, err := f.files.GetFile(ctx, "j1", IndexFileName)
	require.NoError(t, err)
	require.Equal(t, llmstxt.FileTypeIndex, index.FileType)
	require.Equal(t,
		"# example.com llms.txt\n\n"+
			"- [Page A](https://example.com/a): First page.\n"+
			"- [Page B](https://example.com/b): Second page.\n",
		index.Content)
	require.Equal(t, int64(len(index.Content)), index.Size)
	require.NotEmpty(t, index.ContentHash)

	full, err := f.files.GetFile(ctx, "j1", FullFileName)
	require.NoError(t, err)
	require.Contains(t, full.Content, "# example.com llms-full.txt\n\n")
	require.Contains(t, full.Content, "## Page A\nA content.\n\nMore.")

	page, err := f.files.GetFile(ctx, "j1", "pages/example-com-a.md")
	require.NoError(t, err)
	require.Equal(t, llmstxt.FileTypePage, page.FileType)
	require.Contains(t, page.Content, "# Page A\n\n> First page.\n\nSource: https://example.com/a\n\n")

	job, err := f.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, llmstxt.JobStatusCompleted, job.Status)
	require.Equal(t, 2, job.URLsProcessed)
	require.NotZero(t, job.TotalContentSize)
}

func TestGenerateIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newGeneratorFixture(t)
	f.seedJob(t, completedRecord("https://example.com/a", "A", "Desc.", "Content."))

	ctx := context.Background()
	require.NoError(t, f.gen.Generate(ctx, "j1"))
	require.NoError(t, f.gen.Generate(ctx, "j1"))

	all, err := f.files.ListFiles(ctx, "j1")
	require.NoError(t, err)
	// One page doc, one index, one aggregate; no duplicates.
	require.Len(t, all, 3)
}

func TestGenerateZeroCompletedStillCompletes(t *testing.T) {
	t.Parallel()

	f := newGeneratorFixture(t)
	f.seedJob(t, llmstxt.URLRecord{
		URL: "https://example.com/failed", Status: llmstxt.URLStatusFailed,
		ErrorMessage: "No content found",
	})

	ctx := context.Background()
	require.NoError(t, f.gen.Generate(ctx, "j1"))

	job, err := f.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, llmstxt.JobStatusCompleted, job.Status)
	require.Zero(t, job.URLsProcessed)
	require.Equal(t, 1, job.URLsCrawled)

	all, err := f.files.ListFiles(ctx, "j1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestGenerateUploadsBlobsBestEffort(t *testing.T) {
	t.Parallel()

	f := newGeneratorFixture(t)
	f.seedJob(t, completedRecord("https://example.com/a", "A", "Desc.", "Content."))

	ctx := context.Background()
	require.NoError(t, f.gen.Generate(ctx, "j1"))

	index, err := f.files.GetFile(ctx, "j1", IndexFileName)
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/generated/j1/llms.txt", index.BlobURI)
	require.Contains(t, f.blobs.objects, "generated/j1/llms.txt")
}

func TestGenerateBlobFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	f := newGeneratorFixture(t)
	f.blobs.err = errors.New("bucket unavailable")
	f.seedJob(t, completedRecord("https://example.com/a", "A", "Desc.", "Content."))

	ctx := context.Background()
	require.NoError(t, f.gen.Generate(ctx, "j1"))

	job, err := f.jobs.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, llmstxt.JobStatusCompleted, job.Status)

	index, err := f.files.GetFile(ctx, "j1", IndexFileName)
	require.NoError(t, err)
	require.Empty(t, index.BlobURI)
}

func TestGeneratePublishesCompletionEvent(t *testing.T) {
	t.Parallel()

	f := newGeneratorFixture(t)
	f.seedJob(t, completedRecord("https://example.com/a", "A", "Desc.", "Content."))

	require.NoError(t, f.gen.Generate(context.Background(), "j1"))

	events := f.publisher.Events()
	require.Len(t, events, 1)
	require.Equal(t, "llmstxt.job.completed", events[0].Topic)
	event, ok := events[0].Payload.(llmstxt.JobCompletedEvent)
	require.True(t, ok)
	require.Equal(t, "j1", event.JobID)
	require.Equal(t, "u1", event.UserID)
	require.Equal(t, "example.com", event.Domain)
	require.Equal(t, 1, event.Pages)
}

func TestCleanContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"a\n\n\nb", "a\n\nb"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"a\n\nb", "a\n\nb"},
		{"a\nb", "a\nb"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CleanContent(tc.in))
	}
}

func TestPageSlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://example.com/docs/intro", "example-com-docs-intro"},
		{"https://example.com/", "example-com"},
		{"https://Example.com/Docs", "example-com-docs"},
		{"", "index"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, PageSlug(tc.in))
	}
}
