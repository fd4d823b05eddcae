// Package files builds the llms.txt output documents for a finished crawl.
package files

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/indexfox/llmstxt/internal/llmstxt"
	"github.com/indexfox/llmstxt/internal/metrics"
)

// Standard output document names.
const (
	IndexFileName = "llms.txt"
	FullFileName  = "llms-full.txt"
)

const contentType = "text/plain; charset=utf-8"

var multiNewline = regexp.MustCompile(`\n{3,}`)

// Config controls generator output placement.
type Config struct {
	// BlobPrefix prefixes every uploaded object path.
	BlobPrefix string
	// Topic is the completion-notification topic.
	Topic string
}

// Generator turns a job's completed URL records into generated files and
// marks the job completed. Re-running it replaces prior output for the job;
// it never duplicates.
type Generator struct {
	jobs      llmstxt.JobStore
	urls      llmstxt.URLStore
	files     llmstxt.FileStore
	blobs     llmstxt.BlobStore
	publisher llmstxt.Publisher
	hasher    llmstxt.Hasher
	clock     llmstxt.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Generator. The blob store and publisher may be nil; both
// are best-effort collaborators.
func New(
	jobs llmstxt.JobStore,
	urls llmstxt.URLStore,
	files llmstxt.FileStore,
	blobs llmstxt.BlobStore,
	publisher llmstxt.Publisher,
	hasher llmstxt.Hasher,
	clock llmstxt.Clock,
	cfg Config,
	logger *zap.Logger,
) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		jobs:      jobs,
		urls:      urls,
		files:     files,
		blobs:     blobs,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("files"),
	}
}

// Generate builds the per-page documents, the llms.txt index and the
// llms-full.txt aggregate from the job's completed URL records, then marks
// the job completed. Zero completed records still completes the job.
func (g *Generator) Generate(ctx context.Context, jobID string) error {
	job, err := g.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	records, err := g.urls.ListURLRecords(ctx, jobID, llmstxt.URLStatusCompleted)
	if err != nil {
		return fmt.Errorf("list completed records: %w", err)
	}

	// Replace semantics: prior output for the job is cleared before insert.
	if err := g.files.DeleteFiles(ctx, jobID); err != nil {
		return fmt.Errorf("clear prior files: %w", err)
	}

	var totalSize int64
	if len(records) > 0 {
		docs := g.buildDocuments(job, records)
		for _, doc := range docs {
			doc.BlobURI = g.upload(ctx, jobID, doc)
			if err := g.files.CreateFile(ctx, doc); err != nil {
				return fmt.Errorf("store file %s: %w", doc.FilePath, err)
			}
			totalSize += doc.Size
		}
		if err := g.jobs.SetJobContentSize(ctx, jobID, totalSize); err != nil {
			return fmt.Errorf("set content size: %w", err)
		}
	}

	if err := g.refreshCounters(ctx, jobID, len(records)); err != nil {
		return err
	}

	if err := g.jobs.UpdateJobStatus(ctx, jobID, llmstxt.JobStatusCompleted, ""); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	metrics.ObserveJob(string(llmstxt.JobStatusCompleted))

	g.notify(ctx, job, len(records))
	return nil
}

func (g *Generator) buildDocuments(job llmstxt.Job, records []llmstxt.URLRecord) []llmstxt.GeneratedFile {
	now := g.clock.Now()
	docs := make([]llmstxt.GeneratedFile, 0, len(records)+2)

	var index strings.Builder
	index.WriteString(fmt.Sprintf("# %s llms.txt\n\n", job.Domain))
	var full strings.Builder
	full.WriteString(fmt.Sprintf("# %s llms-full.txt\n\n", job.Domain))

	for _, rec := range records {
		content := CleanContent(rec.Content)

		var page strings.Builder
		page.WriteString(fmt.Sprintf("# %s\n\n", rec.Title))
		page.WriteString(fmt.Sprintf("> %s\n\n", rec.Description))
		page.WriteString(fmt.Sprintf("Source: %s\n\n", rec.URL))
		page.WriteString(content)
		page.WriteString("\n")

		docs = append(docs, g.newFile(job.ID, llmstxt.FileTypePage,
			fmt.Sprintf("pages/%s.md", PageSlug(rec.URL)), page.String(), now))

		index.WriteString(fmt.Sprintf("- [%s](%s): %s\n", rec.Title, rec.URL, rec.Description))

		full.WriteString(fmt.Sprintf("## %s\n", rec.Title))
		full.WriteString(content)
		full.WriteString("\n\n")
	}

	docs = append(docs,
		g.newFile(job.ID, llmstxt.FileTypeIndex, IndexFileName, index.String(), now),
		g.newFile(job.ID, llmstxt.FileTypeFull, FullFileName, full.String(), now),
	)
	return docs
}

func (g *Generator) newFile(jobID string, fileType llmstxt.FileType, path, content string, now time.Time) llmstxt.GeneratedFile {
	encoded := []byte(content)
	file := llmstxt.GeneratedFile{
		JobID:     jobID,
		FileType:  fileType,
		FilePath:  path,
		Content:   content,
		Size:      int64(len(encoded)),
		CreatedAt: now,
	}
	if g.hasher != nil {
		if digest, err := g.hasher.Hash(encoded); err == nil {
			file.ContentHash = digest
		}
	}
	return file
}

func (g *Generator) upload(ctx context.Context, jobID string, doc llmstxt.GeneratedFile) string {
	if g.blobs == nil {
		return ""
	}
	path := jobID + "/" + doc.FilePath
	if prefix := strings.Trim(g.cfg.BlobPrefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	uri, err := g.blobs.PutObject(ctx, path, contentType, []byte(doc.Content))
	if err != nil {
		// Best effort: a failed upload never fails the job.
		g.logger.Warn("blob upload failed",
			zap.String("job_id", jobID), zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

func (g *Generator) refreshCounters(ctx context.Context, jobID string, completed int) error {
	failed, err := g.urls.CountURLRecords(ctx, jobID, llmstxt.URLStatusFailed)
	if err != nil {
		return fmt.Errorf("count failed records: %w", err)
	}
	if err := g.jobs.SetJobProgress(ctx, jobID, completed+failed, completed); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// notify emits the fire-and-forget completion event.
func (g *Generator) notify(ctx context.Context, job llmstxt.Job, pages int) {
	if g.publisher == nil {
		return
	}
	event := llmstxt.JobCompletedEvent{
		JobID:  job.ID,
		UserID: job.UserID,
		Domain: job.Domain,
		Pages:  pages,
	}
	if _, err := g.publisher.Publish(ctx, g.cfg.Topic, event); err != nil {
		g.logger.Warn("completion notification failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}

// CleanContent collapses runs of 3+ newlines to exactly 2.
func CleanContent(content string) string {
	return multiNewline.ReplaceAllString(content, "\n\n")
}

// PageSlug derives a stable file name slug from a page URL.
func PageSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return sanitizeSlug(rawURL)
	}
	slug := u.Hostname() + u.Path
	return sanitizeSlug(slug)
}

func sanitizeSlug(s string) string {
	s = strings.Trim(s, "/")
	if s == "" {
		return "index"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "index"
	}
	return out
}
