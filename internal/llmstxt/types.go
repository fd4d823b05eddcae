package llmstxt

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store. Transitions are monotonic:
// pending -> mapping -> processing -> completed, with failed reachable from
// any non-terminal state. Recovery actions are the only way back.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusMapping    JobStatus = "mapping"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents the metadata persisted for one crawl-and-generate run.
type Job struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Domain           string     `json:"domain"`
	MaxPages         int        `json:"max_pages"`
	Status           JobStatus  `json:"status"`
	TotalURLs        int        `json:"total_urls"`
	URLsCrawled      int        `json:"urls_crawled"`
	URLsProcessed    int        `json:"urls_processed"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	TotalContentSize int64      `json:"total_content_size,omitempty"`
}

// URLStatus represents the state of a single page within a job.
type URLStatus string

// URL record statuses. A failed record may be flipped back to pending by the
// retry recovery action.
const (
	URLStatusPending   URLStatus = "pending"
	URLStatusCompleted URLStatus = "completed"
	URLStatusFailed    URLStatus = "failed"
)

// URLRecord is the authoritative per-(job, url) state. The work queue only
// drives when work happens; this record is the source of truth.
type URLRecord struct {
	JobID        string     `json:"job_id"`
	URL          string     `json:"url"`
	Status       URLStatus  `json:"status"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Content      string     `json:"content,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CrawledAt    *time.Time `json:"crawled_at,omitempty"`
}

// FileType categorizes a generated output document.
type FileType string

// Generated file categories.
const (
	FileTypeIndex FileType = "llms_txt"
	FileTypeFull  FileType = "llms_full_txt"
	FileTypePage  FileType = "page"
)

// GeneratedFile is an output artifact produced from completed URL records.
// (JobID, FilePath) is the stable replace key across regenerations.
type GeneratedFile struct {
	JobID         string    `json:"job_id"`
	FileType      FileType  `json:"file_type"`
	FilePath      string    `json:"file_path"`
	Content       string    `json:"content"`
	Size          int64     `json:"size"`
	ContentHash   string    `json:"content_hash,omitempty"`
	BlobURI       string    `json:"blob_uri,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	DownloadCount int       `json:"download_count"`
}

// PageMetadata is the title/description reported by the scrape service.
type PageMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ScrapeResult is the payload returned by the external scrape service.
type ScrapeResult struct {
	Markdown string       `json:"markdown"`
	Metadata PageMetadata `json:"metadata"`
}

// Summary is a short LLM-derived title and description for one page.
type Summary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// JobCompletedEvent is the notification payload published when a job's
// generated files are ready.
type JobCompletedEvent struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
	Domain string `json:"domain"`
	Pages  int    `json:"pages"`
}

// ProcessOutcome reports the result of one batch-processor invocation.
type ProcessOutcome struct {
	Remaining   int  `json:"remaining"`
	Done        bool `json:"done"`
	RateLimited bool `json:"rate_limited"`
}
