// Package worker implements the per-URL scrape+summarize step and the
// queue-driven batch processor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/indexfox/llmstxt/internal/llmstxt"
	"github.com/indexfox/llmstxt/internal/metrics"
)

// Defaults applied when a title or description cannot be derived from either
// the summarizer reply or the scrape metadata.
const (
	DefaultTitle       = "Untitled"
	DefaultDescription = "No description"
)

const noContentMessage = "No content found"

// StepConfig controls the scrape+summarize step.
type StepConfig struct {
	// Cooldown is the pause taken after a rate-limited scrape call before the
	// single same-URL retry.
	Cooldown time.Duration
	// ContentCap bounds the stored page content, in bytes.
	ContentCap int
	// ExcerptBytes bounds the excerpt sent to the summarizer.
	ExcerptBytes int
}

// Step executes the scrape+summarize pipeline for a single URL. Each call
// writes the (job, url) record exactly once, as completed or failed; it is
// safe to call twice on the same URL.
type Step struct {
	urls       llmstxt.URLStore
	scraper    llmstxt.Scraper
	summarizer llmstxt.Summarizer
	clock      llmstxt.Clock
	cfg        StepConfig
	logger     *zap.Logger

	// sleep is ctx-aware so cooldowns stay cancellable. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewStep constructs a Step.
func NewStep(
	urls llmstxt.URLStore,
	scraper llmstxt.Scraper,
	summarizer llmstxt.Summarizer,
	clock llmstxt.Clock,
	cfg StepConfig,
	logger *zap.Logger,
) *Step {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.ContentCap <= 0 {
		cfg.ContentCap = 100_000
	}
	if cfg.ExcerptBytes <= 0 {
		cfg.ExcerptBytes = 4000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Step{
		urls:       urls,
		scraper:    scraper,
		summarizer: summarizer,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.Named("step"),
		sleep:      sleepCtx,
	}
}

// Process scrapes and summarizes one URL and persists the outcome. Per-URL
// failures are recorded on the URL record and do not return an error; only a
// failed record write propagates.
func (s *Step) Process(ctx context.Context, jobID, url string) error {
	result, err := s.scraper.Scrape(ctx, url)
	if errors.Is(err, llmstxt.ErrRateLimited) {
		s.logger.Info("scrape rate limited, cooling down",
			zap.String("job_id", jobID), zap.String("url", url),
			zap.Duration("cooldown", s.cfg.Cooldown))
		if sleepErr := s.sleep(ctx, s.cfg.Cooldown); sleepErr != nil {
			return s.writeFailed(ctx, jobID, url, "rate limited: "+sleepErr.Error())
		}
		result, err = s.scraper.Scrape(ctx, url)
	}
	if err != nil {
		s.logger.Warn("scrape failed",
			zap.String("job_id", jobID), zap.String("url", url), zap.Error(err))
		return s.writeFailed(ctx, jobID, url, err.Error())
	}
	if result.Markdown == "" {
		return s.writeFailed(ctx, jobID, url, noContentMessage)
	}

	title, description := s.summarize(ctx, url, result)

	content := result.Markdown
	if len(content) > s.cfg.ContentCap {
		content = content[:s.cfg.ContentCap]
	}

	now := s.clock.Now()
	rec := llmstxt.URLRecord{
		JobID:       jobID,
		URL:         url,
		Status:      llmstxt.URLStatusCompleted,
		Title:       title,
		Description: description,
		Content:     content,
		CrawledAt:   &now,
	}
	if err := s.urls.UpsertURLRecord(ctx, rec); err != nil {
		return fmt.Errorf("write url record: %w", err)
	}
	metrics.ObservePage(url, string(llmstxt.URLStatusCompleted), len(content))
	return nil
}

// summarize derives title and description with the fallback chain: summarizer
// reply, then scrape metadata, then fixed defaults.
func (s *Step) summarize(ctx context.Context, url string, result llmstxt.ScrapeResult) (string, string) {
	excerpt := result.Markdown
	if len(excerpt) > s.cfg.ExcerptBytes {
		excerpt = excerpt[:s.cfg.ExcerptBytes]
	}

	var summary llmstxt.Summary
	if s.summarizer != nil {
		var err error
		summary, err = s.summarizer.Summarize(ctx, url, excerpt)
		if err != nil {
			s.logger.Warn("summarize failed, falling back to metadata",
				zap.String("url", url), zap.Error(err))
		}
	}

	title := summary.Title
	if title == "" {
		title = result.Metadata.Title
	}
	if title == "" {
		title = DefaultTitle
	}
	description := summary.Description
	if description == "" {
		description = result.Metadata.Description
	}
	if description == "" {
		description = DefaultDescription
	}
	return title, description
}

func (s *Step) writeFailed(ctx context.Context, jobID, url, message string) error {
	now := s.clock.Now()
	rec := llmstxt.URLRecord{
		JobID:        jobID,
		URL:          url,
		Status:       llmstxt.URLStatusFailed,
		ErrorMessage: message,
		CrawledAt:    &now,
	}
	if err := s.urls.UpsertURLRecord(ctx, rec); err != nil {
		return fmt.Errorf("write url record: %w", err)
	}
	metrics.ObservePage(url, string(llmstxt.URLStatusFailed), 0)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
