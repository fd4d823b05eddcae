// Package controller orchestrates the crawl job lifecycle: start, mapping,
// queue drain or degraded batches, recovery actions, and diagnostics.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/indexfox/llmstxt/internal/llmstxt"
	"github.com/indexfox/llmstxt/internal/metrics"
	"github.com/indexfox/llmstxt/internal/worker"
)

// ErrDuplicateJob signals a non-terminal job already exists for the same
// (user, domain) pair.
var ErrDuplicateJob = errors.New("crawl already in progress for this domain")

// ErrMappingFailed signals the URL-discovery stage failed; the job has been
// marked failed and the error is reported synchronously.
var ErrMappingFailed = errors.New("site mapping failed")

const cancelledMessage = "cancelled by user"

// Config tunes the controller.
type Config struct {
	MaxPagesDefault int
	MaxPagesLimit   int
	// BatchSize is the degraded-mode concurrent batch width and the retry
	// batch width.
	BatchSize int
	// InitialBurst is the number of ProcessNext calls issued directly after a
	// successful enqueue.
	InitialBurst int
	// BatchDelay is the fixed pause between degraded-mode or retry batches.
	BatchDelay time.Duration
	// InvocationBudget bounds the synchronous slice of Start and Retry so one
	// invocation cannot run past the host execution ceiling.
	InvocationBudget time.Duration
	// StuckThreshold is the age past which a non-terminal job counts as stuck.
	StuckThreshold time.Duration
	// IncompleteBelow is the processed/total ratio under which a completed
	// job is flagged incomplete.
	IncompleteBelow float64
}

func (c Config) withDefaults() Config {
	if c.MaxPagesDefault <= 0 {
		c.MaxPagesDefault = 20
	}
	if c.MaxPagesLimit <= 0 {
		c.MaxPagesLimit = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.InitialBurst <= 0 {
		c.InitialBurst = 5
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 2 * time.Second
	}
	if c.InvocationBudget <= 0 {
		c.InvocationBudget = 25 * time.Second
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = 10 * time.Minute
	}
	if c.IncompleteBelow <= 0 || c.IncompleteBelow > 1 {
		c.IncompleteBelow = 0.8
	}
	return c
}

// Controller drives the job state machine. A nil queue puts it into degraded
// batch mode: mapped URLs are processed in local concurrent batches instead
// of queue-driven triggers.
type Controller struct {
	jobs      llmstxt.JobStore
	urls      llmstxt.URLStore
	queue     llmstxt.Queue
	mapper    llmstxt.Mapper
	step      *worker.Step
	processor *worker.Processor
	gen       worker.FileGenerator
	ids       llmstxt.IDGenerator
	clock     llmstxt.Clock
	cfg       Config
	logger    *zap.Logger

	// sleep is ctx-aware; tests replace it to skip inter-batch delays.
	sleep func(ctx context.Context, d time.Duration) error
	// background produces the context detached work runs under.
	background func(ctx context.Context) context.Context
}

// New constructs a Controller.
func New(
	jobs llmstxt.JobStore,
	urls llmstxt.URLStore,
	queue llmstxt.Queue,
	mapper llmstxt.Mapper,
	step *worker.Step,
	processor *worker.Processor,
	gen worker.FileGenerator,
	ids llmstxt.IDGenerator,
	clock llmstxt.Clock,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		jobs:       jobs,
		urls:       urls,
		queue:      queue,
		mapper:     mapper,
		step:       step,
		processor:  processor,
		gen:        gen,
		ids:        ids,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("controller"),
		sleep:      sleepCtx,
		background: func(ctx context.Context) context.Context { return context.WithoutCancel(ctx) },
	}
}

// Start admits a new crawl job: duplicate guard, mapping, URL-record
// creation, enqueue, and the initial slice of processing. It returns the job
// with best-effort first-batch progress already applied.
func (c *Controller) Start(ctx context.Context, userID, domain string, maxPages int) (llmstxt.Job, error) {
	if domain == "" {
		return llmstxt.Job{}, fmt.Errorf("domain is required")
	}
	if maxPages <= 0 {
		maxPages = c.cfg.MaxPagesDefault
	}
	if maxPages > c.cfg.MaxPagesLimit {
		maxPages = c.cfg.MaxPagesLimit
	}

	// Duplicate-crawl guard: one non-terminal job per (user, domain).
	if _, err := c.jobs.FindActiveJob(ctx, userID, domain); err == nil {
		return llmstxt.Job{}, ErrDuplicateJob
	} else if !errors.Is(err, llmstxt.ErrNotFound) {
		return llmstxt.Job{}, fmt.Errorf("duplicate guard: %w", err)
	}

	jobID, err := c.ids.NewID()
	if err != nil {
		return llmstxt.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := llmstxt.Job{
		ID:        jobID,
		UserID:    userID,
		Domain:    domain,
		MaxPages:  maxPages,
		Status:    llmstxt.JobStatusPending,
		CreatedAt: c.clock.Now(),
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		return llmstxt.Job{}, fmt.Errorf("create job: %w", err)
	}

	urls, err := c.mapSite(ctx, job)
	if err != nil {
		return llmstxt.Job{}, err
	}

	if _, err := c.urls.CreateURLRecords(ctx, jobID, urls); err != nil {
		return llmstxt.Job{}, fmt.Errorf("create url records: %w", err)
	}
	if err := c.jobs.SetJobTotals(ctx, jobID, len(urls)); err != nil {
		return llmstxt.Job{}, fmt.Errorf("set totals: %w", err)
	}
	if err := c.jobs.UpdateJobStatus(ctx, jobID, llmstxt.JobStatusProcessing, ""); err != nil {
		return llmstxt.Job{}, fmt.Errorf("mark processing: %w", err)
	}

	if c.enqueue(ctx, jobID, urls) {
		c.initialBurst(ctx, jobID)
	} else {
		c.runDegraded(ctx, jobID, urls)
	}

	return c.jobs.GetJob(ctx, jobID)
}

// mapSite runs the mapping stage. Zero URLs or a service error fails the job
// synchronously.
func (c *Controller) mapSite(ctx context.Context, job llmstxt.Job) ([]string, error) {
	if err := c.jobs.UpdateJobStatus(ctx, job.ID, llmstxt.JobStatusMapping, ""); err != nil {
		return nil, fmt.Errorf("mark mapping: %w", err)
	}
	urls, err := c.mapper.MapSite(ctx, job.Domain, job.MaxPages)
	if err != nil {
		c.failJob(ctx, job.ID, fmt.Sprintf("mapping failed: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrMappingFailed, err)
	}
	if len(urls) == 0 {
		c.failJob(ctx, job.ID, "mapping returned no URLs")
		return nil, fmt.Errorf("%w: no URLs discovered for %s", ErrMappingFailed, job.Domain)
	}
	if len(urls) > job.MaxPages {
		urls = urls[:job.MaxPages]
	}
	return urls, nil
}

// enqueue pushes the mapped URLs onto the work queue. It reports false when
// the queue is absent or unusable, which switches Start to degraded mode.
func (c *Controller) enqueue(ctx context.Context, jobID string, urls []string) bool {
	if c.queue == nil {
		return false
	}
	added, err := c.queue.Enqueue(ctx, jobID, urls)
	if err != nil {
		c.logger.Warn("enqueue failed, falling back to degraded mode",
			zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return added > 0
}

// initialBurst issues up to InitialBurst ProcessNext calls so Start returns
// with immediate progress. Further invocations arrive externally.
func (c *Controller) initialBurst(ctx context.Context, jobID string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.InvocationBudget)
	defer cancel()

	for i := 0; i < c.cfg.InitialBurst; i++ {
		outcome, err := c.processor.ProcessNext(ctx, jobID)
		if err != nil {
			c.logger.Warn("initial burst invocation failed",
				zap.String("job_id", jobID), zap.Error(err))
			return
		}
		if outcome.Done || outcome.RateLimited {
			return
		}
	}
}

// runDegraded processes mapped URLs without the queue: the first batch
// synchronously, the remainder detached with inter-batch delays, then the
// generator completes the job.
func (c *Controller) runDegraded(ctx context.Context, jobID string, urls []string) {
	first := urls
	if len(first) > c.cfg.BatchSize {
		first = urls[:c.cfg.BatchSize]
	}
	rest := urls[len(first):]

	budgetCtx, cancel := context.WithTimeout(ctx, c.cfg.InvocationBudget)
	c.processBatch(budgetCtx, jobID, first)
	cancel()

	if len(rest) == 0 {
		c.finishIfActive(ctx, jobID)
		return
	}

	detached := c.background(ctx)
	go c.drainDegraded(detached, jobID, rest)
}

// drainDegraded runs the remaining degraded-mode batches in the background.
func (c *Controller) drainDegraded(ctx context.Context, jobID string, urls []string) {
	for start := 0; start < len(urls); start += c.cfg.BatchSize {
		if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
			return
		}
		job, err := c.jobs.GetJob(ctx, jobID)
		if err != nil || job.Status.Terminal() {
			// Cancelled mid-crawl: stop; late writes must not resurrect it.
			return
		}
		end := start + c.cfg.BatchSize
		if end > len(urls) {
			end = len(urls)
		}
		c.processBatch(ctx, jobID, urls[start:end])
	}
	c.finishIfActive(ctx, jobID)
}

// finishIfActive runs the generator only when the job is still non-terminal.
// A cancel that lands while a batch is in flight must stay failed; the
// generator would otherwise overwrite it with completed. ForceComplete stays
// unconditional because there the terminal overwrite is the point.
func (c *Controller) finishIfActive(ctx context.Context, jobID string) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		c.logger.Error("degraded-mode finalize failed",
			zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		return
	}
	if err := c.gen.Generate(ctx, jobID); err != nil {
		c.logger.Error("degraded-mode generate failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// processBatch runs the scrape+summarize step concurrently over one batch.
// Per-URL failures are isolated; sibling URLs always proceed.
func (c *Controller) processBatch(ctx context.Context, jobID string, urls []string) {
	g, gctx := errgroup.WithContext(ctx)
	for _, url := range urls {
		g.Go(func() error {
			if err := c.step.Process(gctx, jobID, url); err != nil {
				c.logger.Warn("batch step failed",
					zap.String("job_id", jobID), zap.String("url", url), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	c.refreshCounters(ctx, jobID)
}

func (c *Controller) refreshCounters(ctx context.Context, jobID string) {
	completed, err := c.urls.CountURLRecords(ctx, jobID, llmstxt.URLStatusCompleted)
	if err != nil {
		c.logger.Warn("count completed failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	failed, err := c.urls.CountURLRecords(ctx, jobID, llmstxt.URLStatusFailed)
	if err != nil {
		c.logger.Warn("count failed failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := c.jobs.SetJobProgress(ctx, jobID, completed+failed, completed); err != nil {
		c.logger.Warn("set progress failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (c *Controller) failJob(ctx context.Context, jobID, message string) {
	if err := c.jobs.UpdateJobStatus(ctx, jobID, llmstxt.JobStatusFailed, message); err != nil {
		c.logger.Error("mark failed failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(llmstxt.JobStatusFailed))
}

// Process runs one batch-processor invocation for the job.
func (c *Controller) Process(ctx context.Context, jobID string) (llmstxt.ProcessOutcome, error) {
	return c.processor.ProcessNext(ctx, jobID)
}

// GetJob returns the job record.
func (c *Controller) GetJob(ctx context.Context, jobID string) (llmstxt.Job, error) {
	return c.jobs.GetJob(ctx, jobID)
}

// Retry re-runs the scrape+summarize step over the job's pending and failed
// URL records: the first batch synchronously under the invocation budget, any
// remainder detached with inter-batch delays, then a force-complete.
func (c *Controller) Retry(ctx context.Context, jobID string) (llmstxt.Job, error) {
	if _, err := c.jobs.GetJob(ctx, jobID); err != nil {
		return llmstxt.Job{}, err
	}
	if err := c.jobs.UpdateJobStatus(ctx, jobID, llmstxt.JobStatusProcessing, ""); err != nil {
		return llmstxt.Job{}, fmt.Errorf("mark processing: %w", err)
	}

	records, err := c.urls.ListURLRecords(ctx, jobID,
		llmstxt.URLStatusPending, llmstxt.URLStatusFailed)
	if err != nil {
		return llmstxt.Job{}, fmt.Errorf("list retryable records: %w", err)
	}
	urls := make([]string, len(records))
	for i, rec := range records {
		urls[i] = rec.URL
	}

	first := urls
	if len(first) > c.cfg.BatchSize {
		first = urls[:c.cfg.BatchSize]
	}
	rest := urls[len(first):]

	budgetCtx, cancel := context.WithTimeout(ctx, c.cfg.InvocationBudget)
	c.processBatch(budgetCtx, jobID, first)
	cancel()

	if len(rest) == 0 {
		return c.ForceComplete(ctx, jobID)
	}

	go c.drainRetry(c.background(ctx), jobID, rest)
	return c.jobs.GetJob(ctx, jobID)
}

// drainRetry reprocesses the remaining retry batches detached from the
// originating request, then force-completes. No terminal check here: retried
// jobs are usually already failed, and force-completion is the whole point.
func (c *Controller) drainRetry(ctx context.Context, jobID string, urls []string) {
	for start := 0; start < len(urls); start += c.cfg.BatchSize {
		if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
			return
		}
		end := start + c.cfg.BatchSize
		if end > len(urls) {
			end = len(urls)
		}
		c.processBatch(ctx, jobID, urls[start:end])
	}
	if _, err := c.ForceComplete(ctx, jobID); err != nil {
		c.logger.Error("retry finalize failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// ForceComplete treats the current completed URL records as final: the
// generator runs over whatever exists and the job is marked completed.
func (c *Controller) ForceComplete(ctx context.Context, jobID string) (llmstxt.Job, error) {
	if err := c.gen.Generate(ctx, jobID); err != nil {
		return llmstxt.Job{}, fmt.Errorf("generate files: %w", err)
	}
	return c.jobs.GetJob(ctx, jobID)
}

// Cancel marks the job failed with a user-cancelled message. In-flight work
// may still write URL records, but the terminal status sticks.
func (c *Controller) Cancel(ctx context.Context, jobID string) (llmstxt.Job, error) {
	if _, err := c.jobs.GetJob(ctx, jobID); err != nil {
		return llmstxt.Job{}, err
	}
	if err := c.jobs.UpdateJobStatus(ctx, jobID, llmstxt.JobStatusFailed, cancelledMessage); err != nil {
		return llmstxt.Job{}, fmt.Errorf("cancel job: %w", err)
	}
	metrics.ObserveJob(string(llmstxt.JobStatusFailed))
	return c.jobs.GetJob(ctx, jobID)
}

// FixIncomplete sweeps the user's completed jobs and flips those with
// processed/total below the threshold to failed, making them retry-eligible.
// It does not itself reprocess anything.
func (c *Controller) FixIncomplete(ctx context.Context, userID string) ([]llmstxt.Job, error) {
	jobs, err := c.jobs.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var flipped []llmstxt.Job
	for _, job := range jobs {
		if job.Status != llmstxt.JobStatusCompleted || job.TotalURLs == 0 {
			continue
		}
		ratio := float64(job.URLsProcessed) / float64(job.TotalURLs)
		if ratio >= c.cfg.IncompleteBelow {
			continue
		}
		message := fmt.Sprintf("incomplete: %d of %d pages processed", job.URLsProcessed, job.TotalURLs)
		if err := c.jobs.UpdateJobStatus(ctx, job.ID, llmstxt.JobStatusFailed, message); err != nil {
			return flipped, fmt.Errorf("flip job %s: %w", job.ID, err)
		}
		updated, err := c.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return flipped, err
		}
		flipped = append(flipped, updated)
	}
	return flipped, nil
}

// Stuck returns non-terminal jobs older than the threshold. Read-only; acting
// on a stuck job takes an explicit recovery action.
func (c *Controller) Stuck(ctx context.Context, threshold time.Duration) ([]llmstxt.Job, error) {
	if threshold <= 0 {
		threshold = c.cfg.StuckThreshold
	}
	cutoff := c.clock.Now().Add(-threshold)
	return c.jobs.ListStaleJobs(ctx, cutoff)
}

// ListJobs returns all jobs owned by the user.
func (c *Controller) ListJobs(ctx context.Context, userID string) ([]llmstxt.Job, error) {
	return c.jobs.ListJobsByUser(ctx, userID)
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
