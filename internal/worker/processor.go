package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/indexfox/llmstxt/internal/llmstxt"
	"github.com/indexfox/llmstxt/internal/metrics"
)

// rateLimitKey is the shared limiter key: all jobs draw from the one external
// scrape API budget.
const rateLimitKey = "scrape"

// FileGenerator finalizes a drained job: builds the output documents and
// marks the job completed.
type FileGenerator interface {
	Generate(ctx context.Context, jobID string) error
}

// Processor performs one bounded slice of queue-driven work per invocation.
// Invocations may overlap for the same job; atomic dequeue and recomputed
// counters keep that safe.
type Processor struct {
	jobs    llmstxt.JobStore
	urls    llmstxt.URLStore
	queue   llmstxt.Queue
	limiter llmstxt.RateLimiter
	step    *Step
	gen     FileGenerator
	clock   llmstxt.Clock
	logger  *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(
	jobs llmstxt.JobStore,
	urls llmstxt.URLStore,
	queue llmstxt.Queue,
	limiter llmstxt.RateLimiter,
	step *Step,
	gen FileGenerator,
	clock llmstxt.Clock,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		jobs:    jobs,
		urls:    urls,
		queue:   queue,
		limiter: limiter,
		step:    step,
		gen:     gen,
		clock:   clock,
		logger:  logger.Named("processor"),
	}
}

// ProcessNext runs one batch-processor invocation for the job: rate-limit
// check, atomic dequeue, scrape+summarize, counter recompute. An empty
// dequeue finalizes the job through the file generator.
func (p *Processor) ProcessNext(ctx context.Context, jobID string) (llmstxt.ProcessOutcome, error) {
	start := p.clock.Now()

	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return llmstxt.ProcessOutcome{}, err
	}
	if job.Status.Terminal() {
		// A late trigger after completion or cancellation is a no-op.
		return llmstxt.ProcessOutcome{Done: true}, nil
	}
	if p.queue == nil {
		// Degraded mode: batches drive themselves to completion, an external
		// trigger has no queue to drain.
		return llmstxt.ProcessOutcome{Done: true}, nil
	}

	allowed, err := p.limiter.Allow(ctx, rateLimitKey)
	if err != nil {
		// Fail open: the limiter already reported allow=true.
		p.logger.Warn("rate limiter backend error",
			zap.String("job_id", jobID), zap.Error(err))
	}
	if !allowed {
		metrics.ObserveRateLimitDenied()
		length, lenErr := p.queue.Length(ctx, jobID)
		if lenErr != nil {
			return llmstxt.ProcessOutcome{RateLimited: true}, fmt.Errorf("queue length: %w", lenErr)
		}
		return llmstxt.ProcessOutcome{Remaining: length, RateLimited: true}, nil
	}

	url, err := p.queue.DequeueOne(ctx, jobID)
	if err != nil {
		return llmstxt.ProcessOutcome{}, fmt.Errorf("dequeue: %w", err)
	}
	if url == "" {
		// Re-read before finalizing: a cancel landing after the entry check
		// must not be overwritten with completed.
		job, err = p.jobs.GetJob(ctx, jobID)
		if err != nil {
			return llmstxt.ProcessOutcome{}, err
		}
		if job.Status.Terminal() {
			return llmstxt.ProcessOutcome{Done: true}, nil
		}
		if err := p.gen.Generate(ctx, jobID); err != nil {
			return llmstxt.ProcessOutcome{}, fmt.Errorf("generate files: %w", err)
		}
		metrics.ObserveBatch("done", p.clock.Now().Sub(start))
		return llmstxt.ProcessOutcome{Done: true}, nil
	}

	if err := p.step.Process(ctx, jobID, url); err != nil {
		return llmstxt.ProcessOutcome{}, err
	}

	if err := p.refreshCounters(ctx, jobID); err != nil {
		return llmstxt.ProcessOutcome{}, err
	}

	length, err := p.queue.Length(ctx, jobID)
	if err != nil {
		return llmstxt.ProcessOutcome{}, fmt.Errorf("queue length: %w", err)
	}
	metrics.ObserveBatch("processed", p.clock.Now().Sub(start))
	return llmstxt.ProcessOutcome{Remaining: length}, nil
}

// refreshCounters recomputes urls_crawled and urls_processed from the URL
// records. Counters are always recomputed, never incremented, so concurrent
// invocations cannot drift them.
func (p *Processor) refreshCounters(ctx context.Context, jobID string) error {
	completed, err := p.urls.CountURLRecords(ctx, jobID, llmstxt.URLStatusCompleted)
	if err != nil {
		return fmt.Errorf("count completed: %w", err)
	}
	failed, err := p.urls.CountURLRecords(ctx, jobID, llmstxt.URLStatusFailed)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	if err := p.jobs.SetJobProgress(ctx, jobID, completed+failed, completed); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}
