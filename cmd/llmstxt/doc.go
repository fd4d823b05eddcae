// Package main hosts the llms.txt generation service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, job management,
//     recovery, and file download endpoints. Job creation runs mapping
//     synchronously and returns 202 with first-batch progress applied.
//   - Crawl pipeline: the controller maps a domain through the external
//     scrape service, persists one URL record per page, and either drains a
//     Redis-backed FIFO through the batch processor or, without Redis, runs
//     local concurrent batches to completion.
//   - Per-page step: scrape via the remote service, summarize via the
//     Anthropic messages API, fall back to scrape metadata then to defaults,
//     and write the (job, url) record exactly once per attempt.
//   - Output: the file generator replaces the job's generated files with
//     per-page documents plus llms.txt and llms-full.txt, uploads durable
//     copies to GCS or the local filesystem when configured, and publishes a
//     completion event to Pub/Sub when a topic is configured.
//   - Persistence: Postgres via pgx when a DSN is configured, in-memory
//     stores otherwise. Counters are always recomputed from URL records.
//   - Rate limiting: one sliding window shared across all jobs bounds calls
//     to the scrape service; backend errors fail open.
//
// Operational notes:
//   - Shutdown is coordinated via signal.NotifyContext; detached degraded-mode
//     batches run under a context that survives the originating request.
//   - Configuration comes from Viper with the LLMSTXT_ env prefix; zap
//     provides structured logging and Prometheus metrics are served on
//     /metrics.
//   - Run locally: go run ./cmd/llmstxt -config config.yaml (or rely solely
//     on env overrides).
package main
