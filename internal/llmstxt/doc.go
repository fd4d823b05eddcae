// Package llmstxt defines the core types shared across subsystems: the crawl
// job, its per-URL records, the generated output files, and the collaborator
// interfaces implemented by the storage, queue, scraping and summarization
// backends.
package llmstxt
