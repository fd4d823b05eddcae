// Package scrape is the HTTP client for the external mapping and scraping
// service. All page fetching and rendering happens on the remote side; this
// client only speaks its JSON API.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

// Config captures the parameters for the external scrape service.
type Config struct {
	// BaseURL is the service root, e.g. "https://api.firecrawl.dev".
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// PaceRPS throttles outbound calls client-side so a single busy job does
	// not eat the whole shared window. Zero disables pacing.
	PaceRPS float64
}

// Client implements llmstxt.Mapper and llmstxt.Scraper against the remote
// service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	pacer   *rate.Limiter
}

// New creates a Client. The service base URL is required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("scrape base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var pacer *rate.Limiter
	if cfg.PaceRPS > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.PaceRPS), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		pacer:   pacer,
	}, nil
}

type mapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit,omitempty"`
}

type mapResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
	Error   string   `json:"error,omitempty"`
}

// MapSite asks the service to discover URLs under the domain, up to limit.
func (c *Client) MapSite(ctx context.Context, domain string, limit int) ([]string, error) {
	var resp mapResponse
	err := c.post(ctx, "/v1/map", mapRequest{URL: domain, Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("map %s: service error: %s", domain, resp.Error)
	}
	links := resp.Links
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool                `json:"success"`
	Data    llmstxt.ScrapeResult `json:"data"`
	Error   string              `json:"error,omitempty"`
}

// Scrape fetches one URL's markdown content and metadata.
func (c *Client) Scrape(ctx context.Context, url string) (llmstxt.ScrapeResult, error) {
	var resp scrapeResponse
	err := c.post(ctx, "/v1/scrape", scrapeRequest{URL: url, Formats: []string{"markdown"}}, &resp)
	if err != nil {
		return llmstxt.ScrapeResult{}, err
	}
	if !resp.Success {
		return llmstxt.ScrapeResult{}, fmt.Errorf("scrape %s: service error: %s", url, resp.Error)
	}
	return resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pace request: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("call %s: %w", path, llmstxt.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("call %s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
