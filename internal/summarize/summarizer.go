// Package summarize derives short page summaries with the Anthropic API.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/indexfox/llmstxt/internal/llmstxt"
)

const systemPrompt = `You summarize web pages for an llms.txt index. Reply with exactly two lines:
Title: <a concise page title, max 10 words>
Description: <one sentence describing the page, max 30 words>
Do not add anything else.`

// Config captures the parameters for the Anthropic summarizer.
type Config struct {
	APIKey       string
	Model        string
	MaxTokens    int
	ExcerptBytes int
	Timeout      time.Duration
}

// messenger is the slice of the Anthropic client the summarizer calls.
// Tests substitute a fake.
type messenger interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Summarizer implements llmstxt.Summarizer on the Anthropic messages API.
type Summarizer struct {
	msgs         messenger
	model        anthropic.Model
	maxTokens    int64
	excerptBytes int
	timeout      time.Duration
	logger       *zap.Logger
}

// New creates a Summarizer. The API key is required.
func New(cfg Config, logger *zap.Logger) (*Summarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.ExcerptBytes <= 0 {
		cfg.ExcerptBytes = 4000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Summarizer{
		msgs:         &client.Messages,
		model:        anthropic.Model(cfg.Model),
		maxTokens:    int64(cfg.MaxTokens),
		excerptBytes: cfg.ExcerptBytes,
		timeout:      cfg.Timeout,
		logger:       logger.Named("summarize"),
	}, nil
}

// Summarize asks the model for a two-line title/description of the excerpt.
// Fields it cannot parse come back empty; the caller applies its fallbacks.
func (s *Summarizer) Summarize(ctx context.Context, url, excerpt string) (llmstxt.Summary, error) {
	if len(excerpt) > s.excerptBytes {
		excerpt = excerpt[:s.excerptBytes]
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf("URL: %s\n\nPage content:\n%s", url, excerpt),
			)),
		},
	}

	resp, err := s.msgs.New(ctx, params)
	if err != nil {
		return llmstxt.Summary{}, fmt.Errorf("anthropic call: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	summary := ParseReply(reply.String())
	if summary.Title == "" && summary.Description == "" {
		s.logger.Warn("unparseable summarizer reply", zap.String("url", url))
	}
	return summary, nil
}

// ParseReply extracts the "Title:" and "Description:" lines from a model
// reply. Missing lines leave the corresponding field empty.
func ParseReply(reply string) llmstxt.Summary {
	var summary llmstxt.Summary
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			if summary.Title == "" {
				summary.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
			}
		case strings.HasPrefix(line, "Description:"):
			if summary.Description == "" {
				summary.Description = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
			}
		}
	}
	return summary
}
