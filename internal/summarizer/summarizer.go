// Package summarizer produces plain-language bill summaries with the Anthropic Messages API.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
	// maxInputRunes bounds the bill text sent per request.
	maxInputRunes = 150000
)

// Prompt is the fixed instruction sent with every bill.
const Prompt = "You write for a nonpartisan civic app. Summarize the following U.S. bill text in plain " +
	"English for a general audience in at most three short paragraphs. Describe what the bill would " +
	"do and who it would affect. Do not speculate about its chances of passing and do not take a side."

var (
	// ErrEmptySummary is returned when the model produced no text.
	ErrEmptySummary = errors.New("summarizer: empty summary")
	// ErrEmptyText is returned when there is nothing to summarize.
	ErrEmptyText = errors.New("summarizer: empty bill text")

	errMissingAPIKey = errors.New("summarizer: api key is required")
)

// Config wires the summarizer.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int64
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Summarizer calls the model with the fixed prompt.
type Summarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// New validates the configuration and builds a Summarizer.
func New(cfg Config) (*Summarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		options = append(options, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Summarizer{
		client:    anthropic.NewClient(options...),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Summarize returns the model's summary of text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if runes := []rune(text); len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
	}

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: Prompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: messages request: %w", err)
	}

	var parts []string
	for _, block := range message.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptySummary
	}

	s.logger.Debug("bill summarized",
		zap.String("model", s.model),
		zap.Int64("input_tokens", message.Usage.InputTokens),
		zap.Int64("output_tokens", message.Usage.OutputTokens))

	return strings.Join(parts, "\n\n"), nil
}
