// Package anthropic implements core.Generator on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/logging"
)

var log = logging.For("llm")

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 512
)

// Config configures the generator.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// MaxRetries is passed to the client. Negative keeps the SDK default.
	MaxRetries int
}

// Generator sends each prompt as a single user message.
type Generator struct {
	client *sdk.Client
	model  string
}

var _ core.Generator = (*Generator)(nil)

// New creates a generator. A missing API key is a configuration error.
func New(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing required key: ANTHROPIC_API_KEY", core.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	client := sdk.NewClient(opts...)
	return &Generator{client: &client, model: cfg.Model}, nil
}

// Generate returns the concatenated text blocks of the reply.
func (g *Generator) Generate(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
		Temperature: sdk.Float(opts.Temperature),
	}
	if stops := stopSequences(opts.Stop); len(stops) > 0 {
		params.StopSequences = stops
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).WithField("model", g.model).Warn("message request failed")
		}
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// stopSequences drops whitespace-only entries, which the API rejects.
func stopSequences(stop []string) []string {
	var out []string
	for _, s := range stop {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
