package adapter

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultClaudeModel     = "claude-sonnet-4-5"
	DefaultClaudeMaxTokens = 8192
)

// Claude is the interface for Claude API client
type Claude interface {
	// Generate sends prompt as a single user message and returns the text of the reply
	Generate(ctx context.Context, prompt string) (string, error)
}

// claudeClient implements Claude interface
type claudeClient struct {
	client       *anthropic.Client
	model        string
	maxTokens    int64
	systemPrompt string
}

type ClaudeOption func(*claudeClient)

func WithClaudeModel(model string) ClaudeOption {
	return func(c *claudeClient) {
		c.model = model
	}
}

func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *claudeClient) {
		c.maxTokens = n
	}
}

func WithClaudeSystemPrompt(prompt string) ClaudeOption {
	return func(c *claudeClient) {
		c.systemPrompt = prompt
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) Claude {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		// retries are handled by pkg/utils/retry
		option.WithMaxRetries(0),
	)
	c := &claudeClient{
		client:    &client,
		model:     DefaultClaudeModel,
		maxTokens: DefaultClaudeMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *claudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: c.systemPrompt},
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call claude", goerr.V("model", c.model))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", goerr.New("no text in claude response",
			goerr.V("model", c.model),
			goerr.V("stop_reason", msg.StopReason),
		)
	}
	return text.String(), nil
}
