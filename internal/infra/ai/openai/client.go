package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
	"github.com/bryanwahyu/verdict/internal/infra/ai/prompt"
)

const defaultMaxTokens = 2048

// Options tune the dialed client.
type Options struct {
	MaxOutputTokens int
	// BaseURL overrides the API endpoint, e.g. "http://localhost:8081/v1".
	BaseURL string
}

type Client struct {
	*openai.Client
	maxTokens int
}

// NewDialer returns an ai.Dialer building a fresh client per key.
func NewDialer(opts Options) ai.Dialer {
	return func(_ context.Context, apiKey string) (ai.Client, error) {
		return NewClient(apiKey, opts)
	}
}

func NewClient(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ai.ErrCredentialsMissing
	}
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	tokens := opts.MaxOutputTokens
	if tokens <= 0 {
		tokens = defaultMaxTokens
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), maxTokens: tokens}, nil
}

func (c *Client) Complete(ctx context.Context, in ai.CompletionRequest) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: in.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   prompt.SchemaName,
				Schema: prompt.StrictSchema(),
				Strict: true,
			},
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: in.Content},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(in.Model) {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices from %s", ai.ErrMalformedOutput, in.Model)
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("%w: model refused: %s", ai.ErrMalformedOutput, msg.Refusal)
	}
	return msg.Content, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
