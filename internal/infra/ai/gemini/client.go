package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
)

const defaultMaxTokens = 2048

// Options tune the dialed client.
type Options struct {
	MaxOutputTokens int
	// BaseURL overrides the Gemini API endpoint (tests, proxies).
	BaseURL string
}

// Client calls generateContent with the verdict response schema.
type Client struct {
	models    *genai.Models
	maxTokens int32
}

// NewDialer returns an ai.Dialer that builds a fresh Gemini client per key.
func NewDialer(opts Options) ai.Dialer {
	return func(ctx context.Context, apiKey string) (ai.Client, error) {
		return NewClient(ctx, apiKey, opts)
	}
}

func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ai.ErrCredentialsMissing
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	tokens := opts.MaxOutputTokens
	if tokens <= 0 {
		tokens = defaultMaxTokens
	}
	return &Client{models: c.Models, maxTokens: int32(tokens)}, nil
}

func (c *Client) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    verdictSchema(),
		MaxOutputTokens:   c.maxTokens,
	}
	resp, err := c.models.GenerateContent(ctx, req.Model, genai.Text(req.Content), cfg)
	if err != nil {
		return "", classify(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty candidate from %s", ai.ErrMalformedOutput, req.Model)
	}
	return text, nil
}

func ptr[T any](v T) *T { return &v }

// verdictSchema mirrors prompt.VerdictSchema in genai's OpenAPI subset.
func verdictSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"meaning": str("The brutal truth behind the words."),
			"intentLevel": {
				Type: genai.TypeString,
				Enum: []string{"High", "Medium", "Low"},
			},
			"intentExplanation": str("Why the intent is ranked this way."),
			"closeProbability":  str("Percentage range (e.g., 20-30%)."),
			"bestResponse":      str("The exact message to send."),
			"whatNotToSay": {
				Type:        genai.TypeArray,
				Description: "1-2 common mistakes.",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    ptr[int64](1),
				MaxItems:    ptr[int64](2),
			},
			"followUpStrategy": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"maxFollowUps":  str(""),
					"timeGap":       str(""),
					"stopCondition": str(""),
				},
				Required:         []string{"maxFollowUps", "timeGap", "stopCondition"},
				PropertyOrdering: []string{"maxFollowUps", "timeGap", "stopCondition"},
			},
			"walkAwaySignal": str("Specific behavior that signals it's over."),
		},
		Required:         requiredFields,
		PropertyOrdering: requiredFields,
	}
}

var requiredFields = []string{
	"meaning",
	"intentLevel",
	"intentExplanation",
	"closeProbability",
	"bestResponse",
	"whatNotToSay",
	"followUpStrategy",
	"walkAwaySignal",
}
