package ai

import "context"

// CompletionRequest is the provider-neutral shape of one schema-constrained call.
// The response shape itself is fixed by the adapter (VerdictPayload).
type CompletionRequest struct {
	Model             string
	SystemInstruction string
	Content           string
}

// Client is implemented by every generative-AI provider adapter.
// Complete returns the raw JSON text of the completion.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Dialer builds a Client for one API key. A new client is dialed per call so
// a rotated key is picked up without restart.
type Dialer func(ctx context.Context, apiKey string) (Client, error)
