package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
)

type capturedRequest struct {
	Model               string `json:"model"`
	MaxTokens           int    `json:"max_tokens"`
	MaxCompletionTokens int    `json:"max_completion_tokens"`
	ResponseFormat      struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string          `json:"name"`
			Strict bool            `json:"strict"`
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("sk-test", Options{BaseURL: srv.URL + "/v1", MaxOutputTokens: 512})
	require.NoError(t, err)
	return c
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestComplete_SendsStrictSchema(t *testing.T) {
	var got capturedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion(`{"meaning":"stall"}`))
	})

	out, err := c.Complete(context.Background(), ai.CompletionRequest{
		Model:             "gpt-4o",
		SystemInstruction: "be cold",
		Content:           "objection",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"meaning":"stall"}`, out)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.Zero(t, got.MaxCompletionTokens)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.True(t, got.ResponseFormat.JSONSchema.Strict)
	assert.Contains(t, string(got.ResponseFormat.JSONSchema.Schema), "walkAwaySignal")
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be cold", got.Messages[0].Content)
	assert.Equal(t, "objection", got.Messages[1].Content)
}

func TestComplete_ReasoningModelUsesCompletionTokens(t *testing.T) {
	var got capturedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion(`{}`))
	})
	_, err := c.Complete(context.Background(), ai.CompletionRequest{Model: "o4-mini"})
	require.NoError(t, err)
	assert.Equal(t, 512, got.MaxCompletionTokens)
	assert.Zero(t, got.MaxTokens)
}

func TestComplete_ClassifiesHTTPFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad key", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, ai.ErrCredentialsInvalid},
		{"quota", 429, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`, ai.ErrRateLimited},
		{"model missing", 404, `{"error":{"message":"The model gpt-x does not exist or you do not have access to it.","type":"invalid_request_error","code":"model_not_found"}}`, ai.ErrModelUnavailable},
		{"server", 500, `{"error":{"message":"The server had an error","type":"server_error","code":null}}`, ai.ErrTransient},
		{"gateway html", 502, `<html>bad gateway</html>`, ai.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})
			_, err := c.Complete(context.Background(), ai.CompletionRequest{Model: "gpt-4o"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestComplete_NoChoicesIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	})
	_, err := c.Complete(context.Background(), ai.CompletionRequest{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ai.ErrMalformedOutput)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ai.ErrModelUnavailable, kindOf(&openai.APIError{HTTPStatusCode: 403, Message: "You do not have access to model o3"}))
	assert.Equal(t, ai.ErrCredentialsInvalid, kindOf(&openai.APIError{HTTPStatusCode: 403, Message: "forbidden"}))
	assert.Equal(t, ai.ErrRateLimited, kindOf(&openai.RequestError{HTTPStatusCode: 429}))
	assert.Equal(t, ai.ErrModelUnavailable, kindOf(openai.ErrChatCompletionInvalidModel))
	assert.Equal(t, ai.ErrTransient, kindOf(context.Canceled))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", Options{})
	assert.ErrorIs(t, err, ai.ErrCredentialsMissing)
}
