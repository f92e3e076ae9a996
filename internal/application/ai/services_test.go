package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
	"github.com/bryanwahyu/verdict/internal/domain/verdict"
)

const goodJSON = `{"meaning":"Stalling.","intentLevel":"Low","intentExplanation":"No urgency.",
"closeProbability":"10-20%","bestResponse":"What changes next quarter?",
"whatNotToSay":["Discounting"],"followUpStrategy":{"maxFollowUps":"1","timeGap":"7 days","stopCondition":"Silence"},
"walkAwaySignal":"No decision date."}`

type stubClient struct {
	mu      sync.Mutex
	calls   []ai.CompletionRequest
	results map[string]func() (string, error)
}

func (s *stubClient) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if fn, ok := s.results[req.Model]; ok {
		return fn()
	}
	return "", errors.New("unexpected model " + req.Model)
}

func dialerFor(c ai.Client, keys *[]string) ai.Dialer {
	return func(_ context.Context, key string) (ai.Client, error) {
		if keys != nil {
			*keys = append(*keys, key)
		}
		return c, nil
	}
}

func sampleRequest() verdict.Request {
	return verdict.Request{
		ObjectionText: "It's too expensive right now.",
		Mode:          verdict.ModeDisqualify,
		Context:       verdict.Context{DealSizeTier: "High-Ticket", Sector: "SaaS", DealStage: "Discovery Call"},
	}
}

func TestAnalyze_PrimarySucceeds(t *testing.T) {
	client := &stubClient{results: map[string]func() (string, error){
		"primary": func() (string, error) { return goodJSON, nil },
	}}
	var keys []string
	svc := NewService(func() string { return "k1" }, dialerFor(client, &keys), "primary", "fallback", zerolog.Nop())

	p, err := svc.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, verdict.IntentLow, p.IntentLevel)
	assert.Equal(t, []string{"k1"}, keys)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].SystemInstruction, "PROTOCOL: DISQUALIFY")
	assert.Contains(t, client.calls[0].Content, "Sector: SaaS")
}

func TestAnalyze_FallsBackOnlyWhenModelUnavailable(t *testing.T) {
	client := &stubClient{results: map[string]func() (string, error){
		"primary":  func() (string, error) { return "", ai.ErrModelUnavailable },
		"fallback": func() (string, error) { return goodJSON, nil },
	}}
	svc := NewService(func() string { return "k" }, dialerFor(client, nil), "primary", "fallback", zerolog.Nop())

	_, err := svc.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, client.calls, 2)
	assert.Equal(t, "fallback", client.calls[1].Model)
}

func TestAnalyze_NoFallbackForOtherFailures(t *testing.T) {
	for _, kind := range []error{ai.ErrRateLimited, ai.ErrCredentialsInvalid, ai.ErrTransient} {
		client := &stubClient{results: map[string]func() (string, error){
			"primary":  func() (string, error) { return "", kind },
			"fallback": func() (string, error) { return goodJSON, nil },
		}}
		svc := NewService(func() string { return "k" }, dialerFor(client, nil), "primary", "fallback", zerolog.Nop())

		_, err := svc.Analyze(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, kind)
		assert.Len(t, client.calls, 1)
	}
}

func TestAnalyze_BothModelsUnavailable(t *testing.T) {
	client := &stubClient{results: map[string]func() (string, error){
		"primary":  func() (string, error) { return "", ai.ErrModelUnavailable },
		"fallback": func() (string, error) { return "", ai.ErrModelUnavailable },
	}}
	svc := NewService(func() string { return "k" }, dialerFor(client, nil), "primary", "fallback", zerolog.Nop())

	_, err := svc.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrModelUnavailable)
	assert.Len(t, client.calls, 2)
}

func TestAnalyze_MissingCredentialsMakesNoCall(t *testing.T) {
	dialed := false
	dial := func(context.Context, string) (ai.Client, error) {
		dialed = true
		return nil, nil
	}
	svc := NewService(func() string { return "" }, dial, "primary", "", zerolog.Nop())

	_, err := svc.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrCredentialsMissing)
	assert.False(t, dialed)
}

func TestAnalyze_MalformedOutput(t *testing.T) {
	client := &stubClient{results: map[string]func() (string, error){
		"primary": func() (string, error) { return strings.Replace(goodJSON, `"Low"`, `"Certain"`, 1), nil },
	}}
	svc := NewService(func() string { return "k" }, dialerFor(client, nil), "primary", "fallback", zerolog.Nop())

	_, err := svc.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrMalformedOutput)
	assert.Len(t, client.calls, 1, "malformed output is not retried on the fallback")
}

func TestAnalyze_KeyResolvedPerCall(t *testing.T) {
	client := &stubClient{results: map[string]func() (string, error){
		"primary": func() (string, error) { return goodJSON, nil },
	}}
	key := "old"
	var keys []string
	svc := NewService(func() string { return key }, dialerFor(client, &keys), "primary", "", zerolog.Nop())

	_, err := svc.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	key = "rotated"
	_, err = svc.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "rotated"}, keys)
}

func TestAnalyze_DialFailureIsTransient(t *testing.T) {
	dial := func(context.Context, string) (ai.Client, error) { return nil, errors.New("boom") }
	svc := NewService(func() string { return "k" }, dial, "primary", "", zerolog.Nop())

	_, err := svc.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrTransient)
}
