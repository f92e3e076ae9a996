package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
	"github.com/bryanwahyu/verdict/internal/domain/verdict"
	"github.com/bryanwahyu/verdict/internal/infra/ai/prompt"
)

// KeyResolver returns the API key to use for the next call, "" when none is
// configured. It is consulted on every call.
type KeyResolver func() string

// Service is the analysis client: one schema-constrained call per request,
// retried on the fallback model only when the primary is unavailable.
type Service struct {
	resolveKey KeyResolver
	dial       ai.Dialer
	models     []string
	log        zerolog.Logger
}

func NewService(resolveKey KeyResolver, dial ai.Dialer, primary, fallback string, log zerolog.Logger) *Service {
	models := []string{primary}
	if fallback != "" && fallback != primary {
		models = append(models, fallback)
	}
	return &Service{
		resolveKey: resolveKey,
		dial:       dial,
		models:     models,
		log:        log.With().Str("component", "analysis").Logger(),
	}
}

// Analyze returns the verdict for req or an error wrapping one of the
// ai sentinels.
func (s *Service) Analyze(ctx context.Context, req verdict.Request) (verdict.Payload, error) {
	key := s.resolveKey()
	if key == "" {
		return verdict.Payload{}, ai.ErrCredentialsMissing
	}
	client, err := s.dial(ctx, key)
	if err != nil {
		if errors.Is(err, ai.ErrCredentialsMissing) {
			return verdict.Payload{}, err
		}
		return verdict.Payload{}, fmt.Errorf("%w: dial: %w", ai.ErrTransient, err)
	}

	call := ai.CompletionRequest{
		SystemInstruction: prompt.SystemInstruction(req.Mode),
		Content:           prompt.UserContent(req),
	}

	var lastErr error
	for i, model := range s.models {
		call.Model = model
		raw, err := client.Complete(ctx, call)
		if err == nil {
			payload, perr := prompt.ParseVerdict(raw)
			if perr != nil {
				s.log.Warn().Str("model", model).Err(perr).Msg("unusable completion")
				return verdict.Payload{}, perr
			}
			return payload, nil
		}
		lastErr = err
		if !errors.Is(err, ai.ErrModelUnavailable) || i == len(s.models)-1 {
			break
		}
		s.log.Info().Str("model", model).Str("next", s.models[i+1]).Msg("model unavailable, falling back")
	}
	s.log.Error().Err(lastErr).Str("mode", string(req.Mode)).Msg("analysis failed")
	return verdict.Payload{}, lastErr
}
