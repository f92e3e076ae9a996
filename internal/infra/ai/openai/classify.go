package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
)

// classify maps a go-openai error onto the ai sentinels, keeping the original
// error in the chain.
func classify(err error) error {
	return fmt.Errorf("%w: %w", kindOf(err), err)
}

func kindOf(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ai.ErrTransient
	}
	if errors.Is(err, openai.ErrChatCompletionInvalidModel) {
		return ai.ErrModelUnavailable
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok {
			switch code {
			case "invalid_api_key":
				return ai.ErrCredentialsInvalid
			case "model_not_found":
				return ai.ErrModelUnavailable
			case "insufficient_quota", "rate_limit_exceeded":
				return ai.ErrRateLimited
			}
		}
		msgKind := ai.ClassifyMessage(apiErr.Message)
		if msgKind == ai.ErrModelUnavailable {
			return msgKind
		}
		if k := kindOfStatus(apiErr.HTTPStatusCode); k != nil {
			return k
		}
		return msgKind
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if k := kindOfStatus(reqErr.HTTPStatusCode); k != nil {
			return k
		}
		return ai.ClassifyMessage(string(reqErr.Body))
	}
	return ai.ClassifyMessage(err.Error())
}

func kindOfStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.ErrCredentialsInvalid
	case http.StatusTooManyRequests:
		return ai.ErrRateLimited
	case http.StatusNotFound:
		return ai.ErrModelUnavailable
	}
	return nil
}
