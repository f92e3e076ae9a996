package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
)

// classify maps a genai error onto the ai sentinels, keeping the original
// error in the chain.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ai.ErrTransient, err)
	}
	if apiErr, ok := asAPIError(err); ok {
		return fmt.Errorf("%w: %w", kindOf(apiErr), err)
	}
	return fmt.Errorf("%w: %w", ai.ClassifyMessage(err.Error()), err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

func kindOf(e genai.APIError) error {
	switch {
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden,
		e.Status == "UNAUTHENTICATED", e.Status == "PERMISSION_DENIED":
		return ai.ErrCredentialsInvalid
	case e.Code == http.StatusTooManyRequests, e.Status == "RESOURCE_EXHAUSTED":
		return ai.ErrRateLimited
	case e.Code == http.StatusNotFound && strings.Contains(strings.ToLower(e.Message), "model"):
		return ai.ErrModelUnavailable
	}
	// 400 covers both "API key not valid" and unsupported models.
	return ai.ClassifyMessage(e.Message)
}
