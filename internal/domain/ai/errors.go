package ai

import (
	"errors"
	"strings"
)

// Provider failures mapped to local kinds. Adapters wrap the provider error
// with one of these so callers can use errors.Is.
var (
	// ErrCredentialsMissing indicates no usable API key is configured.
	ErrCredentialsMissing = errors.New("ai credentials missing")
	// ErrCredentialsInvalid indicates the provider rejected the API key (401/403 or key not found).
	ErrCredentialsInvalid = errors.New("ai credentials invalid")
	// ErrRateLimited indicates the provider returned a quota/limit error (HTTP 429 or similar).
	ErrRateLimited = errors.New("ai rate limited")
	// ErrModelUnavailable indicates the requested model is not found or not permitted for the key.
	ErrModelUnavailable = errors.New("ai model unavailable")
	// ErrMalformedOutput indicates an empty or schema-invalid completion.
	ErrMalformedOutput = errors.New("ai output malformed")
	// ErrTransient covers every other provider-side failure.
	ErrTransient = errors.New("ai transient failure")
)

// ClassifyMessage inspects a provider error message. Adapters call it only
// after their structured checks (status codes, error kinds) came up empty.
func ClassifyMessage(msg string) error {
	m := strings.ToLower(msg)
	switch {
	case m == "":
		return ErrTransient
	case strings.Contains(m, "api key not valid"),
		strings.Contains(m, "api key not found"),
		strings.Contains(m, "invalid api key"),
		strings.Contains(m, "incorrect api key"),
		strings.Contains(m, "unauthorized"),
		strings.Contains(m, "permission denied"):
		return ErrCredentialsInvalid
	case strings.Contains(m, "quota"),
		strings.Contains(m, "rate limit"),
		strings.Contains(m, "resource_exhausted"),
		strings.Contains(m, "too many requests"):
		return ErrRateLimited
	case strings.Contains(m, "model") && (strings.Contains(m, "not found") ||
		strings.Contains(m, "does not exist") ||
		strings.Contains(m, "not supported") ||
		strings.Contains(m, "not permitted") ||
		strings.Contains(m, "do not have access")):
		return ErrModelUnavailable
	case strings.Contains(m, "requested entity was not found"):
		return ErrCredentialsInvalid
	default:
		return ErrTransient
	}
}
