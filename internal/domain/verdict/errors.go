package verdict

import (
	"errors"
	"fmt"

	"github.com/bryanwahyu/verdict/internal/domain/ai"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrPersistence        = errors.New("persistence error")
	ErrNotFound           = errors.New("analysis not found")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrNoPendingDraft     = errors.New("no pending draft")
)

// ValidationError names the offending form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Kind is the local error taxonomy surfaced to users.
type Kind string

const (
	KindNone               Kind = ""
	KindValidation         Kind = "ValidationError"
	KindCredentialsMissing Kind = "CredentialsMissing"
	KindCredentialsInvalid Kind = "CredentialsInvalid"
	KindRateLimited        Kind = "RateLimited"
	KindModelUnavailable   Kind = "ModelUnavailable"
	KindMalformedOutput    Kind = "MalformedOutputError"
	KindPersistence        Kind = "PersistenceError"
	KindTransient          Kind = "TransientFailure"
)

// KindOf maps any error onto the taxonomy. Unknown errors are transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ai.ErrCredentialsMissing):
		return KindCredentialsMissing
	case errors.Is(err, ai.ErrCredentialsInvalid):
		return KindCredentialsInvalid
	case errors.Is(err, ai.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ai.ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, ai.ErrMalformedOutput):
		return KindMalformedOutput
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindTransient
	}
}

// UserMessage returns the inline message shown next to the submit control.
// Validation errors carry their own field message.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field + " " + ve.Message
	}
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindCredentialsMissing:
		return "No AI API key is configured. Add one to the environment and try again."
	case KindCredentialsInvalid:
		return "The AI provider rejected the configured API key."
	case KindRateLimited:
		return "The AI provider is throttling requests. Wait a moment and retry."
	case KindModelUnavailable:
		return "No permitted AI model is available for this API key."
	case KindMalformedOutput:
		return "The analysis engine returned an unreadable verdict. Please retry."
	case KindPersistence:
		return "The verdict was generated but could not be saved."
	default:
		return "The analysis engine failed to respond. Please verify your connection and retry."
	}
}
