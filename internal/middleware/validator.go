package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

var recordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateRecordID validates analysis id format taken from the URL.
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis id cannot be empty")
	}
	if !recordIDPattern.MatchString(id) {
		return fmt.Errorf("invalid analysis id format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// SanitizeString removes null bytes and control characters except tab and
// newline, then trims.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
