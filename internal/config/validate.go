package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// The AI key is deliberately not checked here: a missing key surfaces as
// CredentialsMissing at submit time instead of a startup failure.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth token TTLs must be positive")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "postgres":
		c.Database.Driver = strings.ToLower(c.Database.Driver)
	default:
		return fmt.Errorf("database.driver must be mysql or postgres (got %q)", c.Database.Driver)
	}

	switch strings.ToLower(c.AI.Provider) {
	case ProviderGemini, ProviderOpenAI:
		c.AI.Provider = strings.ToLower(c.AI.Provider)
	default:
		return fmt.Errorf("ai.provider must be gemini or openai (got %q)", c.AI.Provider)
	}

	if c.Analysis.MinObjectionLength < 1 {
		c.Analysis.MinObjectionLength = 1
	}

	switch c.Drafts.Backend {
	case "memory":
	case "minio":
		if c.Drafts.Minio.Endpoint == "" || c.Drafts.Minio.BucketName == "" {
			return fmt.Errorf("drafts.minio endpoint and bucketName are required for the minio backend")
		}
	default:
		return fmt.Errorf("drafts.backend must be memory or minio (got %q)", c.Drafts.Backend)
	}
	return nil
}
