package config

import (
	"os"
	"strings"
)

// providerKeyVars lists, in precedence order, the environment variables
// consulted after the explicit ai.api_key setting.
var providerKeyVars = map[string][]string{
	ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"},
	ProviderOpenAI: {"OPENAI_API_KEY", "API_KEY"},
}

// Lookup matches os.LookupEnv.
type Lookup func(key string) (string, bool)

// ResolveAIKey is the single place the AI credential is resolved. It returns
// "" when nothing usable is configured; callers report CredentialsMissing.
func ResolveAIKey(cfg AIConfig, lookup Lookup) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if usable(cfg.APIKey) {
		return strings.TrimSpace(cfg.APIKey)
	}
	if v, ok := lookup("AI_API_KEY"); ok && usable(v) {
		return strings.TrimSpace(v)
	}
	for _, name := range providerKeyVars[cfg.Provider] {
		if v, ok := lookup(name); ok && usable(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func usable(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != "undefined" && v != "null"
}
