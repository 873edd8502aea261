package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: envName+"_FILE"
// names a file holding the value and takes precedence over envName itself.
// Returns "" if neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Secrets are the credentials the engine needs at startup.
type Secrets struct {
	LLMAPIKey    string
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

// String never prints secret values.
func (s Secrets) String() string {
	return fmt.Sprintf("Secrets{LLMAPIKey:%s AdminUser:%s AdminPass:%s OperatorUser:%s OperatorPass:%s}",
		redact(s.LLMAPIKey), redact(s.AdminUser), redact(s.AdminPass), redact(s.OperatorUser), redact(s.OperatorPass))
}

func redact(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

// LoadSecrets resolves every secret the engine reads. PGPASSWORD is read by
// the Postgres driver itself, so a PGPASSWORD_FILE value is exported back
// into the environment.
func LoadSecrets(cfg *EngineConfig) (Secrets, error) {
	keyEnv := cfg.LLM.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}

	var s Secrets
	for _, secret := range []struct {
		env string
		dst *string
	}{
		{keyEnv, &s.LLMAPIKey},
		{"WEAVY_ADMIN_USER", &s.AdminUser},
		{"WEAVY_ADMIN_PASS", &s.AdminPass},
		{"WEAVY_OPERATOR_USER", &s.OperatorUser},
		{"WEAVY_OPERATOR_PASS", &s.OperatorPass},
	} {
		v, err := ResolveSecret(secret.env)
		if err != nil {
			return s, err
		}
		*secret.dst = v
	}

	pg, err := ResolveSecret("PGPASSWORD")
	if err != nil {
		return s, err
	}
	if pg != "" && os.Getenv("PGPASSWORD") == "" {
		os.Setenv("PGPASSWORD", pg)
	}
	return s, nil
}
