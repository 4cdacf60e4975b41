package llm

import (
	"fmt"
	"os"
)

// CredentialProvider resolves the API key to use for a given genre,
// collapsing the cron path (reads a backend secret) and the interactive
// path (a human might supply an override) into one injected abstraction.
type CredentialProvider interface {
	APIKey(genre string) (string, error)
}

// EnvCredentialProvider reads a process-wide secret from the environment,
// the way the cron-triggered path always has.
type EnvCredentialProvider struct {
	EnvVar string
}

func NewEnvCredentialProvider(envVar string) *EnvCredentialProvider {
	if envVar == "" {
		envVar = "ANTHROPIC_API_KEY"
	}
	return &EnvCredentialProvider{EnvVar: envVar}
}

func (p *EnvCredentialProvider) APIKey(genre string) (string, error) {
	key := os.Getenv(p.EnvVar)
	if key == "" {
		return "", fmt.Errorf("llm: %s is not set", p.EnvVar)
	}
	return key, nil
}

// StaticCredentialProvider returns a fixed key regardless of genre, for
// tests and for a manual "Fill Now" override that supplies its own key.
type StaticCredentialProvider struct {
	Key string
}

func (p StaticCredentialProvider) APIKey(genre string) (string, error) {
	if p.Key == "" {
		return "", fmt.Errorf("llm: no static api key configured")
	}
	return p.Key, nil
}
