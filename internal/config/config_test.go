package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OPENROUTER_MODEL", "")
	t.Setenv("CONTEXT_MESSAGE_COUNT", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "google/gemini-flash-1.5", cfg.OpenRouterModel)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouterBaseURL)
	assert.Equal(t, "https://api.z-api.io", cfg.ZAPIBaseURL)
	assert.Equal(t, 6, cfg.ContextMessageCount)
	assert.Equal(t, 60*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, 30*time.Second, cfg.RelayTimeout)
	assert.Equal(t, "55", cfg.DefaultCountryCode)
	assert.Equal(t, 11, cfg.LocalNumberMaxDigits)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.NotEmpty(t, cfg.FallbackReply)
	assert.NotEmpty(t, cfg.InternalErrorReply)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("OPENROUTER_MODEL", "anthropic/claude-3-haiku")
	t.Setenv("OPENROUTER_BASE_URL", "https://openrouter.example.com/api/v1/")
	t.Setenv("ZAPI_BASE_URL", "https://zapi.example.com/")
	t.Setenv("CONTEXT_MESSAGE_COUNT", "10")
	t.Setenv("COMPLETION_TIMEOUT", "15s")
	t.Setenv("DEFAULT_COUNTRY_CODE", "1")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://user@host/db", cfg.DatabaseURL)
	assert.Equal(t, "anthropic/claude-3-haiku", cfg.OpenRouterModel)
	assert.Equal(t, "https://openrouter.example.com/api/v1", cfg.OpenRouterBaseURL, "trailing slash should be trimmed")
	assert.Equal(t, "https://zapi.example.com", cfg.ZAPIBaseURL, "trailing slash should be trimmed")
	assert.Equal(t, 10, cfg.ContextMessageCount)
	assert.Equal(t, 15*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "1", cfg.DefaultCountryCode)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONTEXT_MESSAGE_COUNT", "not-a-number")
	t.Setenv("COMPLETION_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 6, cfg.ContextMessageCount)
	assert.Equal(t, 60*time.Second, cfg.CompletionTimeout)
}

func TestValidateMissingRequired(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()

	require.Error(t, err)
	for _, key := range []string{"DATABASE_URL", "OPENROUTER_API_KEY", "ZAPI_INSTANCE_ID", "ZAPI_TOKEN"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidateComplete(t *testing.T) {
	cfg := &Config{
		DatabaseURL:      "postgres://localhost/relay",
		OpenRouterAPIKey: "sk-or-test",
		ZAPIInstanceID:   "instance",
		ZAPIToken:        "token",
	}

	require.NoError(t, cfg.Validate())
}
