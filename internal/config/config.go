package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	CompletionTimeout time.Duration

	ZAPIInstanceID string
	ZAPIToken      string
	ZAPIBaseURL    string
	RelayTimeout   time.Duration

	SystemPromptPath    string
	ContextMessageCount int

	WorkerCount int
	QueueBuffer int

	DefaultCountryCode   string
	LocalNumberMaxDigits int

	FallbackReply      string
	InternalErrorReply string
}

const (
	defaultFallbackReply      = "Desculpe, não consegui processar sua solicitação no momento. 🥺 Tente novamente mais tarde."
	defaultInternalErrorReply = "Ocorreu um erro interno. Por favor, tente novamente mais tarde."
)

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "google/gemini-flash-1.5"),
		OpenRouterBaseURL: strings.TrimRight(getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
		CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 60*time.Second),

		ZAPIInstanceID: getEnv("ZAPI_INSTANCE_ID", ""),
		ZAPIToken:      getEnv("ZAPI_TOKEN", ""),
		ZAPIBaseURL:    strings.TrimRight(getEnv("ZAPI_BASE_URL", "https://api.z-api.io"), "/"),
		RelayTimeout:   getEnvAsDuration("RELAY_TIMEOUT", 30*time.Second),

		SystemPromptPath:    getEnv("SYSTEM_PROMPT_PATH", "prompt/system_prompt.txt"),
		ContextMessageCount: getEnvAsInt("CONTEXT_MESSAGE_COUNT", 6),

		WorkerCount: getEnvAsInt("WORKER_COUNT", 2),
		QueueBuffer: getEnvAsInt("QUEUE_BUFFER", 128),

		DefaultCountryCode:   getEnv("DEFAULT_COUNTRY_CODE", "55"),
		LocalNumberMaxDigits: getEnvAsInt("LOCAL_NUMBER_MAX_DIGITS", 11),

		FallbackReply:      getEnv("FALLBACK_REPLY", defaultFallbackReply),
		InternalErrorReply: getEnv("INTERNAL_ERROR_REPLY", defaultInternalErrorReply),
	}
}

// Validate reports the required values that are missing. Startup fails on a
// non-nil result.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.OpenRouterAPIKey == "" {
		missing = append(missing, "OPENROUTER_API_KEY")
	}
	if c.ZAPIInstanceID == "" {
		missing = append(missing, "ZAPI_INSTANCE_ID")
	}
	if c.ZAPIToken == "" {
		missing = append(missing, "ZAPI_TOKEN")
	}
	if len(missing) > 0 {
		return errors.New("config: missing required environment variables: " + strings.Join(missing, ", "))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
