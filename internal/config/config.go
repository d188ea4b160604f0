package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string // "production" or "development"

	// OpenRouter / LLM configuration
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	LLMRequestTimeout time.Duration
	LLMRequestsPerMin int

	// Agent configuration
	MaxIterations int

	// Sandbox configuration
	SandboxTimeout     time.Duration
	SandboxMemoryLimit int64 // bytes

	// Session configuration
	SessionTTL       time.Duration
	SessionRetention time.Duration // how long persisted state snapshots are kept

	// Upload configuration
	MaxFileSizeBytes int64

	// Persistence
	DatabasePath string

	// Evaluation policy overrides (optional YAML file, see agent.LoadPolicy)
	EvaluationPolicyFile string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "anthropic/claude-3.5-sonnet"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMRequestTimeout: getDurationEnv("LLM_REQUEST_TIMEOUT_SECONDS", 120*time.Second),
		LLMRequestsPerMin: getIntEnv("LLM_REQUESTS_PER_MINUTE", 30),

		MaxIterations: getIntEnv("MAX_ITERATIONS", 5),

		SandboxTimeout:     getDurationEnv("SANDBOX_TIMEOUT_SECONDS", 30*time.Second),
		SandboxMemoryLimit: int64(getIntEnv("SANDBOX_MEMORY_LIMIT_MB", 512)) * 1024 * 1024,

		SessionTTL:       getDurationEnv("SESSION_TTL_SECONDS", time.Hour),
		SessionRetention: getDurationEnv("SESSION_RETENTION_SECONDS", 24*time.Hour),

		MaxFileSizeBytes: int64(getIntEnv("MAX_FILE_SIZE_MB", 50)) * 1024 * 1024,

		DatabasePath: getEnv("DATABASE_PATH", "./data/reconagent.db"),

		EvaluationPolicyFile: getEnv("EVALUATION_POLICY_FILE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv reads an integer number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultValue
}
