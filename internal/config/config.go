package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DatabasePath string
	RegistryPath string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Resource governor settings
	MaxDBConnections     int
	MaxConcurrentWorkers int

	// Search settings
	SearchWorkers    int
	SearchBatchSize  int
	SearchHitLimit   int
	SearchShardLimit int

	// Extraction settings
	ExtractWorkers       int
	ExtractSubBatchSize  int
	DownloadTimeout      time.Duration
	DownloadMaxRetries   int
	PreloadQueueSize     int
	TempDir              string
	UserAgent            string
	IncrementalThreshold float64

	// Trigger classifier settings
	TriggerPrimaryPhrase   string
	TriggerSecondaryPhrase string

	// LLM settings
	LLMBaseURL      string
	LLMAPIKey       string
	LLMDedupAPIKey  string
	LLMModel        string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMRequestDelay time.Duration
	LLMRetryBase    time.Duration
	LLMMaxRetries   int
	DedupTolerance  float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:                   getEnv("HOST", "0.0.0.0"),
		Port:                   getEnv("PORT", "8080"),
		DatabasePath:           getEnv("DATABASE_PATH", "./data/bankruptcy.db"),
		RegistryPath:           getEnv("REGISTRY_PATH", "./data/decisions.db"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		TempDir:                getEnv("TEMP_DIR", "./data/temp_documents"),
		UserAgent:              getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		TriggerPrimaryPhrase:   getEnv("TRIGGER_PRIMARY_PHRASE", "визнати"),
		TriggerSecondaryPhrase: getEnv("TRIGGER_SECONDARY_PHRASE", "грошові вимоги"),
		LLMBaseURL:             getEnv("LLM_BASE_URL", "https://api.mistral.ai"),
		LLMAPIKey:              getEnv("LLM_API_KEY", ""),
		LLMDedupAPIKey:         getEnv("LLM_DEDUP_API_KEY", ""),
		LLMModel:               getEnv("LLM_MODEL", "ministral-8b-latest"),
		AnthropicAPIKey:        getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:         getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
	}

	var err error
	cfg.MaxDBConnections, err = getEnvInt("MAX_DB_CONNECTIONS", 50)
	if err != nil {
		return nil, err
	}
	cfg.MaxConcurrentWorkers, err = getEnvInt("MAX_CONCURRENT_WORKERS", 10)
	if err != nil {
		return nil, err
	}
	cfg.SearchWorkers, err = getEnvInt("SEARCH_WORKERS", 6)
	if err != nil {
		return nil, err
	}
	cfg.SearchBatchSize, err = getEnvInt("SEARCH_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	cfg.SearchHitLimit, err = getEnvInt("SEARCH_HIT_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	cfg.SearchShardLimit, err = getEnvInt("SEARCH_SHARD_LIMIT", 8)
	if err != nil {
		return nil, err
	}

	cfg.ExtractWorkers, err = getEnvInt("EXTRACT_WORKERS", 10)
	if err != nil {
		return nil, err
	}
	cfg.ExtractSubBatchSize, err = getEnvInt("EXTRACT_SUB_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	downloadTimeout, err := getEnvInt("DOWNLOAD_TIMEOUT", 15)
	if err != nil {
		return nil, err
	}
	cfg.DownloadTimeout = time.Duration(downloadTimeout) * time.Second

	cfg.DownloadMaxRetries, err = getEnvInt("DOWNLOAD_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	cfg.PreloadQueueSize, err = getEnvInt("PRELOAD_QUEUE_SIZE", 200)
	if err != nil {
		return nil, err
	}

	cfg.IncrementalThreshold, err = getEnvFloat("INCREMENTAL_THRESHOLD", 0.10)
	if err != nil {
		return nil, err
	}

	llmDelay, err := getEnvInt("LLM_REQUEST_DELAY", 2)
	if err != nil {
		return nil, err
	}
	cfg.LLMRequestDelay = time.Duration(llmDelay) * time.Second

	llmRetryBase, err := getEnvInt("LLM_RETRY_BASE_DELAY", 60)
	if err != nil {
		return nil, err
	}
	cfg.LLMRetryBase = time.Duration(llmRetryBase) * time.Second

	cfg.LLMMaxRetries, err = getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	cfg.DedupTolerance, err = getEnvFloat("DEDUP_TOLERANCE", 0.01)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
