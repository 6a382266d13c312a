package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/raphaelgruber/enrichr/internal/models"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderVoyage    Provider = "voyage"
	ProviderBedrock   Provider = "bedrock"
)

// CacheMode selects the opt-in search query cache.
type CacheMode string

const (
	CacheOff    CacheMode = "off"
	CacheMemory CacheMode = "memory"
	CacheRedis  CacheMode = "redis"
)

// EmptyEvidencePolicy decides what happens when an entity has no retrievable evidence.
type EmptyEvidencePolicy string

const (
	// EmptyEvidenceGenerate still calls the LLM with an empty context section.
	EmptyEvidenceGenerate EmptyEvidencePolicy = "generate"
	// EmptyEvidenceMarker answers with models.NoEvidenceMarker without calling the LLM.
	EmptyEvidenceMarker EmptyEvidencePolicy = "marker"
)

// Config holds all configuration values.
type Config struct {
	// Search provider (SerpAPI)
	SerpAPIKey    string
	SerpAPIURL    string
	SearchResults int
	SearchRPS     float64

	// Completion provider
	LLMProvider Provider
	LLMModel    string
	LLMRPS      float64

	// Embedding provider
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Provider credentials / endpoints
	OllamaHost      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	VoyageAPIKey    string
	AWSRegion       string

	// Pipeline
	TopK          int
	Workers       int
	EmptyEvidence EmptyEvidencePolicy

	// Query cache
	Cache     CacheMode
	CacheSize int
	CacheTTL  time.Duration
	RedisURL  string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SerpAPIKey:    getEnv("SERPAPI_API_KEY", ""),
		SerpAPIURL:    getEnv("SERPAPI_URL", "https://serpapi.com/search.json"),
		SearchResults: getEnvInt("ENRICHR_SEARCH_RESULTS", 3),
		SearchRPS:     getEnvFloat("ENRICHR_SEARCH_RPS", 5),

		LLMProvider: Provider(strings.ToLower(getEnv("ENRICHR_LLM_PROVIDER", string(ProviderOpenAI)))),
		LLMModel:    getEnv("ENRICHR_LLM_MODEL", ""),
		LLMRPS:      getEnvFloat("ENRICHR_LLM_RPS", 5),

		EmbedProvider:  Provider(strings.ToLower(getEnv("ENRICHR_EMBED_PROVIDER", string(ProviderOpenAI)))),
		EmbedModel:     getEnv("ENRICHR_EMBED_MODEL", ""),
		EmbedDimension: getEnvInt("ENRICHR_EMBED_DIMENSION", 0),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		VoyageAPIKey:    getEnv("VOYAGE_API_KEY", ""),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		TopK:          getEnvInt("ENRICHR_TOP_K", 10),
		Workers:       getEnvInt("ENRICHR_WORKERS", 4),
		EmptyEvidence: EmptyEvidencePolicy(strings.ToLower(getEnv("ENRICHR_EMPTY_EVIDENCE", string(EmptyEvidenceGenerate)))),

		Cache:     CacheMode(strings.ToLower(getEnv("ENRICHR_CACHE", string(CacheOff)))),
		CacheSize: getEnvInt("ENRICHR_CACHE_SIZE", 1024),
		CacheTTL:  getEnvDuration("ENRICHR_CACHE_TTL", 24*time.Hour),
		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),

		LogFile:  getEnv("ENRICHR_LOG_FILE", "/tmp/enrichr.log"),
		LogLevel: parseLogLevel(getEnv("ENRICHR_LOG_LEVEL", "INFO")),
	}
}

// Validate checks credentials and pipeline settings before any provider is contacted.
// It returns a *models.ConfigError for the first problem found.
func (c Config) Validate() error {
	if c.SerpAPIKey == "" {
		return &models.ConfigError{Field: "SERPAPI_API_KEY", Reason: "search provider API key required"}
	}
	if c.SearchResults <= 0 {
		return &models.ConfigError{Field: "ENRICHR_SEARCH_RESULTS", Reason: "must be positive"}
	}
	if c.TopK <= 0 {
		return &models.ConfigError{Field: "ENRICHR_TOP_K", Reason: "must be positive"}
	}
	if c.Workers <= 0 {
		return &models.ConfigError{Field: "ENRICHR_WORKERS", Reason: "must be positive"}
	}

	switch c.LLMProvider {
	case ProviderOllama, ProviderBedrock:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return &models.ConfigError{Field: "OPENAI_API_KEY", Reason: "required for openai completions"}
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return &models.ConfigError{Field: "ANTHROPIC_API_KEY", Reason: "required for anthropic completions"}
		}
	default:
		return &models.ConfigError{Field: "ENRICHR_LLM_PROVIDER", Reason: "unsupported provider " + string(c.LLMProvider)}
	}

	switch c.EmbedProvider {
	case ProviderOllama, ProviderBedrock:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return &models.ConfigError{Field: "OPENAI_API_KEY", Reason: "required for openai embeddings"}
		}
	case ProviderVoyage:
		if c.VoyageAPIKey == "" {
			return &models.ConfigError{Field: "VOYAGE_API_KEY", Reason: "required for voyage embeddings"}
		}
	default:
		return &models.ConfigError{Field: "ENRICHR_EMBED_PROVIDER", Reason: "unsupported provider " + string(c.EmbedProvider)}
	}

	switch c.EmptyEvidence {
	case EmptyEvidenceGenerate, EmptyEvidenceMarker:
	default:
		return &models.ConfigError{Field: "ENRICHR_EMPTY_EVIDENCE", Reason: "must be generate or marker"}
	}

	switch c.Cache {
	case CacheOff, CacheMemory, CacheRedis:
	default:
		return &models.ConfigError{Field: "ENRICHR_CACHE", Reason: "must be off, memory or redis"}
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid number setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration setting", "key", key, "value", val)
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
