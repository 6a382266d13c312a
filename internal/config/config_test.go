package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		SerpAPIKey:    "serp-key",
		SearchResults: 3,
		LLMProvider:   ProviderOpenAI,
		EmbedProvider: ProviderOpenAI,
		OpenAIAPIKey:  "sk-test",
		TopK:          10,
		Workers:       4,
		EmptyEvidence: EmptyEvidenceGenerate,
		Cache:         CacheOff,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENRICHR_WORKERS", "")
	t.Setenv("ENRICHR_TOP_K", "")
	t.Setenv("ENRICHR_LLM_PROVIDER", "")

	cfg := Load()
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 3, cfg.SearchResults)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, CacheOff, cfg.Cache)
	assert.Equal(t, EmptyEvidenceGenerate, cfg.EmptyEvidence)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENRICHR_WORKERS", "8")
	t.Setenv("ENRICHR_LLM_PROVIDER", "Ollama")
	t.Setenv("ENRICHR_CACHE", "redis")
	t.Setenv("ENRICHR_CACHE_TTL", "90m")
	t.Setenv("ENRICHR_SEARCH_RPS", "2.5")
	t.Setenv("ENRICHR_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, CacheRedis, cfg.Cache)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.InDelta(t, 2.5, cfg.SearchRPS, 0.0001)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("ENRICHR_WORKERS", "many")
	cfg := Load()
	assert.Equal(t, 4, cfg.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing serpapi key", func(c *Config) { c.SerpAPIKey = "" }, "SERPAPI_API_KEY"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "ENRICHR_WORKERS"},
		{"zero top k", func(c *Config) { c.TopK = 0 }, "ENRICHR_TOP_K"},
		{"zero results", func(c *Config) { c.SearchResults = 0 }, "ENRICHR_SEARCH_RESULTS"},
		{"openai without key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"anthropic without key", func(c *Config) { c.LLMProvider = ProviderAnthropic }, "ANTHROPIC_API_KEY"},
		{"voyage without key", func(c *Config) { c.EmbedProvider = ProviderVoyage }, "VOYAGE_API_KEY"},
		{"unknown llm provider", func(c *Config) { c.LLMProvider = "gemini" }, "ENRICHR_LLM_PROVIDER"},
		{"anthropic cannot embed", func(c *Config) { c.EmbedProvider = ProviderAnthropic }, "ENRICHR_EMBED_PROVIDER"},
		{"ollama needs no key", func(c *Config) {
			c.OpenAIAPIKey = ""
			c.LLMProvider = ProviderOllama
			c.EmbedProvider = ProviderOllama
		}, ""},
		{"bad empty evidence policy", func(c *Config) { c.EmptyEvidence = "skip" }, "ENRICHR_EMPTY_EVIDENCE"},
		{"bad cache mode", func(c *Config) { c.Cache = "disk" }, "ENRICHR_CACHE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrConfiguration))
			var cfgErr *models.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestParseJob(t *testing.T) {
	data := []byte(`
input: companies.csv
column: Company
template: "What country is {object} headquartered in?"
output: out.csv
workers: 8
top_k: 5
`)
	job, err := ParseJob(data)
	require.NoError(t, err)
	assert.Equal(t, "companies.csv", job.Input)
	assert.Equal(t, "Company", job.Column)
	assert.Equal(t, "What country is {object} headquartered in?", job.Template)

	cfg := validConfig()
	job.Apply(&cfg)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 3, cfg.SearchResults, "unset job fields keep config values")
}

func TestParseJobRejectsUnknownKeys(t *testing.T) {
	_, err := ParseJob([]byte("input: a.csv\ncolumns: Company\n"))
	assert.Error(t, err)
}

func TestParseJobEmpty(t *testing.T) {
	_, err := ParseJob(nil)
	assert.Error(t, err)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("entity answered", "entity", "Acme Corp")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "entity=\"Acme Corp\"")
	assert.True(t, strings.HasPrefix(file.String(), "{"), "file output should be JSON")
	assert.Contains(t, file.String(), `"entity":"Acme Corp"`)
}

func TestSetupLoggerQuietWritesFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enrichr.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo, true)

	logger.Warn("retrieval failed", "entity", "Globex")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entity":"Globex"`)
}
