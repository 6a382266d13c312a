// Package llm provides LLM and embedding services using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/enrichr/internal/config"
	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	bedrockembed "github.com/tmc/langchaingo/embeddings/bedrock"
	"github.com/tmc/langchaingo/embeddings/voyageai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Default embedding models per provider.
const (
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultVoyageEmbedModel  = "voyage-3"
	DefaultBedrockEmbedModel = "amazon.titan-embed-text-v2:0"
)

// Embedder wraps langchaingo embeddings with dimension validation.
// It satisfies embeddings.Embedder so it can back a vector store directly.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	metrics   *metrics.Collector
}

var _ embeddings.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder based on configuration.
func NewEmbedder(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Embedder, error) {
	var model embeddings.Embedder
	var err error

	modelName := cfg.EmbedModel

	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		if modelName == "" {
			modelName = DefaultOllamaEmbedModel
		}
		llm, ollamaErr := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		if modelName == "" {
			modelName = DefaultOpenAIEmbedModel
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(modelName),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		llm, openaiErr := openai.New(opts...)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	case config.ProviderVoyage:
		if cfg.VoyageAPIKey == "" {
			return nil, fmt.Errorf("Voyage API key required")
		}
		if modelName == "" {
			modelName = DefaultVoyageEmbedModel
		}
		model, err = voyageai.NewVoyageAI(
			voyageai.WithToken(cfg.VoyageAPIKey),
			voyageai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create voyage embedder: %w", err)
		}

	case config.ProviderBedrock:
		if modelName == "" {
			modelName = DefaultBedrockEmbedModel
		}
		client, clientErr := newBedrockClient(ctx, cfg.AWSRegion)
		if clientErr != nil {
			return nil, clientErr
		}
		model, err = bedrockembed.NewBedrock(
			bedrockembed.WithClient(client),
			bedrockembed.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	return NewEmbedderFrom(model, modelName, cfg.EmbedDimension, mc), nil
}

// NewEmbedderFrom wraps an existing langchaingo embedder.
// A dimension of 0 accepts whatever size the model returns.
func NewEmbedderFrom(model embeddings.Embedder, modelName string, dimension int, mc *metrics.Collector) *Embedder {
	return &Embedder{
		model:     model,
		dimension: dimension,
		modelName: modelName,
		metrics:   mc,
	}
}

// EmbedQuery generates an embedding vector for a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments generates embeddings for multiple texts in one request.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	slog.Debug("embedding batch", "model", e.modelName, "count", len(texts))

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "count", len(texts), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", wrapFatalError(err))
	}

	e.metrics.RecordTiming(metrics.OpEmbedding, duration)

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	for i, vec := range vectors {
		if err := e.checkDimension(vec); err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
	}

	slog.Debug("embedded batch", "model", e.modelName, "count", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}

func (e *Embedder) checkDimension(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", e.dimension, len(vec))
	}
	return nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the configured dimension, 0 if unchecked.
func (e *Embedder) Dimension() int {
	return e.dimension
}
