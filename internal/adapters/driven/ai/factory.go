// Package ai creates embedding service adapters from settings and shares one
// provider instance across the process.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/insightpocket/insight-rag/internal/adapters/driven/embedding/gemini"
	ollamaembed "github.com/insightpocket/insight-rag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/insightpocket/insight-rag/internal/adapters/driven/embedding/openai"
	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'insight-rag config show' to check settings",
			domain.ErrEmbeddingUnavailable, err)
	}

	// Validate connectivity.
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}

	return svc, nil
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
func CreateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, fmt.Errorf("no embedding settings: %w", domain.ErrInvalidInput)
	}
	if !settings.Provider.IsValid() {
		return nil, fmt.Errorf("embedding provider %q: %w", settings.Provider, domain.ErrUnsupportedType)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%s requires an API key: %w", settings.Provider, domain.ErrInvalidInput)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	case domain.AIProviderGemini:
		return createGeminiEmbedding(ctx, settings)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// dimensionsFor returns the configured dimension, falling back to the
// known dimension of the model.
func dimensionsFor(settings *domain.EmbeddingSettings) int {
	if settings.Dimensions > 0 {
		return settings.Dimensions
	}
	return domain.EmbeddingDimensions()[settings.Model]
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.Timeout,
		Dimensions: dimensionsFor(settings),
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Timeout:           settings.Timeout,
		Dimensions:        dimensionsFor(settings),
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

// createGeminiEmbedding creates a Gemini embedding service.
func createGeminiEmbedding(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return gemini.NewEmbeddingService(ctx, gemini.Config{
		APIKey:     settings.APIKey,
		Model:      settings.Model,
		Dimensions: dimensionsFor(settings),
		Timeout:    settings.Timeout,
	})
}
