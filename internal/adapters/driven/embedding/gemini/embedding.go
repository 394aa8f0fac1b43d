// Package gemini provides an embedding service adapter using the Google
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/insightpocket/insight-rag/internal/adapters/driven/embedding"
	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "text-embedding-004"
	DefaultDimensions = 768
	DefaultTimeout    = 30 * time.Second
)

// Config holds configuration for the Gemini embedding service.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the embedding model to use (default: text-embedding-004).
	Model string

	// Dimensions is the embedding vector size.
	Dimensions int

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// modelClient is the part of the Gemini client the service uses.
type modelClient interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
	info(ctx context.Context) error
	close() error
}

// EmbeddingService generates embeddings using the Gemini API.
type EmbeddingService struct {
	client     modelClient
	model      string
	dimensions int
	timeout    time.Duration
}

// NewEmbeddingService creates a Gemini client for the configured model.
func NewEmbeddingService(ctx context.Context, cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required: %w", domain.ErrInvalidInput)
	}
	cfg = withDefaults(cfg)

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return newService(&genaiClient{client: client, model: client.EmbeddingModel(cfg.Model)}, cfg), nil
}

func withDefaults(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}

func newService(client modelClient, cfg Config) *EmbeddingService {
	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vecs, err := s.client.embed(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	if len(vecs) != len(texts) {
		return nil, domain.NewFatalError("gemini", fmt.Errorf("got %d embeddings for %d inputs", len(vecs), len(texts)))
	}
	return vecs, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping fetches the model metadata, which checks the key without inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.info(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases the underlying client.
func (s *EmbeddingService) Close() error {
	return s.client.close()
}

// classify maps Gemini REST and gRPC errors onto the domain error kinds.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		reason := ""
		if len(apiErr.Errors) > 0 {
			reason = apiErr.Errors[0].Reason
		}
		return embedding.StatusError("gemini", apiErr.Code, reason, apiErr.Message)
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.NewFatalError("gemini", fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err))
	case codes.ResourceExhausted:
		return domain.NewTransientError("gemini", fmt.Errorf("%w: %w", domain.ErrRateLimited, err))
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return domain.NewTransientError("gemini", err)
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.Unimplemented:
		return domain.NewFatalError("gemini", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError("gemini", err)
	}
	return embedding.TransportError("gemini", err)
}

// genaiClient adapts the generative-ai-go client.
type genaiClient struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func (c *genaiClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 {
		resp, err := c.model.EmbedContent(ctx, genai.Text(texts[0]))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, fmt.Errorf("empty embedding response")
		}
		return [][]float32{resp.Embedding.Values}, nil
	}

	batch := c.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	resp, err := c.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e != nil {
			vecs[i] = e.Values
		}
	}
	return vecs, nil
}

func (c *genaiClient) info(ctx context.Context) error {
	_, err := c.model.Info(ctx)
	return err
}

func (c *genaiClient) close() error {
	return c.client.Close()
}
