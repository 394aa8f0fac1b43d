package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini is Google Gemini cloud API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderGemini}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004": 768,
		"embedding-001":      768,
	}
}

// StorageBackend selects the document store implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
	StorageMemory   StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// InsertMode selects how a chunk set is written during replacement.
type InsertMode string

// Available insert modes.
const (
	// InsertModeSequential inserts chunks one row at a time with
	// upsert-on-conflict. Slower, never aborts on a duplicate key.
	InsertModeSequential InsertMode = "sequential"

	// InsertModeBatched inserts the whole set in one bulk statement.
	// Any failure rolls back and the set is retried sequentially.
	InsertModeBatched InsertMode = "batched"
)

// IsValid returns true if the insert mode is recognised.
func (m InsertMode) IsValid() bool {
	return m == InsertModeSequential || m == InsertModeBatched
}

// StorageSettings configures the document store.
type StorageSettings struct {
	Backend StorageBackend

	// DataDir holds the SQLite database.
	DataDir string

	// DSN is the Postgres connection string.
	DSN string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama, or an OpenAI-compatible gateway).
	BaseURL string

	// APIKey is the API key (for OpenAI and Gemini).
	APIKey string

	// Dimensions is the vector size of the model.
	Dimensions int

	// Timeout bounds each provider request.
	Timeout time.Duration

	// BatchSize is the largest number of texts sent in one request.
	BatchSize int

	// Concurrency bounds the number of sub-batches in flight.
	Concurrency int

	// RequestsPerSecond limits the request rate. Zero disables limiting.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ChunkingSettings configures the chunker and chunk persistence.
type ChunkingSettings struct {
	MaxChars     int
	OverlapChars int
	InsertMode   InsertMode
}

// RetrievalSettings configures similarity search.
type RetrievalSettings struct {
	TopK          int
	MinSimilarity float64
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration

	// RecentDays is the window of the chat preset.
	RecentDays int
}

// ContextSettings configures context assembly.
type ContextSettings struct {
	MaxChars     int
	ExcerptChars int
	MaxExcerpts  int
}

// Settings holds all application settings.
type Settings struct {
	Storage   StorageSettings
	Embedding EmbeddingSettings
	Chunking  ChunkingSettings
	Retrieval RetrievalSettings
	Context   ContextSettings
}

// Default values.
const (
	DefaultDimensions        = 1536
	DefaultEmbeddingTimeout  = 30 * time.Second
	DefaultBatchSize         = 64
	DefaultConcurrency       = 4
	DefaultChunkMaxChars     = 1200
	DefaultChunkOverlapChars = 120
	DefaultTopK              = 5
	DefaultMinSimilarity     = 0.7
	DefaultEmbedTimeout      = 10 * time.Second
	DefaultSearchTimeout     = 5 * time.Second
	DefaultRecentDays        = 14
	DefaultContextMaxChars   = 6000
	DefaultExcerptChars      = 500
	DefaultMaxExcerpts       = 3
)

// DefaultSettings returns settings with sensible defaults.
// The embedding provider is OpenAI but has no API key until one is configured.
func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{Backend: StorageSQLite},
		Embedding: EmbeddingSettings{
			Provider:    AIProviderOpenAI,
			Model:       "text-embedding-3-small",
			Dimensions:  DefaultDimensions,
			Timeout:     DefaultEmbeddingTimeout,
			BatchSize:   DefaultBatchSize,
			Concurrency: DefaultConcurrency,
		},
		Chunking: ChunkingSettings{
			MaxChars:     DefaultChunkMaxChars,
			OverlapChars: DefaultChunkOverlapChars,
			InsertMode:   InsertModeSequential,
		},
		Retrieval: RetrievalSettings{
			TopK:          DefaultTopK,
			MinSimilarity: DefaultMinSimilarity,
			EmbedTimeout:  DefaultEmbedTimeout,
			SearchTimeout: DefaultSearchTimeout,
			RecentDays:    DefaultRecentDays,
		},
		Context: ContextSettings{
			MaxChars:     DefaultContextMaxChars,
			ExcerptChars: DefaultExcerptChars,
			MaxExcerpts:  DefaultMaxExcerpts,
		},
	}
}

// ApplyDefaults fills zero values from DefaultSettings.
// A model without explicit dimensions takes the known model dimension.
func (s *Settings) ApplyDefaults() {
	d := DefaultSettings()
	if s.Storage.Backend == "" {
		s.Storage.Backend = d.Storage.Backend
	}
	e := &s.Embedding
	if e.Provider == "" {
		e.Provider = d.Embedding.Provider
	}
	if e.Model == "" {
		e.Model = DefaultEmbeddingModels()[e.Provider]
	}
	if e.Dimensions == 0 {
		if dim, ok := EmbeddingDimensions()[e.Model]; ok {
			e.Dimensions = dim
		} else {
			e.Dimensions = d.Embedding.Dimensions
		}
	}
	if e.Timeout == 0 {
		e.Timeout = d.Embedding.Timeout
	}
	if e.BatchSize == 0 {
		e.BatchSize = d.Embedding.BatchSize
	}
	if e.Concurrency == 0 {
		e.Concurrency = d.Embedding.Concurrency
	}
	c := &s.Chunking
	if c.MaxChars == 0 {
		c.MaxChars = d.Chunking.MaxChars
	}
	if c.OverlapChars == 0 {
		c.OverlapChars = d.Chunking.OverlapChars
	}
	if c.InsertMode == "" {
		c.InsertMode = d.Chunking.InsertMode
	}
	r := &s.Retrieval
	if r.TopK == 0 {
		r.TopK = d.Retrieval.TopK
	}
	if r.MinSimilarity == 0 {
		r.MinSimilarity = d.Retrieval.MinSimilarity
	}
	if r.EmbedTimeout == 0 {
		r.EmbedTimeout = d.Retrieval.EmbedTimeout
	}
	if r.SearchTimeout == 0 {
		r.SearchTimeout = d.Retrieval.SearchTimeout
	}
	if r.RecentDays == 0 {
		r.RecentDays = d.Retrieval.RecentDays
	}
	x := &s.Context
	if x.MaxChars == 0 {
		x.MaxChars = d.Context.MaxChars
	}
	if x.ExcerptChars == 0 {
		x.ExcerptChars = d.Context.ExcerptChars
	}
	if x.MaxExcerpts == 0 {
		x.MaxExcerpts = d.Context.MaxExcerpts
	}
}

// Validate rejects unknown enums and inconsistent sizes.
func (s Settings) Validate() error {
	if !s.Storage.Backend.IsValid() {
		return fmt.Errorf("%w: unknown storage backend %q", ErrUnsupportedType, s.Storage.Backend)
	}
	if s.Storage.Backend == StoragePostgres && s.Storage.DSN == "" {
		return fmt.Errorf("%w: postgres backend requires storage.dsn", ErrInvalidInput)
	}
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrUnsupportedType, s.Embedding.Provider)
	}
	if s.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive", ErrInvalidInput)
	}
	if s.Embedding.BatchSize <= 0 || s.Embedding.Concurrency <= 0 {
		return fmt.Errorf("%w: embedding.batch_size and embedding.concurrency must be positive", ErrInvalidInput)
	}
	if s.Chunking.MaxChars <= 0 {
		return fmt.Errorf("%w: chunking.max_chars must be positive", ErrInvalidInput)
	}
	if s.Chunking.OverlapChars < 0 || s.Chunking.OverlapChars > s.Chunking.MaxChars/2 {
		return fmt.Errorf("%w: chunking.overlap_chars must be within [0, %d]", ErrInvalidInput, s.Chunking.MaxChars/2)
	}
	if !s.Chunking.InsertMode.IsValid() {
		return fmt.Errorf("%w: unknown insert mode %q", ErrUnsupportedType, s.Chunking.InsertMode)
	}
	if s.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalidInput)
	}
	if s.Retrieval.MinSimilarity < -1 || s.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("%w: retrieval.min_similarity must be within [-1, 1]", ErrInvalidInput)
	}
	if s.Context.MaxChars < 0 || s.Context.ExcerptChars < 0 || s.Context.MaxExcerpts < 0 {
		return fmt.Errorf("%w: context sizes must not be negative", ErrInvalidInput)
	}
	return nil
}
