package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// Ensure Shared implements the interface.
var _ driven.EmbeddingService = (*Shared)(nil)

// Factory creates the concrete embedding provider.
type Factory func() (driven.EmbeddingService, error)

// SharedConfig controls how Shared drives its provider.
type SharedConfig struct {
	// Timeout bounds each provider request. Zero means no bound.
	Timeout time.Duration

	// BatchSize is the largest number of texts per provider request.
	BatchSize int

	// Concurrency bounds the provider requests in flight for one batch.
	Concurrency int

	// Dimensions is reported until the provider is initialised.
	Dimensions int

	// Model is reported until the provider is initialised.
	Model string
}

// Shared is the process-wide embedding service. The provider is created on
// first use, at most once; concurrent first callers wait for that single
// initialisation and a failed initialisation is returned to every caller.
type Shared struct {
	cfg     SharedConfig
	init    func() (driven.EmbeddingService, error)
	started atomic.Bool
}

// NewShared wraps factory. Nothing is created until the first call.
func NewShared(factory Factory, cfg SharedConfig) *Shared {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = domain.DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = domain.DefaultConcurrency
	}

	s := &Shared{cfg: cfg}
	s.init = sync.OnceValues(func() (driven.EmbeddingService, error) {
		s.started.Store(true)
		svc, err := factory()
		if err != nil {
			return nil, domain.NewFatalError("embedding_init", fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err))
		}
		if svc == nil {
			return nil, domain.NewFatalError("embedding_init", domain.ErrEmbeddingUnavailable)
		}
		logger.Debug("embedding: initialised %s (%d dimensions)", svc.ModelName(), svc.Dimensions())
		return svc, nil
	})
	return s
}

// NewSharedFromSettings builds a Shared for the configured provider.
func NewSharedFromSettings(settings domain.EmbeddingSettings) *Shared {
	return NewShared(func() (driven.EmbeddingService, error) {
		return CreateEmbeddingService(context.Background(), &settings)
	}, SharedConfig{
		Timeout:     settings.Timeout,
		BatchSize:   settings.BatchSize,
		Concurrency: settings.Concurrency,
		Dimensions:  settings.Dimensions,
		Model:       settings.Model,
	})
}

// Provider returns the initialised provider, creating it if needed.
func (s *Shared) Provider() (driven.EmbeddingService, error) {
	return s.init()
}

// Embed generates a vector embedding for the given text.
func (s *Shared) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.NewValidationError("embed", domain.ErrEmptyText)
	}
	svc, err := s.init()
	if err != nil {
		return nil, err
	}

	var vec []float32
	err = s.bounded(ctx, func(ctx context.Context) error {
		var err error
		vec, err = svc.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := domain.CheckDimension(vec, svc.Dimensions()); err != nil {
		return nil, domain.NewFatalError("embed", err)
	}
	return vec, nil
}

// EmbedBatch splits texts into provider-sized batches, embeds them
// concurrently and returns the vectors in input order.
func (s *Shared) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, domain.NewValidationError("embed_batch", fmt.Errorf("text %d: %w", i, domain.ErrEmptyText))
		}
	}
	svc, err := s.init()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))
		g.Go(func() error {
			return s.bounded(gctx, func(ctx context.Context) error {
				vecs, err := svc.EmbedBatch(ctx, texts[start:end])
				if err != nil {
					return err
				}
				if len(vecs) != end-start {
					return domain.NewFatalError("embed_batch",
						fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), end-start))
				}
				copy(out[start:end], vecs)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, vec := range out {
		if err := domain.CheckDimension(vec, svc.Dimensions()); err != nil {
			return nil, domain.NewFatalError("embed_batch", fmt.Errorf("text %d: %w", i, err))
		}
	}
	return out, nil
}

// bounded runs fn under the per-request timeout. Hitting that deadline is
// reported as a transient failure.
func (s *Shared) bounded(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !domain.IsTransient(err) {
		return domain.NewTransientError("embed", fmt.Errorf("timed out after %s: %w", s.cfg.Timeout, err))
	}
	return err
}

// Dimensions returns the provider's vector size, or the configured size
// before initialisation.
func (s *Shared) Dimensions() int {
	if s.started.Load() {
		if svc, err := s.init(); err == nil {
			return svc.Dimensions()
		}
	}
	return s.cfg.Dimensions
}

// ModelName returns the provider's model name.
func (s *Shared) ModelName() string {
	if s.started.Load() {
		if svc, err := s.init(); err == nil {
			return svc.ModelName()
		}
	}
	return s.cfg.Model
}

// Ping initialises the provider and checks it is reachable.
func (s *Shared) Ping(ctx context.Context) error {
	svc, err := s.init()
	if err != nil {
		return err
	}
	return s.bounded(ctx, svc.Ping)
}

// Close closes the provider if it was created.
func (s *Shared) Close() error {
	if !s.started.Load() {
		return nil
	}
	svc, err := s.init()
	if err != nil {
		return nil
	}
	return svc.Close()
}
