// Package storage selects and opens the configured document store backend.
package storage

import (
	"context"
	"fmt"

	"github.com/insightpocket/insight-rag/internal/adapters/driven/storage/memory"
	"github.com/insightpocket/insight-rag/internal/adapters/driven/storage/postgres"
	"github.com/insightpocket/insight-rag/internal/adapters/driven/storage/sqlite"
	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// Backend bundles the ports served by one storage backend.
type Backend struct {
	Documents driven.DocumentStore
	Vectors   driven.VectorSearcher

	// Location describes where data lives, for diagnostics.
	Location string

	close func() error
}

// Close releases the backend's resources.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open creates the backend named in settings. dimensions is the embedding
// width, used by backends with a typed vector column.
func Open(ctx context.Context, settings domain.StorageSettings, dimensions int) (*Backend, error) {
	switch settings.Backend {
	case domain.StorageSQLite, "":
		store, err := sqlite.NewStore(settings.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Debug("storage: sqlite at %s", store.Path())
		return &Backend{
			Documents: store.DocumentStore(),
			Vectors:   store.VectorSearcher(),
			Location:  store.Path(),
			close:     store.Close,
		}, nil

	case domain.StoragePostgres:
		store, err := postgres.NewStore(ctx, settings.DSN, dimensions)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.Debug("storage: postgres, vector(%d)", dimensions)
		return &Backend{
			Documents: store.DocumentStore(),
			Vectors:   store.VectorSearcher(),
			Location:  "postgres",
			close:     store.Close,
		}, nil

	case domain.StorageMemory:
		store := memory.NewDocumentStore()
		logger.Debug("storage: in-memory")
		return &Backend{
			Documents: store,
			Vectors:   store,
			Location:  "memory",
		}, nil

	default:
		return nil, fmt.Errorf("storage backend %q: %w", settings.Backend, domain.ErrUnsupportedType)
	}
}
