// Command insight-rag stores business reports and assembles grounded
// context blocks from the most similar past reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/insightpocket/insight-rag/internal/adapters/driven/ai"
	config "github.com/insightpocket/insight-rag/internal/adapters/driven/config/file"
	"github.com/insightpocket/insight-rag/internal/adapters/driven/storage"
	"github.com/insightpocket/insight-rag/internal/adapters/driving/cli"
	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/core/services"
	"github.com/insightpocket/insight-rag/internal/logger"
	"github.com/insightpocket/insight-rag/internal/postprocessors"
)

func main() {
	// A missing .env is normal; keys then come from the shell or the config file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := cli.Dependencies{
		OpenConfig:   openConfig,
		OpenServices: openServices,
		NewReportID:  services.NewReportID,
	}

	if err := cli.Execute(ctx, deps); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func openConfig(path string) (cli.ConfigStore, error) {
	store, err := config.NewConfigStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openServices wires storage, embedding and chunking into the retrieval service.
func openServices(ctx context.Context, settings *domain.Settings) (*cli.Services, error) {
	backend, err := storage.Open(ctx, settings.Storage, settings.Embedding.Dimensions)
	if err != nil {
		return nil, err
	}

	var embedder driven.EmbeddingService
	if settings.Embedding.IsConfigured() {
		embedder = ai.NewSharedFromSettings(settings.Embedding)
	} else {
		logger.Warn("embedding provider %s is not configured; ingest and search are unavailable", settings.Embedding.Provider)
	}

	chunker := postprocessors.NewChunker(settings.Chunking)
	rag := services.NewRAGService(backend.Documents, backend.Vectors, embedder, chunker, *settings)

	return &cli.Services{
		Retrieval: rag,
		Embedder:  embedder,
		Location:  backend.Location,
		Close: func() error {
			var errs []error
			if embedder != nil {
				errs = append(errs, embedder.Close())
			}
			errs = append(errs, backend.Close())
			return errors.Join(errs...)
		},
	}, nil
}
