// Package postprocessors builds the document processors used at ingestion.
package postprocessors

import (
	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/postprocessors/chunker"
)

// NewChunker builds the chunker from chunking settings.
// Zero values fall back to the chunker defaults.
func NewChunker(cfg domain.ChunkingSettings) driven.PostProcessor {
	var opts []chunker.Option

	if cfg.MaxChars > 0 {
		opts = append(opts, chunker.WithChunkSize(cfg.MaxChars))
	}
	if cfg.OverlapChars > 0 {
		opts = append(opts, chunker.WithOverlap(cfg.OverlapChars))
	}

	return chunker.New(opts...)
}
