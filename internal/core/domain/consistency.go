package domain

import (
	"fmt"
	"strings"
)

// OrdinalGap describes a document whose chunk positions are not 0..n-1.
type OrdinalGap struct {
	DocumentID string
	Positions  []int
}

// ConsistencyReport lists store invariant violations found by a check.
type ConsistencyReport struct {
	// OrphanChunks are chunk ids whose document does not exist.
	OrphanChunks []string

	// OrdinalGaps are documents with non-contiguous chunk positions.
	OrdinalGaps []OrdinalGap

	// Documents and Chunks are the totals seen by the check.
	Documents int
	Chunks    int
}

// OK returns true if no violation was found.
func (r *ConsistencyReport) OK() bool {
	return len(r.OrphanChunks) == 0 && len(r.OrdinalGaps) == 0
}

// Err returns ErrInconsistentStore describing the violations, or nil.
func (r *ConsistencyReport) Err() error {
	if r.OK() {
		return nil
	}
	var parts []string
	if n := len(r.OrphanChunks); n > 0 {
		parts = append(parts, fmt.Sprintf("%d orphaned chunks", n))
	}
	for _, g := range r.OrdinalGaps {
		parts = append(parts, fmt.Sprintf("document %s has positions %v", g.DocumentID, g.Positions))
	}
	return fmt.Errorf("%w: %s", ErrInconsistentStore, strings.Join(parts, "; "))
}

// ContiguousFromZero reports whether sorted positions are exactly 0..n-1.
func ContiguousFromZero(sorted []int) bool {
	for i, p := range sorted {
		if p != i {
			return false
		}
	}
	return true
}

// ValidateChunkSet checks a replacement chunk set for docID before it is
// written: every chunk belongs to the document, positions run 0..n-1 in
// order, ids are unique and all embeddings share one non-zero dimension.
// It returns that dimension, or zero for an empty set.
func ValidateChunkSet(docID string, chunks []Chunk) (int, error) {
	dim := 0
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		if c.DocumentID != docID {
			return 0, fmt.Errorf("%w: chunk %s belongs to %q, not %q", ErrInvalidInput, c.ID, c.DocumentID, docID)
		}
		if c.Position != i {
			return 0, fmt.Errorf("%w: chunk at index %d has position %d", ErrInvalidInput, i, c.Position)
		}
		if _, dup := seen[c.ID]; dup || c.ID == "" {
			return 0, fmt.Errorf("%w: duplicate or empty chunk id %q", ErrInvalidInput, c.ID)
		}
		seen[c.ID] = struct{}{}
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("%w: chunk %d has no embedding", ErrInvalidInput, i)
		}
		if i == 0 {
			dim = len(c.Embedding)
		} else if err := CheckDimension(c.Embedding, dim); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return dim, nil
}
