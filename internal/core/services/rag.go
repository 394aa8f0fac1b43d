package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/core/ports/driving"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// Ensure RAGService implements the interface.
var _ driving.RetrievalService = (*RAGService)(nil)

// RAGService orchestrates ingestion and retrieval over the document store.
type RAGService struct {
	docs     driven.DocumentStore
	search   *SimilaritySearch
	embedder driven.EmbeddingService
	chunker  driven.PostProcessor
	settings domain.Settings
}

// NewRAGService creates the retrieval service.
// The embedder is optional (can be nil): ingestion then fails and context
// retrieval degrades to user and live data only.
func NewRAGService(
	docs driven.DocumentStore,
	vectors driven.VectorSearcher,
	embedder driven.EmbeddingService,
	chunker driven.PostProcessor,
	settings domain.Settings,
) *RAGService {
	settings.ApplyDefaults()
	return &RAGService{
		docs:     docs,
		search:   NewSimilaritySearch(vectors, settings.Retrieval.SearchTimeout),
		embedder: embedder,
		chunker:  chunker,
		settings: settings,
	}
}

// NewReportID returns a fresh identifier for an ad-hoc report, e.g.
// "custom_3f2a...". Daily reports use domain.DailyDocID instead.
func NewReportID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Ingest chunks, embeds and stores a document, replacing any previous version.
func (s *RAGService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger.Section("Ingest")

	doc := &domain.Document{
		ID:    strings.TrimSpace(req.DocID),
		Type:  req.Type,
		Title: req.Title,
		Body:  req.Body,
	}
	if req.ReportDate != nil {
		d := domain.Date(*req.ReportDate)
		doc.ReportDate = &d
	}
	if doc.Title == "" {
		doc.Title = doc.ID
	}

	chunks, err := s.chunker.Process(ctx, doc)
	if err != nil {
		return nil, domain.NewValidationError("ingest", fmt.Errorf("chunking %s: %w", doc.ID, err))
	}
	logger.Debug("Document %s: %d chunks", doc.ID, len(chunks))

	if len(chunks) > 0 {
		if s.embedder == nil {
			return nil, domain.NewFatalError("ingest", domain.ErrEmbeddingUnavailable)
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", doc.ID, err)
		}
		for i := range chunks {
			chunks[i].Embedding = vecs[i]
		}
	}

	if err := s.docs.ReplaceDocument(ctx, doc, chunks, s.settings.Chunking.InsertMode); err != nil {
		return nil, ingestStoreError(doc.ID, err)
	}

	logger.Info("Ingested %s (%s): %d chunks", doc.ID, doc.Type, len(chunks))
	return &domain.IngestResult{DocID: doc.ID, ChunkCount: len(chunks)}, nil
}

// ingestStoreError classifies a failed replacement. Vectors that do not fit
// the store mean the embedding configuration changed.
func ingestStoreError(docID string, err error) error {
	err = fmt.Errorf("storing %s: %w", docID, err)
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return domain.NewFatalError("ingest", err)
	}
	return storeError("ingest", err)
}

// RetrieveContext embeds the query, searches past reports and assembles
// the context block. Retrieval failures degrade the result.
func (s *RAGService) RetrieveContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger.Section("Retrieve Context")

	profile := req.Profile
	if profile.IsZero() {
		profile = domain.ProfileChat
	}
	budget := s.resolveBudget(req.Budget, profile)
	logger.Debug("Profile: %s, budget: %d chars, %d excerpts x %d chars",
		profile.Name, budget.MaxChars, budget.MaxExcerpts, budget.ExcerptChars)

	result := &domain.ContextResult{Results: []domain.RetrievalResult{}}
	query := strings.TrimSpace(req.Query)

	switch {
	case query == "":
		result.Warnings = append(result.Warnings, "empty query: retrieval skipped")
	case s.embedder == nil:
		result.Degraded = true
		result.Warnings = append(result.Warnings, "retrieval unavailable: "+domain.ErrEmbeddingUnavailable.Error())
	default:
		topK := req.TopK
		if topK == 0 {
			topK = max(s.settings.Retrieval.TopK, budget.MaxExcerpts)
		}
		minSim := s.settings.Retrieval.MinSimilarity
		if req.MinSimilarity != nil {
			minSim = *req.MinSimilarity
		}

		results, err := s.retrieve(ctx, query, req.Filter, topK, minSim)
		if err != nil {
			result.Degraded = true
			result.Warnings = append(result.Warnings, fmt.Sprintf("retrieval failed (%s): %v", kindName(err), err))
			if domain.IsConsistency(err) {
				logger.Error("Store consistency violation during retrieval: %v", err)
			} else {
				logger.Warn("Retrieval degraded: %v", err)
			}
		} else {
			result.Results = results
		}
	}

	result.Block = Assembler{Profile: profile}.Assemble(req.UserData, result.Results, req.LiveData, budget)
	result.Context = result.Block.String()
	logger.Info("Context assembled: %d chars, %d excerpts, degraded=%t",
		result.Block.Len(), result.Block.Excerpts, result.Degraded)

	return result, nil
}

// retrieve embeds query and searches under the configured timeouts.
func (s *RAGService) retrieve(
	ctx context.Context,
	query string,
	filter domain.SearchFilter,
	topK int,
	minSim float64,
) ([]domain.RetrievalResult, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.settings.Retrieval.EmbedTimeout)
	vec, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		if domain.KindOf(err) == 0 && errors.Is(embedCtx.Err(), context.DeadlineExceeded) {
			err = domain.NewTransientError("embed", err)
		}
		return nil, err
	}
	return s.search.Search(ctx, vec, filter, topK, minSim)
}

// resolveBudget fills zero budget fields from the profile, then settings.
func (s *RAGService) resolveBudget(b domain.ContextBudget, profile domain.ContextProfile) domain.ContextBudget {
	if b.MaxChars == 0 {
		b.MaxChars = s.settings.Context.MaxChars
	}
	if b.ExcerptChars == 0 {
		b.ExcerptChars = profile.ExcerptChars
	}
	if b.ExcerptChars == 0 {
		b.ExcerptChars = s.settings.Context.ExcerptChars
	}
	if b.MaxExcerpts == 0 {
		b.MaxExcerpts = profile.MaxExcerpts
	}
	if b.MaxExcerpts == 0 {
		b.MaxExcerpts = s.settings.Context.MaxExcerpts
	}
	return b
}

func kindName(err error) string {
	if k := domain.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}

// Search returns ranked excerpts for a query.
func (s *RAGService) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger.Section("Search")
	if s.embedder == nil {
		return nil, domain.NewFatalError("search", domain.ErrEmbeddingUnavailable)
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.settings.Retrieval.TopK
	}
	minSim := s.settings.Retrieval.MinSimilarity
	if req.MinSimilarity != nil {
		minSim = *req.MinSimilarity
	}
	logger.Debug("Query: %q, top_k: %d, min_similarity: %.2f", req.Query, topK, minSim)

	results, err := s.retrieve(ctx, strings.TrimSpace(req.Query), req.Filter, topK, minSim)
	if err != nil {
		logger.Warn("Search failed: %v", err)
		return nil, err
	}

	logger.Info("Search results: %d", len(results))
	return domain.NewSearchResponse(req.Query, results), nil
}

// GetDocument retrieves a stored document by ID.
func (s *RAGService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("get_document", fmt.Errorf("%w: document id is required", domain.ErrInvalidInput))
	}
	return s.docs.GetDocument(ctx, id)
}

// DeleteDocument removes a document and its chunks.
func (s *RAGService) DeleteDocument(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewValidationError("delete_document", fmt.Errorf("%w: document id is required", domain.ErrInvalidInput))
	}
	if err := s.docs.DeleteDocument(ctx, id); err != nil {
		return storeError("delete_document", err)
	}
	logger.Info("Deleted %s", id)
	return nil
}

// LatestDocument returns the most recently stored document of a type.
func (s *RAGService) LatestDocument(ctx context.Context, docType domain.DocType) (*domain.Document, error) {
	if !docType.IsValid() {
		return nil, domain.NewValidationError("latest_document", fmt.Errorf("%w: unknown document type %d", domain.ErrInvalidInput, int(docType)))
	}
	return s.docs.LatestDocument(ctx, docType)
}

// ListDocuments returns stored documents matching the filter.
func (s *RAGService) ListDocuments(ctx context.Context, filter domain.SearchFilter) ([]domain.Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, domain.NewValidationError("list_documents", err)
	}
	return s.docs.ListDocuments(ctx, filter)
}

// RuleDocument returns the body of the current RULE document, or an empty
// string when none has been ingested.
func (s *RAGService) RuleDocument(ctx context.Context) (string, error) {
	doc, err := s.docs.LatestDocument(ctx, domain.DocTypeRule)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("No RULE document stored")
		return "", nil
	}
	if err != nil {
		return "", storeError("rule_document", err)
	}
	return doc.Body, nil
}

// Verify checks the store invariants. Violations are logged for manual
// remediation and returned as a consistency error along with the report.
func (s *RAGService) Verify(ctx context.Context) (*domain.ConsistencyReport, error) {
	report, err := s.docs.CheckConsistency(ctx)
	if err != nil {
		return nil, storeError("verify", err)
	}
	if !report.OK() {
		logger.Error("Store is inconsistent: %v", report.Err())
		return report, domain.NewConsistencyError("verify", report.Err())
	}
	logger.Debug("Store consistent: %d documents, %d chunks", report.Documents, report.Chunks)
	return report, nil
}

// Settings returns the effective settings.
func (s *RAGService) Settings() domain.Settings {
	return s.settings
}
