package cli

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
	"github.com/insightpocket/insight-rag/internal/core/ports/driving"
)

var _ driving.RetrievalService = (*mockRetrievalService)(nil)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	mu sync.Mutex

	searchResp    *domain.SearchResponse
	contextResult *domain.ContextResult
	document      *domain.Document
	documents     []domain.Document
	rule          string
	report        *domain.ConsistencyReport
	verifyErr     error
	err           error

	gotSearch   domain.SearchRequest
	gotContext  domain.ContextRequest
	gotIngest   []domain.IngestRequest
	gotFilter   domain.SearchFilter
	gotDocID    string
	gotDocType  domain.DocType
	deletedDocs []string
}

func (m *mockRetrievalService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.gotIngest = append(m.gotIngest, req)
	return &domain.IngestResult{DocID: req.DocID, ChunkCount: 2}, nil
}

func (m *mockRetrievalService) RetrieveContext(_ context.Context, req domain.ContextRequest) (*domain.ContextResult, error) {
	m.gotContext = req
	if m.err != nil {
		return nil, m.err
	}
	if m.contextResult != nil {
		return m.contextResult, nil
	}
	return &domain.ContextResult{}, nil
}

func (m *mockRetrievalService) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	m.gotSearch = req
	if m.err != nil {
		return nil, m.err
	}
	if m.searchResp != nil {
		return m.searchResp, nil
	}
	return domain.NewSearchResponse(req.Query, nil), nil
}

func (m *mockRetrievalService) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	m.gotDocID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.document, nil
}

func (m *mockRetrievalService) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deletedDocs = append(m.deletedDocs, id)
	return nil
}

func (m *mockRetrievalService) LatestDocument(_ context.Context, t domain.DocType) (*domain.Document, error) {
	m.gotDocType = t
	if m.err != nil {
		return nil, m.err
	}
	return m.document, nil
}

func (m *mockRetrievalService) ListDocuments(_ context.Context, filter domain.SearchFilter) ([]domain.Document, error) {
	m.gotFilter = filter
	return m.documents, m.err
}

func (m *mockRetrievalService) RuleDocument(_ context.Context) (string, error) {
	return m.rule, m.err
}

func (m *mockRetrievalService) Verify(_ context.Context) (*domain.ConsistencyReport, error) {
	if m.report == nil {
		return &domain.ConsistencyReport{}, m.verifyErr
	}
	return m.report, m.verifyErr
}

func (m *mockRetrievalService) ingested() []domain.IngestRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.IngestRequest(nil), m.gotIngest...)
}

// mockEmbedder is a minimal driven.EmbeddingService for doctor.
type mockEmbedder struct {
	pingErr error
}

var _ driven.EmbeddingService = (*mockEmbedder)(nil)

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return 3 }
func (m *mockEmbedder) ModelName() string { return "mock-embed" }
func (m *mockEmbedder) Ping(context.Context) error { return m.pingErr }
func (m *mockEmbedder) Close() error { return nil }

// mockConfigStore keeps flattened values in memory.
type mockConfigStore struct {
	path     string
	values   map[string]any
	settings *domain.Settings
	loadErr  error
	saved    *domain.Settings
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{path: "/tmp/insight-rag-test/config.toml", values: map[string]any{}}
}

func (m *mockConfigStore) Load() (*domain.Settings, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.settings != nil {
		return m.settings, nil
	}
	s := domain.DefaultSettings()
	return &s, nil
}

func (m *mockConfigStore) Save(s *domain.Settings) error {
	m.saved = s
	return nil
}

func (m *mockConfigStore) Path() string { return m.path }

func (m *mockConfigStore) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mockConfigStore) Set(key, value string) error {
	if key == "unknown.key" {
		return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidInput, key)
	}
	m.values[key] = value
	return nil
}

// setupTestServices installs svc as the retrieval service and returns a
// function restoring the package state and flag values.
func setupTestServices(svc driving.RetrievalService) func() {
	oldRetrieval := retrievalService
	oldEmbedder := embeddingService
	oldConfig := configStore
	oldSettings := loadedSettings
	oldDeps := deps
	oldNow := now

	retrievalService = svc
	now = func() time.Time { return time.Date(2025, 1, 20, 9, 30, 0, 0, time.UTC) }

	return func() {
		retrievalService = oldRetrieval
		embeddingService = oldEmbedder
		configStore = oldConfig
		loadedSettings = oldSettings
		deps = oldDeps
		now = oldNow
		storeLocation = ""
		resetFlags()
	}
}

// resetFlags restores every command flag variable to its default.
func resetFlags() {
	configPath = ""
	verbose = false

	searchTypes, searchFrom, searchTo = nil, "", ""
	searchLimit = 0
	searchMinSimilarity = -2
	searchJSON = false

	contextCards, contextLive = nil, nil
	contextBudget = 0
	contextProfile = domain.ProfileChat.Name
	contextTypes, contextFrom, contextTo = nil, "", ""
	contextLimit = 0
	contextJSON = false

	ingestID, ingestType, ingestTitle, ingestDate = "", "", "", ""

	docBodyOnly = false
	docListTypes, docListFrom, docListTo = nil, "", ""
	docListJSON = false

	watchScan, watchDelete = true, false
	configInitForce = false
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureOutput runs fn with the root command writing to a buffer.
func captureOutput(fn func()) string {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	fn()
	return buf.String()
}

// runRoot executes the root command with args and returns its output.
func runRoot(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
