package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.SettingsStore = (*ConfigStore)(nil)

// DefaultDirName is the configuration directory under the user's home.
const DefaultDirName = ".insight-rag"

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStorageBackend = "storage.backend"
	keyStorageDataDir = "storage.data_dir"
	keyStorageDSN     = "storage.dsn"

	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyEmbedDimensions  = "embedding.dimensions"
	keyEmbedTimeout     = "embedding.timeout"
	keyEmbedBatchSize   = "embedding.batch_size"
	keyEmbedConcurrency = "embedding.concurrency"
	keyEmbedRPS         = "embedding.requests_per_second"

	keyChunkMaxChars   = "chunking.max_chars"
	keyChunkOverlap    = "chunking.overlap_chars"
	keyChunkInsertMode = "chunking.insert_mode"

	keyTopK          = "retrieval.top_k"
	keyMinSimilarity = "retrieval.min_similarity"
	keyEmbedDeadline = "retrieval.embed_timeout"
	keySearchTimeout = "retrieval.search_timeout"
	keyRecentDays    = "retrieval.recent_days"

	keyContextMaxChars     = "context.max_chars"
	keyContextExcerptChars = "context.excerpt_chars"
	keyContextMaxExcerpts  = "context.max_excerpts"
)

// Environment variables consulted when the file leaves a secret empty.
const (
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvGeminiKey   = "GEMINI_API_KEY"
	EnvDatabaseURL = "DATABASE_URL"
)

// ConfigStore is a file-based implementation of driven.SettingsStore.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
	getenv   func(string) string
}

// DefaultPath returns ~/.insight-rag/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDirName, "config.toml"), nil
}

// NewConfigStore creates a config store for the file at path.
// If path is empty, defaults to ~/.insight-rag/config.toml.
// A missing file is not an error; the defaults apply until one is saved.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: path,
		data:     make(map[string]any),
		getenv:   os.Getenv,
	}

	if err := s.read(); err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// isYAML reports whether the file is decoded as YAML.
func (s *ConfigStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.filePath))
	return ext == ".yaml" || ext == ".yml"
}

// read loads the file into the flattened key map.
func (s *ConfigStore) read() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - start from defaults
			s.data = make(map[string]any)
			return nil
		}
		return err
	}

	var loaded map[string]any
	if s.isYAML() {
		err = yaml.Unmarshal(data, &loaded)
	} else {
		err = toml.Unmarshal(data, &loaded)
	}
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, s.filePath, err)
	}

	if loaded == nil {
		loaded = make(map[string]any)
	}

	s.data = flattenMap(loaded, "")
	return nil
}

// Load reads the settings, fills defaults and environment secrets, and
// validates the result.
func (s *ConfigStore) Load() (*domain.Settings, error) {
	if err := s.read(); err != nil {
		return nil, err
	}

	settings, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.applyEnv(settings)
	settings.ApplyDefaults()

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.filePath, err)
	}
	return settings, nil
}

// decode maps the flattened keys onto settings. Absent keys stay zero.
func (s *ConfigStore) decode() (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := decoder{data: s.data}
	settings := &domain.Settings{
		Storage: domain.StorageSettings{
			Backend: domain.StorageBackend(d.str(keyStorageBackend)),
			DataDir: d.str(keyStorageDataDir),
			DSN:     d.str(keyStorageDSN),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          domain.AIProvider(d.str(keyEmbedProvider)),
			Model:             d.str(keyEmbedModel),
			BaseURL:           d.str(keyEmbedBaseURL),
			APIKey:            d.str(keyEmbedAPIKey),
			Dimensions:        d.integer(keyEmbedDimensions),
			Timeout:           d.duration(keyEmbedTimeout),
			BatchSize:         d.integer(keyEmbedBatchSize),
			Concurrency:       d.integer(keyEmbedConcurrency),
			RequestsPerSecond: d.number(keyEmbedRPS),
		},
		Chunking: domain.ChunkingSettings{
			MaxChars:     d.integer(keyChunkMaxChars),
			OverlapChars: d.integer(keyChunkOverlap),
			InsertMode:   domain.InsertMode(d.str(keyChunkInsertMode)),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:          d.integer(keyTopK),
			MinSimilarity: d.number(keyMinSimilarity),
			EmbedTimeout:  d.duration(keyEmbedDeadline),
			SearchTimeout: d.duration(keySearchTimeout),
			RecentDays:    d.integer(keyRecentDays),
		},
		Context: domain.ContextSettings{
			MaxChars:     d.integer(keyContextMaxChars),
			ExcerptChars: d.integer(keyContextExcerptChars),
			MaxExcerpts:  d.integer(keyContextMaxExcerpts),
		},
	}
	if err := d.err(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.filePath, err)
	}
	return settings, nil
}

// applyEnv fills secrets the file leaves empty.
func (s *ConfigStore) applyEnv(settings *domain.Settings) {
	e := &settings.Embedding
	if e.APIKey == "" {
		switch e.Provider {
		case domain.AIProviderOpenAI, "":
			e.APIKey = s.getenv(EnvOpenAIKey)
		case domain.AIProviderGemini:
			e.APIKey = s.getenv(EnvGeminiKey)
		}
	}
	if settings.Storage.DSN == "" {
		settings.Storage.DSN = s.getenv(EnvDatabaseURL)
	}
}

// Save persists the settings. An empty API key or DSN is not written, so
// secrets can stay in the environment.
func (s *ConfigStore) Save(settings *domain.Settings) error {
	if settings == nil {
		return fmt.Errorf("%w: settings are nil", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = encode(settings)
	return s.save()
}

// Get retrieves a raw configuration value by dot-notation key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// Set stores a raw configuration value and persists immediately.
// The value is checked by decoding the resulting settings.
func (s *ConfigStore) Set(key, value string) error {
	if _, known := knownKeys[key]; !known {
		return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidInput, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]any, len(s.data)+1)
	for k, v := range s.data {
		next[k] = v
	}
	next[key] = parseScalar(value)

	d := decoder{data: next}
	d.check(key)
	if err := d.err(); err != nil {
		return err
	}

	s.data = next
	return s.save()
}

// save writes configuration to the file (caller must hold lock).
func (s *ConfigStore) save() error {
	nested := unflattenMap(s.data)

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(nested)
	} else {
		data, err = toml.Marshal(nested)
	}
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// encode converts settings to flattened keys. Durations are written as
// strings such as "10s".
func encode(settings *domain.Settings) map[string]any {
	data := map[string]any{
		keyStorageBackend:      string(settings.Storage.Backend),
		keyEmbedProvider:       string(settings.Embedding.Provider),
		keyEmbedModel:          settings.Embedding.Model,
		keyEmbedDimensions:     int64(settings.Embedding.Dimensions),
		keyEmbedTimeout:        settings.Embedding.Timeout.String(),
		keyEmbedBatchSize:      int64(settings.Embedding.BatchSize),
		keyEmbedConcurrency:    int64(settings.Embedding.Concurrency),
		keyEmbedRPS:            settings.Embedding.RequestsPerSecond,
		keyChunkMaxChars:       int64(settings.Chunking.MaxChars),
		keyChunkOverlap:        int64(settings.Chunking.OverlapChars),
		keyChunkInsertMode:     string(settings.Chunking.InsertMode),
		keyTopK:                int64(settings.Retrieval.TopK),
		keyMinSimilarity:       settings.Retrieval.MinSimilarity,
		keyEmbedDeadline:       settings.Retrieval.EmbedTimeout.String(),
		keySearchTimeout:       settings.Retrieval.SearchTimeout.String(),
		keyRecentDays:          int64(settings.Retrieval.RecentDays),
		keyContextMaxChars:     int64(settings.Context.MaxChars),
		keyContextExcerptChars: int64(settings.Context.ExcerptChars),
		keyContextMaxExcerpts:  int64(settings.Context.MaxExcerpts),
	}
	optional := map[string]string{
		keyStorageDataDir: settings.Storage.DataDir,
		keyStorageDSN:     settings.Storage.DSN,
		keyEmbedBaseURL:   settings.Embedding.BaseURL,
		keyEmbedAPIKey:    settings.Embedding.APIKey,
	}
	for k, v := range optional {
		if v != "" {
			data[k] = v
		}
	}
	return data
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// unflattenMap is the inverse of flattenMap.
func unflattenMap(m map[string]any) map[string]any {
	result := make(map[string]any)
	for key, value := range m {
		parts := strings.Split(key, ".")
		node := result
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return result
}

// parseScalar interprets a command-line value as an integer, float or
// boolean when it parses as one, and as a string otherwise.
func parseScalar(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// knownKeys lists every key Set accepts, with its value kind.
var knownKeys = map[string]valueKind{
	keyStorageBackend: kindString, keyStorageDataDir: kindString, keyStorageDSN: kindString,
	keyEmbedProvider: kindString, keyEmbedModel: kindString, keyEmbedBaseURL: kindString,
	keyEmbedAPIKey: kindString, keyEmbedDimensions: kindInt, keyEmbedTimeout: kindDuration,
	keyEmbedBatchSize: kindInt, keyEmbedConcurrency: kindInt, keyEmbedRPS: kindFloat,
	keyChunkMaxChars: kindInt, keyChunkOverlap: kindInt, keyChunkInsertMode: kindString,
	keyTopK: kindInt, keyMinSimilarity: kindFloat, keyEmbedDeadline: kindDuration,
	keySearchTimeout: kindDuration, keyRecentDays: kindInt,
	keyContextMaxChars: kindInt, keyContextExcerptChars: kindInt, keyContextMaxExcerpts: kindInt,
}

// Keys returns every supported configuration key.
func Keys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	return keys
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDuration
)

// decoder reads typed values from flattened keys, collecting the
// first type error.
type decoder struct {
	data  map[string]any
	first error
}

func (d *decoder) fail(key string, val any, want string) {
	if d.first == nil {
		d.first = fmt.Errorf("%w: %s: expected %s, got %T", domain.ErrInvalidInput, key, want, val)
	}
}

func (d *decoder) err() error { return d.first }

// check decodes key according to its kind.
func (d *decoder) check(key string) {
	switch knownKeys[key] {
	case kindString:
		d.str(key)
	case kindInt:
		d.integer(key)
	case kindFloat:
		d.number(key)
	case kindDuration:
		d.duration(key)
	}
}

func (d *decoder) str(key string) string {
	val, ok := d.data[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case int64, int, float64, bool:
		return fmt.Sprint(v)
	default:
		d.fail(key, val, "string")
		return ""
	}
}

func (d *decoder) integer(key string) int {
	val, ok := d.data[key]
	if !ok {
		return 0
	}
	// TOML integers are parsed as int64, YAML integers as int
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		d.fail(key, val, "integer")
		return 0
	}
}

func (d *decoder) number(key string) float64 {
	val, ok := d.data[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		d.fail(key, val, "number")
		return 0
	}
}

// duration accepts a Go duration string or an integer number of seconds.
func (d *decoder) duration(key string) time.Duration {
	val, ok := d.data[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			d.fail(key, val, "duration such as \"10s\"")
			return 0
		}
		return dur
	case int64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	default:
		d.fail(key, val, "duration")
		return 0
	}
}
