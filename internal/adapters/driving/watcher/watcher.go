// Package watcher ingests Markdown reports dropped into a directory.
//
// The file stem is the document id. Stems of the form daily_YYYY-MM-DD
// become DAILY reports for that date, stems starting with rule_ become
// the RULE document and everything else is stored as a CUSTOM report.
// Changes are applied one at a time through the retrieval service.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driving"
	"github.com/insightpocket/insight-rag/internal/logger"
)

// ErrAlreadyWatching is returned when Watch is called twice.
var ErrAlreadyWatching = errors.New("watcher already running")

// ChangeType describes what happened to a report file.
type ChangeType int

const (
	// ChangeUpserted means the file was created or written.
	ChangeUpserted ChangeType = iota
	// ChangeDeleted means the file was removed or renamed away.
	ChangeDeleted
)

func (t ChangeType) String() string {
	if t == ChangeDeleted {
		return "deleted"
	}
	return "upserted"
}

// Change is a single report file event ready to be applied.
type Change struct {
	Type    ChangeType
	Path    string
	Request domain.IngestRequest
}

// DocID returns the document id the change applies to.
func (c Change) DocID() string {
	if c.Request.DocID != "" {
		return c.Request.DocID
	}
	return InferRequest(c.Path, "").DocID
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDeleteOnRemove deletes the stored document when its file is removed.
func WithDeleteOnRemove(enabled bool) Option {
	return func(w *Watcher) {
		w.deleteOnRemove = enabled
	}
}

// WithReporter registers a callback invoked after each applied change.
func WithReporter(fn func(Change, error)) Option {
	return func(w *Watcher) {
		w.report = fn
	}
}

// Watcher applies report file changes in a directory to the store.
type Watcher struct {
	dir            string
	svc            driving.RetrievalService
	deleteOnRemove bool
	report         func(Change, error)

	mu  sync.Mutex
	fsw *fsnotify.Watcher
}

// New creates a watcher for dir.
func New(dir string, svc driving.RetrievalService, opts ...Option) *Watcher {
	w := &Watcher{
		dir: dir,
		svc: svc,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Validate checks that the directory exists and the service is set.
func (w *Watcher) Validate() error {
	if w.svc == nil {
		return domain.NewValidationError("watch", fmt.Errorf("%w: retrieval service is required", domain.ErrInvalidInput))
	}
	info, err := os.Stat(w.dir)
	if err != nil {
		return domain.NewValidationError("watch", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	if !info.IsDir() {
		return domain.NewValidationError("watch", fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, w.dir))
	}
	return nil
}

// Scan ingests every report already present in the directory, in name order.
// It returns the number of reports ingested successfully.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", w.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	logger.Section("Initial Scan")
	ingested := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return ingested, err
		}
		if entry.IsDir() || isHidden(entry.Name()) || !isReport(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		change, err := readChange(path)
		if err != nil {
			logger.Warn("skipping %s: %v", path, err)
			continue
		}
		if err := w.Apply(ctx, *change); err != nil {
			continue
		}
		ingested++
	}
	logger.Info("Initial scan ingested %d report(s) from %s", ingested, w.dir)
	return ingested, nil
}

// Watch starts watching the directory and returns a channel of changes.
// The channel is closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil, ErrAlreadyWatching
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.fsw = fsw

	changes := make(chan Change)
	go w.loop(ctx, fsw, changes)

	logger.Debug("Watching %s", w.dir)
	return changes, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			change := w.handleFsEvent(event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error on %s: %v", w.dir, err)
		}
	}
}

// Run watches the directory and applies changes until ctx is cancelled.
// Failed changes are logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	for change := range changes {
		_ = w.Apply(ctx, change)
	}
	return nil
}

// Apply ingests or deletes the document behind a change.
func (w *Watcher) Apply(ctx context.Context, change Change) error {
	var err error
	switch change.Type {
	case ChangeUpserted:
		var result *domain.IngestResult
		result, err = w.svc.Ingest(ctx, change.Request)
		if err == nil {
			logger.Info("Ingested %s as %s (%d chunks)", change.Path, result.DocID, result.ChunkCount)
		}
	case ChangeDeleted:
		err = w.svc.DeleteDocument(ctx, change.DocID())
		if errors.Is(err, domain.ErrNotFound) {
			err = nil
		}
		if err == nil {
			logger.Info("Deleted %s", change.DocID())
		}
	}

	if err != nil {
		if domain.IsConsistency(err) {
			logger.Error("%s %s: %v", change.Type, change.Path, err)
		} else {
			logger.Warn("%s %s: %v", change.Type, change.Path, err)
		}
	}
	if w.report != nil {
		w.report(change, err)
	}
	return err
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

// handleFsEvent converts a raw event into a change, or nil when the event
// does not concern a report file.
func (w *Watcher) handleFsEvent(event fsnotify.Event) *Change {
	name := filepath.Base(event.Name)
	if isHidden(name) || !isReport(name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		change, err := readChange(event.Name)
		if err != nil {
			logger.Debug("ignoring %s: %v", event.Name, err)
			return nil
		}
		return change
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !w.deleteOnRemove {
			return nil
		}
		return &Change{
			Type:    ChangeDeleted,
			Path:    event.Name,
			Request: InferRequest(event.Name, ""),
		}
	}
	return nil
}

func readChange(path string) (*Change, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Change{
		Type:    ChangeUpserted,
		Path:    path,
		Request: InferRequest(path, string(body)),
	}, nil
}

// MaxTitleLength caps titles taken from a Markdown heading.
const MaxTitleLength = 120

// InferRequest builds an ingest request from a report file path and body.
func InferRequest(path, body string) domain.IngestRequest {
	stem := DocIDFromPath(path)
	req := domain.IngestRequest{
		DocID: stem,
		Type:  domain.DocTypeCustom,
		Title: InferTitle(body, stem),
		Body:  body,
	}

	lower := strings.ToLower(stem)
	switch {
	case strings.HasPrefix(lower, "daily_"):
		date, err := domain.ParseDate(stem[len("daily_"):])
		if err != nil {
			break
		}
		req.Type = domain.DocTypeDaily
		req.DocID = domain.DailyDocID(date)
		req.ReportDate = &date
	case strings.HasPrefix(lower, "rule_"):
		req.Type = domain.DocTypeRule
	}
	return req
}

// InferTitle returns the first level-one Markdown heading, or fallback.
func InferTitle(body, fallback string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "# ") {
			continue
		}
		title := strings.TrimSpace(line[2:])
		if title == "" {
			continue
		}
		if r := []rune(title); len(r) > MaxTitleLength {
			title = strings.TrimSpace(string(r[:MaxTitleLength]))
		}
		return title
	}
	return fallback
}

// DocIDFromPath returns the file name without directory or extension.
func DocIDFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isReport(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
