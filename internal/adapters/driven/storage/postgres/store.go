package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/insightpocket/insight-rag/internal/adapters/driven/storage/postgres/migrations"
	"github.com/insightpocket/insight-rag/internal/core/domain"
	"github.com/insightpocket/insight-rag/internal/core/ports/driven"
)

// dimensionsToken is replaced in migrations with the embedding dimension.
const dimensionsToken = "{{dimensions}}"

// Store is a Postgres-backed storage that provides access to the
// document store and vector search interfaces through wrapper types.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewStore connects to dsn, applies pending migrations and opens a pool.
// dimensions fixes the width of the embedding column on first migration.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn: %w", domain.ErrInvalidInput)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions %d: %w", dimensions, domain.ErrInvalidInput)
	}

	// The vector type must exist before pool connections register it.
	if err := migrate(ctx, dsn, dimensions, migrations.FS); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting: %w", err)
	}

	return &Store{pool: pool, dimensions: dimensions}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Dimensions returns the width of the embedding column.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// VectorSearcher returns a VectorSearcher interface backed by this store.
func (s *Store) VectorSearcher() driven.VectorSearcher {
	return &vectorSearcher{store: s}
}

// migrate runs all pending migrations on a dedicated connection.
func migrate(ctx context.Context, dsn string, dimensions int, fsys embed.FS) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := conn.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	files, err := pendingMigrations(fsys, currentVersion)
	if err != nil {
		return err
	}

	for _, m := range files {
		content, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx, renderMigration(string(content), dimensions)); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing migration %s: %w", m.name, err)
		}
	}

	return nil
}

type migrationFile struct {
	name    string
	version int
}

// pendingMigrations lists up migrations newer than current, in order.
func pendingMigrations(fsys fs.FS, current int) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version > current {
			files = append(files, migrationFile{name: name, version: version})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func renderMigration(sql string, dimensions int) string {
	return strings.ReplaceAll(sql, dimensionsToken, strconv.Itoa(dimensions))
}

// ==================== Helper Functions ====================

// dateArg converts a report date to a DATE parameter.
func dateArg(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: domain.Date(*t), Valid: true}
}

// dateValue converts a scanned DATE back to a report date.
func dateValue(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := domain.Date(d.Time)
	return &t
}

// placeholders numbers query parameters from a starting index.
type placeholders struct {
	args []any
}

// add appends v and returns its $n placeholder.
func (p *placeholders) add(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

// filterClause renders a search filter as a WHERE fragment over the
// documents table aliased as d. It returns "TRUE" for an empty filter.
func filterClause(f domain.SearchFilter, p *placeholders) string {
	var conds []string

	if len(f.DocTypes) > 0 {
		types := make([]int16, len(f.DocTypes))
		for i, t := range f.DocTypes {
			types[i] = int16(t)
		}
		conds = append(conds, "d.doc_type = ANY("+p.add(types)+")")
	}
	if f.Dates.From != nil {
		conds = append(conds, "d.report_date >= "+p.add(dateArg(f.Dates.From)))
	}
	if f.Dates.To != nil {
		conds = append(conds, "d.report_date <= "+p.add(dateArg(f.Dates.To)))
	}

	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}
