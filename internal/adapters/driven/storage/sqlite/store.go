package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/flcm/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
)

// DBName is the database file name inside the data directory.
const DBName = "index.db"

// Store is a SQLite-backed metadata index.
type Store struct {
	db   *sql.DB
	path string

	// mu serialises writers so read-modify-write updates never interleave.
	mu sync.Mutex
}

// Ensure Store implements the interface.
var _ driven.MetadataIndex = (*Store)(nil)

// NewStore opens or creates the index database in dataDir.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%w: empty data directory", domain.ErrInvalidInput)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBName)

	// WAL mode, and foreign keys so reference rows follow their entry
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_index.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Index ====================

const entryColumns = `id, type, path, created_at, modified_at, agent, status, version, platform, tags`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Put inserts or replaces an entry.
func (s *Store) Put(ctx context.Context, entry domain.IndexEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: index entry without id", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return putEntry(ctx, tx, entry)
	})
}

// Update applies fn to the current entry inside one transaction.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.IndexEntry) (*domain.IndexEntry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getEntry(ctx, tx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if next.ID != id {
			return fmt.Errorf("%w: update of %q returned entry %q", domain.ErrInvalidInput, id, next.ID)
		}
		return putEntry(ctx, tx, *next)
	})
}

// Get returns the entry for id.
func (s *Store) Get(ctx context.Context, id string) (*domain.IndexEntry, error) {
	return getEntry(ctx, s.db, id)
}

// Delete removes an entry and its references.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting index entry: %w", err)
	}
	return nil
}

// Search returns matching entries ordered by id. Type, agent, status and
// reference predicates run in SQL; tags and dates are checked on the rows.
func (s *Store) Search(ctx context.Context, criteria domain.IndexCriteria) ([]domain.IndexEntry, error) {
	var where []string
	var args []any
	if criteria.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(criteria.Type))
	}
	if criteria.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, string(criteria.Agent))
	}
	if criteria.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(criteria.Status))
	}
	if criteria.ReferenceTo != "" {
		where = append(where, "id IN (SELECT entry_id FROM entry_references WHERE ref_id = ?)")
		args = append(args, criteria.ReferenceTo)
	}

	query := "SELECT " + entryColumns + " FROM index_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	entries, err := listEntries(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	result := make([]domain.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if criteria.Matches(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

// All returns every entry ordered by id.
func (s *Store) All(ctx context.Context) ([]domain.IndexEntry, error) {
	return s.Search(ctx, domain.IndexCriteria{})
}

// Export serialises the index in the same snapshot format as the JSON index.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	snap := domain.IndexSnapshot{
		Version: domain.IndexSnapshotVersion,
		Entries: make(map[string]domain.IndexEntry, len(entries)),
	}
	for _, e := range entries {
		snap.Entries[e.ID] = e
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Import replaces every entry with the snapshot contents.
func (s *Store) Import(ctx context.Context, data []byte) error {
	var snap domain.IndexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: decoding index snapshot: %v", domain.ErrInvalidInput, err)
	}
	if snap.Version > domain.IndexSnapshotVersion {
		return fmt.Errorf("%w: index snapshot version %d is newer than supported", domain.ErrInvalidInput, snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_entries"); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
		for id, e := range snap.Entries {
			if e.ID == "" {
				e.ID = id
			}
			if e.ID != id {
				return fmt.Errorf("%w: snapshot key %q holds entry %q", domain.ErrInvalidInput, id, e.ID)
			}
			if err := putEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin", Path: s.path, Err: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit", Path: s.path, Err: err}
	}
	return nil
}

func putEntry(ctx context.Context, q querier, e domain.IndexEntry) error {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO index_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			path = excluded.path,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			agent = excluded.agent,
			status = excluded.status,
			version = excluded.version,
			platform = excluded.platform,
			tags = excluded.tags
	`, e.ID, string(e.Type), e.Path, formatTime(e.Created), formatTime(e.Modified),
		string(e.Agent), string(e.Status), e.Version, string(e.Platform), string(tagsJSON))
	if err != nil {
		return fmt.Errorf("saving index entry: %w", err)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM entry_references WHERE entry_id = ?", e.ID); err != nil {
		return fmt.Errorf("clearing references: %w", err)
	}
	for i, ref := range e.References {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO entry_references (entry_id, position, ref_id) VALUES (?, ?, ?)",
			e.ID, i, ref); err != nil {
			return fmt.Errorf("saving reference: %w", err)
		}
	}
	return nil
}

func getEntry(ctx context.Context, q querier, id string) (*domain.IndexEntry, error) {
	entries, err := listEntries(ctx, q, "SELECT "+entryColumns+" FROM index_entries WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrNotFound
	}
	return &entries[0], nil
}

func listEntries(ctx context.Context, q querier, query string, args ...any) ([]domain.IndexEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	var entries []domain.IndexEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating index: %w", err)
	}
	rows.Close()

	for i := range entries {
		refs, err := loadReferences(ctx, q, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].References = refs
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (domain.IndexEntry, error) {
	var e domain.IndexEntry
	var typ, agent, status, platform, created, modified, tagsJSON string
	if err := rows.Scan(&e.ID, &typ, &e.Path, &created, &modified,
		&agent, &status, &e.Version, &platform, &tagsJSON); err != nil {
		return e, fmt.Errorf("scanning index entry: %w", err)
	}
	e.Type = domain.DocumentType(typ)
	e.Agent = domain.Agent(agent)
	e.Status = domain.Status(status)
	e.Platform = domain.Platform(platform)
	e.Created = parseTime(created)
	e.Modified = parseTime(modified)
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return e, fmt.Errorf("unmarshalling tags: %w", err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	return e, nil
}

func loadReferences(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT ref_id FROM entry_references WHERE entry_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
