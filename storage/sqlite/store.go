// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/sqlite/migrations"
)

// Store is a storage.RelationalStore backed by a single SQLite file.
type Store struct {
	path              string
	refreshTimestamps bool
	logger            *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

var _ storage.RelationalStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRefreshTimestamps controls whether re-upserting a passage replaces
// its created_at. Defaults to true.
func WithRefreshTimestamps(refresh bool) Option {
	return func(s *Store) {
		s.refreshTimestamps = refresh
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:              path,
		refreshTimestamps: true,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sqlite")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	s.db = db

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Reconnect closes the current handle and opens a new one.
func (s *Store) Reconnect(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", storage.ErrConnectionLost, err)
	}

	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()

	s.logger.Info("reconnected", "path", s.path)
	if old != nil {
		old.Close()
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.handle().Close()
}

func (s *Store) migrate(fsys embed.FS) error {
	db := s.handle()
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "name", name)
	}
	return nil
}

// mapError turns a dropped handle into storage.ErrConnectionLost.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %w", storage.ErrConnectionLost, err)
	}
	return err
}

// ==================== Passages ====================

const passageColumns = "id, document_id, ordinal, text, metadata, created_at"

// UpsertPassages inserts or replaces passages in one transaction.
func (s *Store) UpsertPassages(ctx context.Context, passages ...*core.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	createdAt := "created_at = excluded.created_at"
	if !s.refreshTimestamps {
		createdAt = "created_at = passages.created_at"
	}
	query := `INSERT INTO passages (` + passageColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal = excluded.ordinal,
			text = excluded.text,
			metadata = excluded.metadata,
			` + createdAt

	tx, err := s.handle().BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return mapError(err)
	}
	defer stmt.Close()

	link, err := tx.PrepareContext(ctx, `INSERT INTO document_passages (document_id, passage_id, ordinal) VALUES (?, ?, ?)
		ON CONFLICT(document_id, passage_id) DO UPDATE SET ordinal = excluded.ordinal`)
	if err != nil {
		return mapError(err)
	}
	defer link.Close()

	for _, p := range passages {
		if err := core.ValidatePassage(p); err != nil {
			return err
		}
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
		}
		created := p.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		_, err = stmt.ExecContext(ctx, string(p.Id), string(p.DocumentId), p.Ordinal, p.Text, string(meta), created.UnixMicro())
		if err != nil {
			return mapError(err)
		}
		if _, err := link.ExecContext(ctx, string(p.DocumentId), string(p.Id), p.Ordinal); err != nil {
			return mapError(err)
		}
	}
	return mapError(tx.Commit())
}

// GetPassages returns the passages that exist among ids.
func (s *Store) GetPassages(ctx context.Context, ids ...core.ID) ([]*core.Passage, error) {
	if len(ids) == 0 {
		return []*core.Passage{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = string(id)
	}

	rows, err := s.handle().QueryContext(ctx,
		"SELECT "+passageColumns+" FROM passages WHERE id IN ("+strings.Join(placeholders, ", ")+")", args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanPassages(rows)
}

// GetDocumentPassages returns a document's passages ordered by ordinal.
// Passages shared with another document are reported with this document's
// id and ordinal.
func (s *Store) GetDocumentPassages(ctx context.Context, documentID core.ID) ([]*core.Passage, error) {
	rows, err := s.handle().QueryContext(ctx, `SELECT p.id, l.document_id, l.ordinal, p.text, p.metadata, p.created_at
		FROM document_passages l JOIN passages p ON p.id = l.passage_id
		WHERE l.document_id = ? ORDER BY l.ordinal`, string(documentID))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanPassages(rows)
}

func scanPassages(rows *sql.Rows) ([]*core.Passage, error) {
	passages := []*core.Passage{}
	for rows.Next() {
		var (
			p         core.Passage
			id, docID string
			meta      string
			created   int64
		)
		if err := rows.Scan(&id, &docID, &p.Ordinal, &p.Text, &meta, &created); err != nil {
			return nil, mapError(err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata of %s: %w", storage.ErrSerializationFailed, id, err)
			}
		}
		p.Id = core.ID(id)
		p.DocumentId = core.ID(docID)
		p.CreatedAt = time.UnixMicro(created).UTC()
		passages = append(passages, &p)
	}
	return passages, mapError(rows.Err())
}

// ==================== Documents ====================

const documentColumns = "id, title, content_type, chunk_strategy, source, status, total_chunks, processed_chunks, error, inserted_at, updated_at"

// CreateDocument inserts doc in PROCESSING state.
func (s *Store) CreateDocument(ctx context.Context, doc *core.Document) error {
	now := time.Now().UTC()
	doc.Status = core.StatusProcessing
	doc.InsertedAt = now
	doc.UpdatedAt = now
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}

	_, err := s.handle().ExecContext(ctx,
		"INSERT INTO documents ("+documentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		string(doc.Id), doc.Title, string(doc.ContentType), string(doc.ChunkStrategy), doc.Source,
		string(doc.Status), doc.TotalChunks, doc.ProcessedChunks, doc.Error,
		now.UnixMicro(), now.UnixMicro())
	return mapError(err)
}

// GetDocument returns storage.ErrNotFound for unknown ids.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.handle().QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", string(id))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return doc, mapError(err)
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	rows, err := s.handle().QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY inserted_at DESC, rowid DESC")
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	docs := []*core.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapError(err)
		}
		docs = append(docs, doc)
	}
	return docs, mapError(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*core.Document, error) {
	var (
		doc                       core.Document
		id, contentType, strategy string
		status                    string
		insertedAt, updatedAt     int64
	)
	err := row.Scan(&id, &doc.Title, &contentType, &strategy, &doc.Source, &status,
		&doc.TotalChunks, &doc.ProcessedChunks, &doc.Error, &insertedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.Id = core.ID(id)
	doc.ContentType = core.ContentType(contentType)
	doc.ChunkStrategy = core.ChunkStrategy(strategy)
	doc.Status = core.DocumentStatus(status)
	doc.InsertedAt = time.UnixMicro(insertedAt).UTC()
	doc.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &doc, nil
}

// UpdateProgress records chunk counts of a PROCESSING document.
func (s *Store) UpdateProgress(ctx context.Context, id core.ID, total, processed int) error {
	if total < 0 || processed < 0 || processed > total {
		return fmt.Errorf("%w: progress %d/%d", core.ErrInvalidDocument, processed, total)
	}
	return s.transition(ctx, id,
		"UPDATE documents SET total_chunks = ?, processed_chunks = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'",
		total, processed, time.Now().UTC().UnixMicro(), string(id))
}

// CompleteDocument moves a document from PROCESSING to READY.
func (s *Store) CompleteDocument(ctx context.Context, id core.ID) error {
	return s.transition(ctx, id,
		"UPDATE documents SET status = 'READY', processed_chunks = total_chunks, updated_at = ? WHERE id = ? AND status = 'PROCESSING'",
		time.Now().UTC().UnixMicro(), string(id))
}

// RenameDocument sets the title of a PROCESSING document.
func (s *Store) RenameDocument(ctx context.Context, id core.ID, title string) error {
	return s.transition(ctx, id,
		"UPDATE documents SET title = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'",
		title, time.Now().UTC().UnixMicro(), string(id))
}

// FailDocument moves a document from PROCESSING to ERROR.
func (s *Store) FailDocument(ctx context.Context, id core.ID, message string) error {
	return s.transition(ctx, id,
		"UPDATE documents SET status = 'ERROR', error = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'",
		message, time.Now().UTC().UnixMicro(), string(id))
}

// transition runs an update guarded by status = 'PROCESSING' and explains
// a zero row count.
func (s *Store) transition(ctx context.Context, id core.ID, query string, args ...any) error {
	res, err := s.handle().ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n > 0 {
		return nil
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %s is %s", core.ErrTerminalState, id, doc.Status)
}
