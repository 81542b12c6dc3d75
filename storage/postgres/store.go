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


// Package postgres implements both halves of the dual store on
// PostgreSQL: passages and documents in plain tables, vectors in a
// pgvector column.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS lectern_documents (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    content_type     TEXT NOT NULL,
    chunk_strategy   TEXT NOT NULL,
    source           TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    total_chunks     INTEGER NOT NULL DEFAULT 0,
    processed_chunks INTEGER NOT NULL DEFAULT 0,
    error            TEXT NOT NULL DEFAULT '',
    inserted_at      TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lectern_passages (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    ordinal     INTEGER NOT NULL,
    text        TEXT NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lectern_passages_document ON lectern_passages(document_id, ordinal);

CREATE TABLE IF NOT EXISTS lectern_document_passages (
    document_id TEXT NOT NULL,
    passage_id  TEXT NOT NULL,
    ordinal     INTEGER NOT NULL,
    PRIMARY KEY (document_id, passage_id)
);

CREATE INDEX IF NOT EXISTS idx_lectern_document_passages_passage ON lectern_document_passages(passage_id);

INSERT INTO lectern_document_passages (document_id, passage_id, ordinal)
SELECT document_id, id, ordinal FROM lectern_passages
ON CONFLICT DO NOTHING;
`

// Store is a storage.RelationalStore backed by a pgx connection pool.
type Store struct {
	dsn               string
	refreshTimestamps bool
	logger            *slog.Logger

	mu   sync.RWMutex
	pool *pgxpool.Pool
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

// Open connects to dsn and creates the tables if needed.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		dsn:               dsn,
		refreshTimestamps: true,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "postgres")

	pool, err := connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing dsn: %w", core.ErrConfiguration, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, mapError(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, mapError(err)
	}
	return pool, nil
}

// mapError turns network-level failures into storage.ErrConnectionLost.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		strings.Contains(err.Error(), "closed pool"):
		return fmt.Errorf("%w: %w", storage.ErrConnectionLost, err)
	}
	return err
}

func (s *Store) handle() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// Pool exposes the connection pool so a VectorIndex can share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.handle()
}

// Reconnect replaces the pool with a fresh one.
func (s *Store) Reconnect(ctx context.Context) error {
	pool, err := connect(ctx, s.dsn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.pool
	s.pool = pool
	s.mu.Unlock()

	s.logger.Info("reconnected")
	if old != nil {
		old.Close()
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.handle().Close()
	return nil
}

const passageColumns = "id, document_id, ordinal, text, metadata, created_at"

const linkQuery = `INSERT INTO lectern_document_passages (document_id, passage_id, ordinal) VALUES ($1, $2, $3)
	ON CONFLICT (document_id, passage_id) DO UPDATE SET ordinal = EXCLUDED.ordinal`

// UpsertPassages inserts or replaces passages in one batch.
func (s *Store) UpsertPassages(ctx context.Context, passages ...*core.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	createdAt := "created_at = EXCLUDED.created_at"
	if !s.refreshTimestamps {
		createdAt = "created_at = lectern_passages.created_at"
	}
	query := `INSERT INTO lectern_passages (` + passageColumns + `) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			ordinal = EXCLUDED.ordinal,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			` + createdAt

	batch := &pgx.Batch{}
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
			created = time.Now().UTC()
		}
		batch.Queue(query, string(p.Id), string(p.DocumentId), p.Ordinal, p.Text, string(meta), created)
		batch.Queue(linkQuery, string(p.DocumentId), string(p.Id), p.Ordinal)
	}

	return mapError(s.handle().SendBatch(ctx, batch).Close())
}

// GetPassages returns the passages that exist among ids.
func (s *Store) GetPassages(ctx context.Context, ids ...core.ID) ([]*core.Passage, error) {
	if len(ids) == 0 {
		return []*core.Passage{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	rows, err := s.handle().Query(ctx,
		"SELECT "+passageColumns+" FROM lectern_passages WHERE id = ANY($1)", keys)
	if err != nil {
		return nil, mapError(err)
	}
	return scanPassages(rows)
}

// GetDocumentPassages returns a document's passages ordered by ordinal,
// including passages whose text it shares with other documents.
func (s *Store) GetDocumentPassages(ctx context.Context, documentID core.ID) ([]*core.Passage, error) {
	rows, err := s.handle().Query(ctx, `SELECT p.id, l.document_id, l.ordinal, p.text, p.metadata, p.created_at
		FROM lectern_document_passages l JOIN lectern_passages p ON p.id = l.passage_id
		WHERE l.document_id = $1 ORDER BY l.ordinal`, string(documentID))
	if err != nil {
		return nil, mapError(err)
	}
	return scanPassages(rows)
}

func scanPassages(rows pgx.Rows) ([]*core.Passage, error) {
	defer rows.Close()

	passages := []*core.Passage{}
	for rows.Next() {
		var (
			p         core.Passage
			id, docID string
			meta      []byte
		)
		if err := rows.Scan(&id, &docID, &p.Ordinal, &p.Text, &meta, &p.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata of %s: %w", storage.ErrSerializationFailed, id, err)
			}
		}
		p.Id = core.ID(id)
		p.DocumentId = core.ID(docID)
		p.CreatedAt = p.CreatedAt.UTC()
		passages = append(passages, &p)
	}
	return passages, mapError(rows.Err())
}

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

	_, err := s.handle().Exec(ctx,
		"INSERT INTO lectern_documents ("+documentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		string(doc.Id), doc.Title, string(doc.ContentType), string(doc.ChunkStrategy), doc.Source,
		string(doc.Status), doc.TotalChunks, doc.ProcessedChunks, doc.Error, now, now)
	return mapError(err)
}

// GetDocument returns storage.ErrNotFound for unknown ids.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.handle().QueryRow(ctx, "SELECT "+documentColumns+" FROM lectern_documents WHERE id = $1", string(id))
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return doc, mapError(err)
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	rows, err := s.handle().Query(ctx,
		"SELECT "+documentColumns+" FROM lectern_documents ORDER BY inserted_at DESC, id")
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

func scanDocument(row pgx.Row) (*core.Document, error) {
	var (
		doc                       core.Document
		id, contentType, strategy string
		status                    string
	)
	err := row.Scan(&id, &doc.Title, &contentType, &strategy, &doc.Source, &status,
		&doc.TotalChunks, &doc.ProcessedChunks, &doc.Error, &doc.InsertedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Id = core.ID(id)
	doc.ContentType = core.ContentType(contentType)
	doc.ChunkStrategy = core.ChunkStrategy(strategy)
	doc.Status = core.DocumentStatus(status)
	doc.InsertedAt = doc.InsertedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// UpdateProgress records chunk counts of a PROCESSING document.
func (s *Store) UpdateProgress(ctx context.Context, id core.ID, total, processed int) error {
	if total < 0 || processed < 0 || processed > total {
		return fmt.Errorf("%w: progress %d/%d", core.ErrInvalidDocument, processed, total)
	}
	return s.transition(ctx, id,
		"UPDATE lectern_documents SET total_chunks = $1, processed_chunks = $2, updated_at = $3 WHERE id = $4 AND status = 'PROCESSING'",
		total, processed, time.Now().UTC(), string(id))
}

// CompleteDocument moves a document from PROCESSING to READY.
func (s *Store) CompleteDocument(ctx context.Context, id core.ID) error {
	return s.transition(ctx, id,
		"UPDATE lectern_documents SET status = 'READY', processed_chunks = total_chunks, updated_at = $1 WHERE id = $2 AND status = 'PROCESSING'",
		time.Now().UTC(), string(id))
}

// RenameDocument sets the title of a PROCESSING document.
func (s *Store) RenameDocument(ctx context.Context, id core.ID, title string) error {
	return s.transition(ctx, id,
		"UPDATE lectern_documents SET title = $1, updated_at = $2 WHERE id = $3 AND status = 'PROCESSING'",
		title, time.Now().UTC(), string(id))
}

// FailDocument moves a document from PROCESSING to ERROR.
func (s *Store) FailDocument(ctx context.Context, id core.ID, message string) error {
	return s.transition(ctx, id,
		"UPDATE lectern_documents SET status = 'ERROR', error = $1, updated_at = $2 WHERE id = $3 AND status = 'PROCESSING'",
		message, time.Now().UTC(), string(id))
}

func (s *Store) transition(ctx context.Context, id core.ID, query string, args ...any) error {
	tag, err := s.handle().Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %s is %s", core.ErrTerminalState, id, doc.Status)
}
