package storage

import (
	"context"

	"github.com/poiesic/lectern/core"
)

// VectorIndex stores passage vectors and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Upsert inserts or replaces entries keyed by (document id, passage id).
	// Returns an error wrapping core.ErrDimensionMismatch if a vector's
	// width differs from the index's dimension.
	Upsert(ctx context.Context, entries ...*core.IndexEntry) error

	// Query returns up to limit matches ordered by score, highest first.
	// Equal scores keep the index's natural order. An empty documentID
	// searches every document.
	Query(ctx context.Context, vector []float32, documentID core.ID, limit int) ([]core.SimilarityMatch, error)

	// DeleteDocument removes every entry owned by documentID.
	DeleteDocument(ctx context.Context, documentID core.ID) error

	// Close releases resources.
	Close() error
}

// PassageStore persists passage text and metadata.
type PassageStore interface {
	// UpsertPassages inserts or replaces passages keyed by id.
	UpsertPassages(ctx context.Context, passages ...*core.Passage) error

	// GetPassages returns the passages that exist among ids, in no
	// particular order. Missing ids are not an error.
	GetPassages(ctx context.Context, ids ...core.ID) ([]*core.Passage, error)

	// GetDocumentPassages returns a document's passages ordered by ordinal.
	GetDocumentPassages(ctx context.Context, documentID core.ID) ([]*core.Passage, error)

	// Reconnect drops and re-establishes the underlying connection.
	Reconnect(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// DocumentStore tracks documents and their ingestion state.
type DocumentStore interface {
	// CreateDocument inserts a new document in PROCESSING state and sets
	// InsertedAt and UpdatedAt.
	CreateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument returns ErrNotFound for unknown ids.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// UpdateProgress records chunk counts of a PROCESSING document.
	// Returns core.ErrTerminalState if the document is READY or ERROR.
	UpdateProgress(ctx context.Context, id core.ID, total, processed int) error

	// RenameDocument replaces the title of a PROCESSING document.
	// Returns core.ErrTerminalState if the document is READY or ERROR.
	RenameDocument(ctx context.Context, id core.ID, title string) error

	// CompleteDocument moves a document from PROCESSING to READY.
	CompleteDocument(ctx context.Context, id core.ID) error

	// FailDocument moves a document from PROCESSING to ERROR with message.
	FailDocument(ctx context.Context, id core.ID, message string) error
}

// RelationalStore is the relational half of the dual store.
type RelationalStore interface {
	PassageStore
	DocumentStore
}

// Ledger records identifiers that reached a terminal outcome. Marking is
// monotonic and idempotent.
type Ledger interface {
	// MarkSettled records key. Marking an already settled key is a no-op.
	MarkSettled(ctx context.Context, key string) error

	// Settled returns every recorded key.
	Settled(ctx context.Context) (map[string]struct{}, error)

	// Close releases resources.
	Close() error
}
