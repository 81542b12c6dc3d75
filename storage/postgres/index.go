package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

const indexSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS lectern_vectors (
    document_id TEXT NOT NULL,
    passage_id  TEXT NOT NULL,
    ordinal     INTEGER NOT NULL,
    embedding   vector NOT NULL,
    PRIMARY KEY (document_id, passage_id)
);
`

// VectorIndex stores vectors in a pgvector column and ranks them with the
// cosine distance operator. It shares the Store's pool, so a Store
// reconnect also heals the index.
type VectorIndex struct {
	store  *Store
	logger *slog.Logger
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates the vector table in store's database. The pool
// is not closed by VectorIndex.Close.
func NewVectorIndex(ctx context.Context, store *Store) (*VectorIndex, error) {
	if _, err := store.Pool().Exec(ctx, indexSchema); err != nil {
		return nil, fmt.Errorf("creating vector schema: %w", mapError(err))
	}
	return &VectorIndex{store: store, logger: store.logger.With("component", "pgvector")}, nil
}

func (v *VectorIndex) pool() *pgxpool.Pool {
	return v.store.Pool()
}

// Dimension returns the width of stored vectors, or 0 when empty.
func (v *VectorIndex) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := v.pool().QueryRow(ctx, "SELECT vector_dims(embedding) FROM lectern_vectors LIMIT 1").Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return dim, mapError(err)
}

func (v *VectorIndex) checkDimension(ctx context.Context, n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", storage.ErrInvalidQuery)
	}
	dim, err := v.Dimension(ctx)
	if err != nil {
		return err
	}
	if dim != 0 && dim != n {
		return fmt.Errorf("%w: %w: got %d, index has %d", core.ErrConfiguration, core.ErrDimensionMismatch, n, dim)
	}
	return nil
}

// Upsert writes entries keyed by (document, passage).
func (v *VectorIndex) Upsert(ctx context.Context, entries ...*core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	width := len(entries[0].Vector)
	for _, e := range entries {
		if len(e.Vector) != width {
			return fmt.Errorf("%w: %w: mixed widths %d and %d", core.ErrConfiguration, core.ErrDimensionMismatch, width, len(e.Vector))
		}
	}
	if err := v.checkDimension(ctx, width); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO lectern_vectors (document_id, passage_id, ordinal, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (document_id, passage_id) DO UPDATE SET
				ordinal = EXCLUDED.ordinal,
				embedding = EXCLUDED.embedding`,
			string(e.DocumentId), string(e.PassageId), e.Ordinal, pgvector.NewVector(core.NormalizeVector(e.Vector)))
	}
	if err := v.pool().SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err)
	}
	v.logger.Debug("upserted vectors", "count", len(entries))
	return nil
}

// Query ranks by cosine similarity, 1 - (embedding <=> query).
func (v *VectorIndex) Query(ctx context.Context, vector []float32, documentID core.ID, limit int) ([]core.SimilarityMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if err := v.checkDimension(ctx, len(vector)); err != nil {
		return nil, err
	}

	query := pgvector.NewVector(vector)
	var (
		rows pgx.Rows
		err  error
	)
	if documentID == "" {
		rows, err = v.pool().Query(ctx, `SELECT passage_id, document_id, ordinal, 1 - (embedding <=> $1) AS score
			FROM lectern_vectors ORDER BY embedding <=> $1 LIMIT $2`, query, limit)
	} else {
		rows, err = v.pool().Query(ctx, `SELECT passage_id, document_id, ordinal, 1 - (embedding <=> $1) AS score
			FROM lectern_vectors WHERE document_id = $3
			ORDER BY embedding <=> $1 LIMIT $2`, query, limit, string(documentID))
	}
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	matches := []core.SimilarityMatch{}
	for rows.Next() {
		var (
			m                core.SimilarityMatch
			passageID, docID string
			score            float64
		)
		if err := rows.Scan(&passageID, &docID, &m.Ordinal, &score); err != nil {
			return nil, mapError(err)
		}
		m.PassageId = core.ID(passageID)
		m.DocumentId = core.ID(docID)
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, mapError(rows.Err())
}

// DeleteDocument removes every entry of documentID.
func (v *VectorIndex) DeleteDocument(ctx context.Context, documentID core.ID) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", storage.ErrInvalidQuery)
	}
	_, err := v.pool().Exec(ctx, "DELETE FROM lectern_vectors WHERE document_id = $1", string(documentID))
	return mapError(err)
}

// Close is a no-op; the Store owns the pool.
func (v *VectorIndex) Close() error {
	return nil
}
