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


// Package milvus implements storage.VectorIndex on a Milvus collection.
package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// Schema fields of the collection.
const (
	FieldKey        = "key"
	FieldPassageID  = "passage_id"
	FieldDocumentID = "document_id"
	FieldOrdinal    = "ordinal"
	FieldVector     = "vector"

	DefaultCollection = "lectern_passages"

	idMaxLength  = 64
	keyMaxLength = 2*idMaxLength + 1
)

// VectorIndex stores one row per (document, passage) pair. Vectors are
// normalized and searched by inner product, which equals cosine.
type VectorIndex struct {
	client     client.Client
	collection string
	logger     *slog.Logger

	mu        sync.Mutex
	dimension int
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// Option configures a VectorIndex.
type Option func(*VectorIndex)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(v *VectorIndex) {
		if name != "" {
			v.collection = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *VectorIndex) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Open connects to the Milvus server at address. An existing collection
// fixes the dimension; otherwise the collection is created on first write.
func Open(ctx context.Context, address string, opts ...Option) (*VectorIndex, error) {
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: milvus %s: %w", storage.ErrConnectionLost, address, err)
	}

	v := &VectorIndex{
		client:     c,
		collection: DefaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "milvus", "collection", v.collection)

	if err := v.loadDimension(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return v, nil
}

func (v *VectorIndex) loadDimension(ctx context.Context) error {
	exists, err := v.client.HasCollection(ctx, v.collection)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if !exists {
		return nil
	}

	coll, err := v.client.DescribeCollection(ctx, v.collection)
	if err != nil {
		return fmt.Errorf("describing collection: %w", err)
	}
	for _, field := range coll.Schema.Fields {
		if field.Name != FieldVector {
			continue
		}
		dim, err := strconv.Atoi(field.TypeParams[entity.TypeParamDim])
		if err != nil {
			return fmt.Errorf("reading vector dimension: %w", err)
		}
		v.dimension = dim
	}
	return v.client.LoadCollection(ctx, v.collection, false)
}

// Dimension returns the collection's vector width, or 0 before the first
// write.
func (v *VectorIndex) Dimension() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dimension
}

// collectionSchema describes the collection for vectors of width dim.
func collectionSchema(name string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription("passage vectors").
		WithField(entity.NewField().WithName(FieldKey).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(keyMaxLength).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldPassageID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(idMaxLength)).
		WithField(entity.NewField().WithName(FieldDocumentID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(idMaxLength)).
		WithField(entity.NewField().WithName(FieldOrdinal).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldVector).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))
}

// ensureCollection creates, indexes and loads the collection on first
// write. Callers hold v.mu.
func (v *VectorIndex) ensureCollection(ctx context.Context, dim int) error {
	if v.dimension != 0 {
		if dim != v.dimension {
			return fmt.Errorf("%w: %w: got %d, collection has %d", core.ErrConfiguration, core.ErrDimensionMismatch, dim, v.dimension)
		}
		return nil
	}

	if err := v.client.CreateCollection(ctx, collectionSchema(v.collection, dim), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	idx, err := entity.NewIndexIvfFlat(entity.IP, 128)
	if err != nil {
		return fmt.Errorf("building index params: %w", err)
	}
	if err := v.client.CreateIndex(ctx, v.collection, FieldVector, idx, false); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	if err := v.client.LoadCollection(ctx, v.collection, false); err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}

	v.dimension = dim
	v.logger.Info("created collection", "dimension", dim)
	return nil
}

func rowKey(documentID, passageID core.ID) string {
	return string(documentID) + ":" + string(passageID)
}

// Upsert writes entries keyed by (document, passage).
func (v *VectorIndex) Upsert(ctx context.Context, entries ...*core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dim := len(entries[0].Vector)
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", storage.ErrInvalidQuery)
	}

	keys := make([]string, len(entries))
	passageIDs := make([]string, len(entries))
	documentIDs := make([]string, len(entries))
	ordinals := make([]int64, len(entries))
	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: %w: mixed widths %d and %d", core.ErrConfiguration, core.ErrDimensionMismatch, dim, len(e.Vector))
		}
		keys[i] = rowKey(e.DocumentId, e.PassageId)
		passageIDs[i] = string(e.PassageId)
		documentIDs[i] = string(e.DocumentId)
		ordinals[i] = int64(e.Ordinal)
		vectors[i] = core.NormalizeVector(e.Vector)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureCollection(ctx, dim); err != nil {
		return err
	}

	_, err := v.client.Upsert(ctx, v.collection, "",
		entity.NewColumnVarChar(FieldKey, keys),
		entity.NewColumnVarChar(FieldPassageID, passageIDs),
		entity.NewColumnVarChar(FieldDocumentID, documentIDs),
		entity.NewColumnInt64(FieldOrdinal, ordinals),
		entity.NewColumnFloatVector(FieldVector, dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("upserting vectors: %w", err)
	}
	return nil
}

// documentFilter builds the boolean expression selecting one document's
// rows. An empty id selects everything.
func documentFilter(documentID core.ID) string {
	if documentID == "" {
		return ""
	}
	escaped := strings.ReplaceAll(string(documentID), `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf(`%s == "%s"`, FieldDocumentID, escaped)
}

// Query searches by inner product over normalized vectors.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, documentID core.ID, limit int) ([]core.SimilarityMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", storage.ErrInvalidQuery)
	}

	dim := v.Dimension()
	if dim == 0 {
		return []core.SimilarityMatch{}, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: %w: got %d, collection has %d", core.ErrConfiguration, core.ErrDimensionMismatch, len(vector), dim)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(10)
	if err != nil {
		return nil, fmt.Errorf("building search params: %w", err)
	}

	results, err := v.client.Search(ctx, v.collection, []string{}, documentFilter(documentID),
		[]string{FieldPassageID, FieldDocumentID, FieldOrdinal},
		[]entity.Vector{entity.FloatVector(core.NormalizeVector(vector))},
		FieldVector, entity.IP, limit, sp)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	matches := []core.SimilarityMatch{}
	for _, res := range results {
		var (
			passageIDs, documentIDs []string
			ordinals                []int64
		)
		for _, field := range res.Fields {
			switch col := field.(type) {
			case *entity.ColumnVarChar:
				if col.Name() == FieldPassageID {
					passageIDs = col.Data()
				} else if col.Name() == FieldDocumentID {
					documentIDs = col.Data()
				}
			case *entity.ColumnInt64:
				if col.Name() == FieldOrdinal {
					ordinals = col.Data()
				}
			}
		}
		if len(passageIDs) < res.ResultCount || len(documentIDs) < res.ResultCount || len(ordinals) < res.ResultCount {
			v.logger.Warn("search result missing output fields", "count", res.ResultCount)
			continue
		}

		for i := 0; i < res.ResultCount; i++ {
			matches = append(matches, core.SimilarityMatch{
				PassageId:  core.ID(passageIDs[i]),
				DocumentId: core.ID(documentIDs[i]),
				Ordinal:    int(ordinals[i]),
				Score:      res.Scores[i],
			})
		}
	}
	return matches, nil
}

// DeleteDocument removes every row of documentID.
func (v *VectorIndex) DeleteDocument(ctx context.Context, documentID core.ID) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", storage.ErrInvalidQuery)
	}
	if v.Dimension() == 0 {
		return nil
	}
	if err := v.client.Delete(ctx, v.collection, "", documentFilter(documentID)); err != nil {
		return fmt.Errorf("deleting document vectors: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the client.
func (v *VectorIndex) Close() error {
	if v.Dimension() != 0 {
		if err := v.client.Flush(context.Background(), v.collection, false); err != nil {
			v.logger.Warn("flush failed", "err", err)
		}
	}
	return v.client.Close()
}
