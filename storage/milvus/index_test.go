package milvus

import (
	"context"
	"os"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/poiesic/lectern/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentFilter(t *testing.T) {
	assert.Equal(t, "", documentFilter(""))
	assert.Equal(t, `document_id == "abc"`, documentFilter("abc"))
	assert.Equal(t, `document_id == "a\"b\\c"`, documentFilter(`a"b\c`))
}

func TestRowKey(t *testing.T) {
	doc := core.NewID()
	passage := core.IDFromContent("text")
	key := rowKey(doc, passage)

	assert.Equal(t, string(doc)+":"+string(passage), key)
	assert.LessOrEqual(t, len(key), keyMaxLength)
}

func TestCollectionSchema(t *testing.T) {
	schema := collectionSchema("passages", 384)
	require.Len(t, schema.Fields, 5)

	assert.Equal(t, FieldKey, schema.Fields[0].Name)
	assert.True(t, schema.Fields[0].PrimaryKey)
	assert.Equal(t, entity.FieldTypeFloatVector, schema.Fields[4].DataType)
	assert.Equal(t, "384", schema.Fields[4].TypeParams[entity.TypeParamDim])
}

func TestVectorIndex_Live(t *testing.T) {
	addr := os.Getenv("LECTERN_TEST_MILVUS_ADDR")
	if addr == "" {
		t.Skip("LECTERN_TEST_MILVUS_ADDR not set")
	}
	ctx := context.Background()

	index, err := Open(ctx, addr, WithCollection("lectern_test_"+core.NewID().String()[:8]))
	require.NoError(t, err)
	defer func() {
		_ = index.client.DropCollection(ctx, index.collection)
		index.Close()
	}()

	doc := core.NewID()
	require.NoError(t, index.Upsert(ctx,
		&core.IndexEntry{PassageId: core.IDFromContent("a"), DocumentId: doc, Ordinal: 0, Vector: []float32{1, 0, 0, 0}},
		&core.IndexEntry{PassageId: core.IDFromContent("b"), DocumentId: doc, Ordinal: 1, Vector: []float32{0, 1, 0, 0}},
	))
	require.NoError(t, index.client.Flush(ctx, index.collection, false))

	matches, err := index.Query(ctx, []float32{1, 0, 0, 0}, doc, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.IDFromContent("a"), matches[0].PassageId)

	err = index.Upsert(ctx, &core.IndexEntry{PassageId: "x", DocumentId: doc, Vector: []float32{1}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}
