package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	a := IDFromContent("The mitochondria is the powerhouse of the cell.")
	b := IDFromContent("The mitochondria is the powerhouse of the cell.")
	c := IDFromContent("Something else entirely.")

	assert.Equal(t, a, b, "identical text must hash to identical ids")
	assert.NotEqual(t, a, c)

	parsed, err := ParseID(string(a))
	require.NoError(t, err)
	assert.Equal(t, a, parsed, "content ids are canonical UUIDs")
}

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)

	_, err := ParseID(string(a))
	assert.NoError(t, err)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{"canonical", "0b7b4d3c-1f61-4d4e-9a8e-2b6f5c0f9a11", "0b7b4d3c-1f61-4d4e-9a8e-2b6f5c0f9a11", false},
		{"upper case", "0B7B4D3C-1F61-4D4E-9A8E-2B6F5C0F9A11", "0b7b4d3c-1f61-4d4e-9a8e-2b6f5c0f9a11", false},
		{"padded", "  0b7b4d3c-1f61-4d4e-9a8e-2b6f5c0f9a11 ", "0b7b4d3c-1f61-4d4e-9a8e-2b6f5c0f9a11", false},
		{"empty", "", "", true},
		{"garbage", "not-a-uuid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := NormalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestDotProduct(t *testing.T) {
	assert.InDelta(t, 11, DotProduct([]float32{1, 2}, []float32{3, 4}), 1e-6)
	assert.Equal(t, float32(0), DotProduct([]float32{1}, []float32{1, 2}))
}

func TestDocumentReport(t *testing.T) {
	doc := &Document{
		Id:              NewID(),
		Status:          StatusError,
		TotalChunks:     4,
		ProcessedChunks: 2,
		Error:           "embedding failure",
	}
	r := doc.Report()
	assert.Equal(t, doc.Id, r.DocumentId)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, 4, r.TotalChunks)
	assert.Equal(t, 2, r.ProcessedChunks)
	assert.Equal(t, "embedding failure", r.Error)
}
