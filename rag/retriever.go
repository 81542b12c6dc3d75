package rag

import (
	"context"
	"fmt"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/storage"
)

// Retriever finds the passages of a document most similar to a question.
type Retriever struct {
	coordinator *embedding.Coordinator
	store       *storage.DualStore
}

// NewRetriever creates a Retriever.
func NewRetriever(coordinator *embedding.Coordinator, store *storage.DualStore) (*Retriever, error) {
	if coordinator == nil {
		return nil, ErrCoordinatorRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	return &Retriever{coordinator: coordinator, store: store}, nil
}

// Retrieve embeds question and returns up to limit passages of documentID,
// best first.
func (r *Retriever) Retrieve(ctx context.Context, documentID core.ID, question string, limit int) ([]*core.SearchResult, error) {
	vector, err := r.coordinator.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	return r.store.Search(ctx, vector, documentID, limit)
}
