// Package vectorstore provides the storage side of the optional
// semantic-search augmentation (SPEC_FULL.md §8): one vector collection per
// owner, embedded chunks upserted into it, and similarity search over it.
package vectorstore

import (
	"context"
)

// Chunk is a content chunk paired with its embedding, ready to upsert.
type Chunk struct {
	ID        string
	ContentID string
	OwnerID   string
	Content   string
	Vector    []float32
	Metadata  map[string]string
}

// SearchResult represents a search result from the vector store
type SearchResult struct {
	ID        string
	ContentID string
	Content   string
	Score     float32
	Metadata  map[string]string
}

// VectorStore defines the interface for vector storage operations. It is
// scoped to exactly what C4's augmentWithEmbeddings and C-search's Searcher
// drive: ensure an owner's collection exists, upsert embedded chunks into it,
// and similarity-search it.
type VectorStore interface {
	// EnsureCollection makes sure ownerID's collection exists with the given
	// vector dimension, creating it on first use and memoizing the check so
	// repeated ingests for the same owner don't re-issue it.
	EnsureCollection(ctx context.Context, ownerID string, dimension int) error

	// Upsert inserts or updates chunks in the vector store
	Upsert(ctx context.Context, ownerID string, chunks []Chunk) error

	// Search performs similarity search using dense vectors
	Search(ctx context.Context, ownerID string, vector []float32, topK int, minScore float32) ([]SearchResult, error)
}
