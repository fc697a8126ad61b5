// Package search implements the optional semantic-search augmentation
// (SPEC_FULL.md §8): embed a query, similarity-search the owner's vector
// collection, and optionally rerank the hits with an LLM cross-encoder. It
// complements C1's searchContentFTS without replacing it — FTS remains the
// spec-required path, this is additive.
package search

import (
	"context"

	"github.com/knoguchi/ingestor/internal/reranker"
	"github.com/knoguchi/ingestor/internal/vectorstore"
)

// Embedder is the subset of embedder.Embedder a query search needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs semantic search over an owner's vector collection, with an
// optional reranking pass.
type Searcher struct {
	embedder Embedder
	vectors  vectorstore.VectorStore
	reranker reranker.Reranker
}

// New builds a Searcher. reranker may be nil, in which case Search returns
// raw vector-similarity order.
func New(embedder Embedder, vectors vectorstore.VectorStore, rr reranker.Reranker) *Searcher {
	return &Searcher{embedder: embedder, vectors: vectors, reranker: rr}
}

// Options controls one Search call.
type Options struct {
	TopK     int
	MinScore float32
}

// DefaultOptions returns TopK=10, MinScore=0.
func DefaultOptions() Options {
	return Options{TopK: 10}
}

// Hit is one semantic search result, with an optional reranker score (-1
// when no reranker is configured).
type Hit struct {
	vectorstore.SearchResult
	RerankerScore float32
}

// Search embeds query, similarity-searches ownerID's collection, and reranks
// the result set when a reranker is configured.
func (s *Searcher) Search(ctx context.Context, ownerID, query string, opts Options) ([]Hit, error) {
	if opts.TopK <= 0 {
		opts = DefaultOptions()
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch before reranking so the reranker has a real candidate pool
	// to reorder, mirroring the teacher's retrieve-then-rerank fan-in shape.
	fetchK := opts.TopK
	if s.reranker != nil {
		fetchK = opts.TopK * 3
	}

	results, err := s.vectors.Search(ctx, ownerID, vector, fetchK, opts.MinScore)
	if err != nil {
		return nil, err
	}

	if s.reranker == nil {
		hits := make([]Hit, len(results))
		for i, r := range results {
			hits[i] = Hit{SearchResult: r, RerankerScore: -1}
		}
		return hits, nil
	}

	scored, err := s.reranker.Rerank(ctx, query, results, opts.TopK)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(scored))
	for i, r := range scored {
		hits[i] = Hit{SearchResult: r.SearchResult, RerankerScore: r.RerankerScore}
	}
	return hits, nil
}
