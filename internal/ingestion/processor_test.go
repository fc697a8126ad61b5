package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/extraction"
	"github.com/knoguchi/ingestor/internal/vectorstore"
)

// fakeEngine is an in-memory stand-in for *storage.Engine, exercising only
// the surface ContentProcessor needs.
type fakeEngine struct {
	mu       sync.Mutex
	byHash   map[string]*domain.Content
	contents []*domain.Content
	chunks   []*domain.Chunk
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{byHash: make(map[string]*domain.Content)}
}

func (f *fakeEngine) Transaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

func (f *fakeEngine) GetContentByHash(ctx context.Context, source, hash string) (*domain.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash[source+"|"+hash], nil
}

func (f *fakeEngine) StoreContent(ctx context.Context, tx pgx.Tx, c *domain.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[c.Source+"|"+c.Hash] = c
	f.contents = append(f.contents, c)
	return nil
}

func (f *fakeEngine) StoreChunk(ctx context.Context, tx pgx.Tx, c *domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, c)
	return nil
}

func (f *fakeEngine) StoreEntity(ctx context.Context, tx pgx.Tx, name string, t domain.EntityType, description string) (string, error) {
	return "entity-" + name, nil
}

func (f *fakeEngine) LinkEntityToContent(ctx context.Context, tx pgx.Tx, m *domain.Mention) error {
	return nil
}

// fakeEmbedder is a stub embeddingBackend that returns a fixed-width zero
// vector per text, recording every call it receives.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	dimension int
	err       error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dimension)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dimension }

// fakeVectors is a stub vectorBackend recording EnsureCollection/Upsert
// calls, so augmentWithEmbeddings's wiring to the vectorstore seam can be
// asserted without a live Qdrant.
type fakeVectors struct {
	mu               sync.Mutex
	ensuredCalls     int
	ensuredOwners    []string
	ensuredDimension int
	ensureErr        error
	upsertedOwner    string
	upsertedChunks   []vectorstore.Chunk
	upsertErr        error
}

func (f *fakeVectors) EnsureCollection(ctx context.Context, ownerID string, dimension int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensuredCalls++
	f.ensuredOwners = append(f.ensuredOwners, ownerID)
	f.ensuredDimension = dimension
	return f.ensureErr
}

func (f *fakeVectors) Upsert(ctx context.Context, ownerID string, chunks []vectorstore.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertedOwner = ownerID
	f.upsertedChunks = chunks
	return nil
}

func newTestProcessor(engine *fakeEngine, opts ...Option) *ContentProcessor {
	chunker := NewChunker(ChunkerConfig{MaxChunkSize: 1024, Strategy: StrategySize})
	registry := extraction.NewRegistry()
	return NewContentProcessor(engine, chunker, registry, extraction.Options{}, opts...)
}

func TestProcessContent_DedupShortCircuitsOnMatchingHash(t *testing.T) {
	engine := newFakeEngine()
	p := newTestProcessor(engine)

	data := []byte("hello world")
	first, err := p.ProcessContent(context.Background(), "src-a", data, "a.txt", "owner-1", "doc")
	if err != nil {
		t.Fatalf("first ProcessContent: %v", err)
	}
	if first.Deduplicated {
		t.Fatal("expected first ingest to not be deduplicated")
	}

	second, err := p.ProcessContent(context.Background(), "src-a", data, "a.txt", "owner-1", "doc")
	if err != nil {
		t.Fatalf("second ProcessContent: %v", err)
	}
	if !second.Deduplicated {
		t.Error("expected repeat ingest of identical (source, hash) to short-circuit as deduplicated")
	}
	if len(engine.contents) != 1 {
		t.Errorf("expected only one stored content row, got %d", len(engine.contents))
	}
}

func TestProcessContent_RejectsEmptyContent(t *testing.T) {
	p := newTestProcessor(newFakeEngine())
	_, err := p.ProcessContent(context.Background(), "src-a", nil, "a.txt", "owner-1", "doc")
	if err == nil {
		t.Fatal("expected an error for empty content")
	}
}

func TestProcessContent_WithSemanticSearch_EnsuresCollectionAndUpserts(t *testing.T) {
	engine := newFakeEngine()
	embedder := &fakeEmbedder{dimension: 8}
	vectors := &fakeVectors{}
	p := newTestProcessor(engine, WithSemanticSearch(embedder, vectors))

	data := []byte("a fairly short piece of content to chunk")
	res, err := p.ProcessContent(context.Background(), "src-a", data, "a.txt", "owner-1", "doc")
	if err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}
	if res.ChunkCount == 0 {
		t.Fatal("expected at least one chunk")
	}

	if embedder.calls != 1 {
		t.Errorf("expected EmbedBatch to be called once, got %d", embedder.calls)
	}
	if vectors.ensuredCalls != 1 {
		t.Errorf("expected EnsureCollection to be called once, got %d", vectors.ensuredCalls)
	}
	if len(vectors.ensuredOwners) != 1 || vectors.ensuredOwners[0] != "owner-1" {
		t.Errorf("expected EnsureCollection to be called with owner-1, got %v", vectors.ensuredOwners)
	}
	if vectors.ensuredDimension != embedder.dimension {
		t.Errorf("expected EnsureCollection dimension=%d, got %d", embedder.dimension, vectors.ensuredDimension)
	}
	if vectors.upsertedOwner != "owner-1" {
		t.Errorf("expected Upsert owner-1, got %q", vectors.upsertedOwner)
	}
	if len(vectors.upsertedChunks) != res.ChunkCount {
		t.Errorf("expected %d upserted chunks, got %d", res.ChunkCount, len(vectors.upsertedChunks))
	}
}

func TestProcessContent_EnsureCollectionFailureIsBestEffort(t *testing.T) {
	engine := newFakeEngine()
	embedder := &fakeEmbedder{dimension: 8}
	vectors := &fakeVectors{ensureErr: errors.New("qdrant unreachable")}
	p := newTestProcessor(engine, WithSemanticSearch(embedder, vectors))

	_, err := p.ProcessContent(context.Background(), "src-a", []byte("some content"), "a.txt", "owner-1", "doc")
	if err != nil {
		t.Fatalf("expected ProcessContent to succeed despite EnsureCollection failing, got %v", err)
	}
	if vectors.upsertedOwner != "" {
		t.Error("expected Upsert to never be called once EnsureCollection fails")
	}
}

func TestProcessContent_WithoutSemanticSearch_NeverCallsVectorBackend(t *testing.T) {
	engine := newFakeEngine()
	p := newTestProcessor(engine)

	if _, err := p.ProcessContent(context.Background(), "src-a", []byte("some content"), "a.txt", "owner-1", "doc"); err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}
	if p.embedder != nil || p.vectors != nil {
		t.Error("expected embedder/vectors to stay nil when WithSemanticSearch is never applied")
	}
}
