package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/extraction"
	"github.com/knoguchi/ingestor/internal/ingerrors"
	"github.com/knoguchi/ingestor/internal/storage"
	"github.com/knoguchi/ingestor/internal/vectorstore"
)

// storageEngine is the subset of *storage.Engine the processor needs, so
// tests can substitute a fake (same seam discipline as extraction.AIBackend).
type storageEngine interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	GetContentByHash(ctx context.Context, source, hash string) (*domain.Content, error)
	StoreContent(ctx context.Context, tx pgx.Tx, c *domain.Content) error
	StoreChunk(ctx context.Context, tx pgx.Tx, c *domain.Chunk) error
	StoreEntity(ctx context.Context, tx pgx.Tx, name string, t domain.EntityType, description string) (string, error)
	LinkEntityToContent(ctx context.Context, tx pgx.Tx, m *domain.Mention) error
}

var _ storageEngine = (*storage.Engine)(nil)

// embeddingBackend is the optional semantic-search augmentation's embedding
// side (SPEC_FULL.md §8) — satisfied by internal/embedder.Embedder. Only
// ever set when Config.EmbeddingModel is configured.
type embeddingBackend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// vectorBackend is the optional semantic-search augmentation's storage side —
// satisfied by internal/vectorstore.VectorStore.
type vectorBackend interface {
	EnsureCollection(ctx context.Context, ownerID string, dimension int) error
	Upsert(ctx context.Context, ownerID string, chunks []vectorstore.Chunk) error
}

// ContentProcessor is C4: it drives content-type detection, chunking, and
// per-chunk entity extraction over C1 (storage) and C3 (extraction registry),
// implementing the processContent algorithm of spec.md §4.4.
type ContentProcessor struct {
	storage  storageEngine
	chunker  *Chunker
	registry *extraction.Registry
	opts     extraction.Options

	embedder embeddingBackend
	vectors  vectorBackend
	logger   *slog.Logger
}

// Option configures optional ContentProcessor behavior.
type Option func(*ContentProcessor)

// WithSemanticSearch wires the optional embed+upsert augmentation (SPEC_FULL.md
// §8): every chunk additionally gets embedded and upserted into embedder/
// vectors's owner-scoped collection after the core transaction commits.
func WithSemanticSearch(embedder embeddingBackend, vectors vectorBackend) Option {
	return func(p *ContentProcessor) {
		p.embedder = embedder
		p.vectors = vectors
	}
}

// WithLogger overrides the default logger used to report best-effort
// semantic-search augmentation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *ContentProcessor) { p.logger = logger }
}

// NewContentProcessor wires the collaborators C4 needs.
func NewContentProcessor(engine storageEngine, chunker *Chunker, registry *extraction.Registry, opts extraction.Options, options ...Option) *ContentProcessor {
	p := &ContentProcessor{storage: engine, chunker: chunker, registry: registry, opts: opts, logger: slog.Default()}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Result is what one ProcessContent call reports back to its caller (a batch
// item, in C5, or a direct synchronous ingest call).
type Result struct {
	Content      *domain.Content
	ChunkCount   int
	EntityCount  int
	Deduplicated bool
}

// ProcessContent implements spec.md §4.4's seven-step processContent order:
// hash+source dedup short-circuit, transaction open, insert Content, chunk +
// insert ContentChunks, per-chunk entity extraction + storeEntity +
// linkEntityToContent, commit.
func (p *ContentProcessor) ProcessContent(ctx context.Context, source string, data []byte, filePath, ownerID, title string) (Result, error) {
	if len(data) == 0 {
		return Result{}, ingerrors.New(ingerrors.Validation, "content is empty")
	}

	hash := hashContent(data)

	// Step 1: dedup short-circuit on (source, hash).
	existing, err := p.storage.GetContentByHash(ctx, source, hash)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{Content: existing, Deduplicated: true}, nil
	}

	contentType := DetectContentType(data, filePath)
	text := string(data)
	now := time.Now().UTC()

	content := &domain.Content{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Title:       title,
		Source:      source,
		FilePath:    filePath,
		Hash:        hash,
		Size:        int64(len(data)),
		OwnerID:     ownerID,
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	chunks := p.chunker.Chunk(text)
	entityCount := 0
	storedChunks := make([]*domain.Chunk, 0, len(chunks))

	err = p.storage.Transaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := p.storage.StoreContent(ctx, tx, content); err != nil {
			return err
		}

		extractor := p.registry.Lookup(contentType)

		for _, chunk := range chunks {
			domainChunk := &domain.Chunk{
				ID:        uuid.NewString(),
				ContentID: content.ID,
				Index:     chunk.Index,
				Text:      chunk.Content,
				Metadata:  chunk.Metadata,
				CreatedAt: now,
			}
			if err := p.storage.StoreChunk(ctx, tx, domainChunk); err != nil {
				return err
			}
			storedChunks = append(storedChunks, domainChunk)

			if extractor == nil {
				continue
			}
			result := extractor.Extract(ctx, chunk.Content, contentType, p.opts)
			if !result.Success {
				// Extraction failure on one chunk does not abort the ingest
				// (spec.md §4.3 Failure semantics); the chunk is stored, entities
				// just aren't attached to it.
				continue
			}

			for _, extracted := range result.Entities {
				entityID, err := p.storage.StoreEntity(ctx, tx, extracted.Name, extracted.Type, extracted.Description)
				if err != nil {
					return err
				}
				for _, mention := range extracted.Mentions {
					m := &domain.Mention{
						ID:          uuid.NewString(),
						EntityID:    entityID,
						ContentID:   content.ID,
						ContentType: contentType,
						Relevance:   mention.Relevance,
						Context:     mention.Context,
						Position:    mention.Position,
						CreatedAt:   now,
					}
					if err := p.storage.LinkEntityToContent(ctx, tx, m); err != nil {
						return err
					}
				}
				entityCount++
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if p.embedder != nil && p.vectors != nil {
		p.augmentWithEmbeddings(ctx, content, storedChunks)
	}

	return Result{Content: content, ChunkCount: len(chunks), EntityCount: entityCount}, nil
}

// augmentWithEmbeddings embeds and upserts storedChunks into the owner's
// vector collection (SPEC_FULL.md §8's optional semantic-search path). This
// runs after the core transaction commits and is best-effort: a failure here
// never fails ProcessContent, since no spec.md invariant depends on it.
func (p *ContentProcessor) augmentWithEmbeddings(ctx context.Context, content *domain.Content, chunks []*domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.logger.Warn("semantic-search augmentation: embed failed", "content_id", content.ID, "error", err)
		return
	}

	if err := p.vectors.EnsureCollection(ctx, content.OwnerID, p.embedder.Dimension()); err != nil {
		p.logger.Warn("semantic-search augmentation: ensure collection failed", "owner_id", content.OwnerID, "error", err)
		return
	}

	vsChunks := make([]vectorstore.Chunk, len(chunks))
	for i, c := range chunks {
		vsChunks[i] = vectorstore.Chunk{
			ID:        c.ID,
			ContentID: content.ID,
			OwnerID:   content.OwnerID,
			Content:   c.Text,
			Vector:    vectors[i],
			Metadata:  c.Metadata,
		}
	}
	if err := p.vectors.Upsert(ctx, content.OwnerID, vsChunks); err != nil {
		p.logger.Warn("semantic-search augmentation: upsert failed", "content_id", content.ID, "error", err)
	}
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
