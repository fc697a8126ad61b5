package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/qdrant/go-client/qdrant"
)

// ensuredTTL bounds how long EnsureCollection trusts its own cache before
// re-checking Qdrant, mirroring storage.Engine's entity-cache TTL idiom
// (internal/storage/storage.go) rather than trusting a collection forever —
// an owner's collection could be dropped out-of-band by an operator.
const ensuredTTL = 30 * time.Minute

// QdrantStore implements VectorStore using Qdrant
type QdrantStore struct {
	client *qdrant.Client

	// ensured memoizes which owner collections are known to already exist,
	// so a busy ingestor doesn't re-issue CreateCollection/CollectionExists
	// on every single processContent call for the same owner.
	ensured *lru.LRU[string, struct{}]
}

// NewQdrantStore creates a new Qdrant vector store client
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:  client,
		ensured: lru.NewLRU[string, struct{}](1024, nil, ensuredTTL),
	}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// collectionName returns the collection name for an owner
func (s *QdrantStore) collectionName(ownerID string) string {
	return fmt.Sprintf("owner_%s", ownerID)
}

// EnsureCollection makes ownerID's collection exist, consulting the
// in-memory cache before falling back to a live CollectionExists/
// CreateCollection round trip.
func (s *QdrantStore) EnsureCollection(ctx context.Context, ownerID string, dimension int) error {
	if _, ok := s.ensured.Get(ownerID); ok {
		return nil
	}

	name := s.collectionName(ownerID)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	s.ensured.Add(ownerID, struct{}{})
	return nil
}

// Upsert inserts or updates chunks in the vector store
func (s *QdrantStore) Upsert(ctx context.Context, ownerID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	name := s.collectionName(ownerID)

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]*qdrant.Value{
			"document_id": qdrant.NewValueString(chunk.ContentID),
			"content":     qdrant.NewValueString(chunk.Content),
		}
		for k, v := range chunk.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Payload: payload,
			Vectors: qdrant.NewVectors(chunk.Vector...),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// Search performs similarity search
func (s *QdrantStore) Search(ctx context.Context, ownerID string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	name := s.collectionName(ownerID)

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(float32(minScore)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		result := SearchResult{
			ID:       point.Id.GetUuid(),
			Score:    point.Score,
			Metadata: make(map[string]string),
		}

		if payload := point.Payload; payload != nil {
			if docID, ok := payload["document_id"]; ok {
				result.ContentID = docID.GetStringValue()
			}
			if content, ok := payload["content"]; ok {
				result.Content = content.GetStringValue()
			}
			for k, v := range payload {
				if k != "document_id" && k != "content" {
					result.Metadata[k] = v.GetStringValue()
				}
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
