// Package domain holds the persistence-agnostic data model shared by the
// ingestor core: content, chunks, entities, mentions, and jobs.
package domain

import "time"

// Content is any ingested artifact identified by its (source, hash) pair.
// It is immutable except for Title, Description and Metadata.
type Content struct {
	ID          string
	ContentType string
	Title       string
	Description string
	Source      string
	FilePath    string
	Hash        string
	Size        int64
	// OwnerID is the opaque caller-supplied identifier spec.md's Non-goals
	// scope tenant management down to — no tenant record, just a string.
	OwnerID   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a bounded slice of a Content item, the unit of extraction and FTS
// indexing. (ContentID, ChunkIndex) is unique and chunks form a contiguous
// 0..N-1 sequence per content.
type Chunk struct {
	ID        string
	ContentID string
	Index     int
	Text      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// SearchCache holds a memoized full-text or semantic search result set.
// Entries with ExpiresAt in the past are invisible and may be pruned
// opportunistically.
type SearchCache struct {
	SearchHash string
	Query      string
	Params     map[string]any
	Results    []SearchHit
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SearchHit is one row of a content full-text or semantic search result.
type SearchHit struct {
	ChunkID     string
	ContentID   string
	Title       string
	Description string
	Text        string
	Score       float64
}
