// Package extraction implements the EntityExtractorRegistry and its
// per-content-type extractors (C3): pluggable AI-backed extraction with a
// rule-based regex fallback, shared normalization, merge, and filtering.
package extraction

import (
	"context"
	"time"

	"github.com/knoguchi/ingestor/internal/domain"
)

// Options configures a single extractor invocation (spec.md §4.3).
type Options struct {
	EntityTypes         []string
	Context             string
	Language            string
	ConfidenceThreshold float64
	MaxEntities         int
}

// DefaultOptions matches spec.md's defaults: confidenceThreshold=0.5, maxEntities=50.
func DefaultOptions() Options {
	return Options{ConfidenceThreshold: 0.5, MaxEntities: 50}
}

// Stats is attached to every ExtractResult.
type Stats struct {
	ProcessingTimeMs int64
	EntityCount      int
}

// Result is what every extractor returns. Individual extractor errors never
// crash the pipeline — Success=false with Error set is a normal outcome that
// the batch records on the item (spec.md §4.3 Failure semantics).
type Result struct {
	Entities []domain.ExtractedEntity
	Success  bool
	Error    error
	Stats    Stats
}

// Extractor is the single capability every content-type variant implements —
// a closed set of variants (text, code, document, image, video, generic)
// rather than a class hierarchy, per spec.md §9's flatten-to-one-capability
// design note.
type Extractor interface {
	Extract(ctx context.Context, content, contentType string, opts Options) Result
}

// timed runs fn and wraps its return in a Result with Stats populated.
func timed(fn func() ([]domain.ExtractedEntity, error)) Result {
	start := time.Now()
	entities, err := fn()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Success: false, Error: err, Stats: Stats{ProcessingTimeMs: elapsed}}
	}
	return Result{Entities: entities, Success: true, Stats: Stats{ProcessingTimeMs: elapsed, EntityCount: len(entities)}}
}
