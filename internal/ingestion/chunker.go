// Package ingestion handles document processing: content-type detection,
// byte-based chunking, and pipeline orchestration for the ContentProcessor (C4).
package ingestion

import (
	"regexp"
	"strings"
)

// Strategy is one of the four chunking disciplines named in spec.md §4.4.
type Strategy string

const (
	StrategySize      Strategy = "size"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
	StrategyToken     Strategy = "token"
)

// ChunkerConfig controls chunk boundaries. Sizes are in bytes (not words or
// tokens) per spec.md §4.4 — a deliberate departure from the teacher's
// word-counting chunker (knoguchi-rag's internal/ingestion/chunker.go),
// required because spec.md defines maxChunkSize/chunkOverlap in bytes.
type ChunkerConfig struct {
	MaxChunkSize int
	ChunkOverlap int
	Strategy     Strategy
}

// DefaultChunkerConfig matches spec.md's defaults: maxChunkSize=4MiB,
// chunkOverlap=max(256, 10% of max), strategy=size.
func DefaultChunkerConfig() ChunkerConfig {
	const maxSize = 4 * 1024 * 1024
	return ChunkerConfig{
		MaxChunkSize: maxSize,
		ChunkOverlap: defaultOverlap(maxSize),
		Strategy:     StrategySize,
	}
}

func defaultOverlap(maxSize int) int {
	tenPercent := maxSize / 10
	if tenPercent > 256 {
		return tenPercent
	}
	return 256
}

// Chunk is one bounded slice of content, prior to being persisted as a
// domain.Chunk (which additionally carries a ContentID and timestamp).
type Chunk struct {
	Content  string
	Index    int
	Metadata map[string]string
}

// Chunker splits content into Chunks per its configured Strategy.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker applies config, filling in defaults for zero-valued fields.
func NewChunker(config ChunkerConfig) *Chunker {
	def := DefaultChunkerConfig()
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = def.MaxChunkSize
	}
	if config.ChunkOverlap <= 0 {
		config.ChunkOverlap = defaultOverlap(config.MaxChunkSize)
	}
	if config.Strategy == "" {
		config.Strategy = def.Strategy
	}
	return &Chunker{config: config}
}

// Chunk splits content according to the configured strategy. Empty content
// produces zero chunks (spec.md §4.4 invariant).
func (c *Chunker) Chunk(content string) []Chunk {
	if len(content) == 0 {
		return nil
	}

	switch c.config.Strategy {
	case StrategyParagraph:
		return c.chunkParagraph(content)
	case StrategySentence:
		return c.chunkSentence(content)
	case StrategyToken:
		// Token budgeting approximates 1 token ≈ 4 bytes (spec.md §4.4); since
		// MaxChunkSize/ChunkOverlap are already byte-denominated, the token
		// strategy applies the identical byte-window discipline as size.
		return c.chunkSize(content)
	default:
		return c.chunkSize(content)
	}
}

// chunkSize splits at byte offsets, copying the last ChunkOverlap bytes of
// each chunk into the next one (spec.md §4.4 "size" rule).
func (c *Chunker) chunkSize(content string) []Chunk {
	maxSize := c.config.MaxChunkSize
	overlap := c.config.ChunkOverlap
	if overlap >= maxSize {
		overlap = maxSize / 2
	}

	var chunks []Chunk
	start := 0
	idx := 0
	for start < len(content) {
		end := start + maxSize
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, Chunk{Content: content[start:end], Index: idx, Metadata: map[string]string{"strategy": string(StrategySize)}})
		idx++
		if end >= len(content) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

var paragraphSplitRE = regexp.MustCompile(`\n{2,}`)

// chunkParagraph splits on blank lines, packing consecutive paragraphs into a
// chunk up to MaxChunkSize; an oversized single paragraph recursively falls
// back to sentence splitting (spec.md §4.4 "paragraph" rule).
func (c *Chunker) chunkParagraph(content string) []Chunk {
	paragraphs := paragraphSplitRE.Split(content, -1)
	var chunks []Chunk
	var current strings.Builder
	idx := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Content: current.String(), Index: idx, Metadata: map[string]string{"strategy": string(StrategyParagraph)}})
		idx++
		current.Reset()
	}

	for _, p := range paragraphs {
		if p == "" {
			continue
		}
		if len(p) > c.config.MaxChunkSize {
			flush()
			for _, sub := range c.chunkSentence(p) {
				sub.Index = idx
				sub.Metadata = map[string]string{"strategy": string(StrategyParagraph), "fallback": string(StrategySentence)}
				chunks = append(chunks, sub)
				idx++
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len("\n\n")+len(p) > c.config.MaxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return addOverlap(chunks, c.config.ChunkOverlap)
}

var sentenceBoundaryRE = regexp.MustCompile(`[.!?]+["')\]]?\s+`)

// abbreviations are excluded from sentence-boundary matches by a post-hoc
// check, matching the teacher chunker's isAbbreviation list.
var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "dr.": true, "inc.": true, "ltd.": true,
	"etc.": true, "e.g.": true, "i.e.": true, "vs.": true, "st.": true,
	"no.": true, "vol.": true, "pg.": true,
}

// splitSentences splits s into sentences, preserving the terminator, and
// skipping boundaries that land on a known abbreviation.
func splitSentences(s string) []string {
	idxs := sentenceBoundaryRE.FindAllStringIndex(s, -1)
	var sentences []string
	start := 0
	for _, m := range idxs {
		candidate := s[start:m[1]]
		lastWord := lastWordBefore(s, m[0]+1)
		if abbreviations[strings.ToLower(lastWord)] {
			continue
		}
		sentences = append(sentences, candidate)
		start = m[1]
	}
	if start < len(s) {
		sentences = append(sentences, s[start:])
	}
	return sentences
}

func lastWordBefore(s string, end int) string {
	if end > len(s) {
		end = len(s)
	}
	start := end
	for start > 0 && s[start-1] != ' ' && s[start-1] != '\n' {
		start--
	}
	return s[start:end]
}

// chunkSentence groups sentences into chunks up to MaxChunkSize; overlap is
// the last whole sentence(s) of the previous chunk, up to ChunkOverlap bytes
// (spec.md §4.4 "sentence" rule). An oversized single sentence is hard-split
// at byte offsets as a last resort.
func (c *Chunker) chunkSentence(content string) []Chunk {
	sentences := splitSentences(content)
	var chunks []Chunk
	var current strings.Builder
	idx := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Content: current.String(), Index: idx, Metadata: map[string]string{"strategy": string(StrategySentence)}})
		idx++
		current.Reset()
	}

	for _, sent := range sentences {
		if len(sent) > c.config.MaxChunkSize {
			flush()
			for _, hard := range c.chunkSize(sent) {
				hard.Index = idx
				hard.Metadata = map[string]string{"strategy": string(StrategySentence), "fallback": string(StrategySize)}
				chunks = append(chunks, hard)
				idx++
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len(sent) > c.config.MaxChunkSize {
			flush()
		}
		current.WriteString(sent)
	}
	flush()
	return addOverlap(chunks, c.config.ChunkOverlap)
}

// addOverlap prepends up to overlapBytes of the trailing content of each
// chunk onto the following chunk, for the paragraph/sentence strategies
// (chunkSize inlines its own overlap during the split pass).
func addOverlap(chunks []Chunk, overlapBytes int) []Chunk {
	if overlapBytes <= 0 {
		return chunks
	}
	for i := len(chunks) - 1; i > 0; i-- {
		prev := chunks[i-1].Content
		start := len(prev) - overlapBytes
		if start < 0 {
			start = 0
		}
		chunks[i].Content = prev[start:] + chunks[i].Content
	}
	return chunks
}
