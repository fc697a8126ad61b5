package extraction

import "strings"

// Registry maps a content-type pattern to an Extractor. Lookup order is
// exact match -> category wildcard ("text/*") -> fallback ("generic"),
// grounded on other_examples/97c30145_custodia-labs-sercha-core's
// NormaliserRegistry Get/GetAll/Register/List shape (spec.md §4.3).
// Registration happens once at startup; Registry itself holds no other
// mutable state, so it needs no locking once built.
type Registry struct {
	exact    map[string]Extractor
	wildcard map[string]Extractor
	fallback Extractor
}

// NewRegistry builds an empty registry. Register the fallback via
// RegisterFallback before first use.
func NewRegistry() *Registry {
	return &Registry{
		exact:    make(map[string]Extractor),
		wildcard: make(map[string]Extractor),
	}
}

// Register binds pattern to extractor. pattern is either an exact content
// type ("application/pdf") or a category wildcard ("text/*").
func (r *Registry) Register(pattern string, extractor Extractor) {
	if strings.HasSuffix(pattern, "/*") {
		category := strings.TrimSuffix(pattern, "/*")
		r.wildcard[category] = extractor
		return
	}
	r.exact[pattern] = extractor
}

// RegisterFallback binds the generic extractor used when no other pattern matches.
func (r *Registry) RegisterFallback(extractor Extractor) {
	r.fallback = extractor
}

// Lookup resolves contentType to its Extractor: exact match, then category
// wildcard, then the fallback.
func (r *Registry) Lookup(contentType string) Extractor {
	if e, ok := r.exact[contentType]; ok {
		return e
	}
	if category, _, ok := strings.Cut(contentType, "/"); ok {
		if e, ok := r.wildcard[category]; ok {
			return e
		}
	}
	return r.fallback
}

// NewDefaultRegistry wires the six extractor variants per spec.md §4.3's
// per-content-type pipeline table.
func NewDefaultRegistry(ai AIBackend) *Registry {
	r := NewRegistry()

	r.Register("text/*", &TextExtractor{AI: ai})
	r.Register("application/pdf", &DocumentExtractor{AI: ai})
	r.Register("application/msword", &DocumentExtractor{AI: ai})
	r.Register("application/vnd.openxmlformats-officedocument.wordprocessingml.document", &DocumentExtractor{AI: ai})
	r.Register("text/javascript", &CodeExtractor{AI: ai, Ext: ".js"})
	r.Register("text/typescript", &CodeExtractor{AI: ai, Ext: ".ts"})
	r.Register("text/x-go", &CodeExtractor{AI: ai, Ext: ".go"})
	r.Register("text/x-python", &CodeExtractor{AI: ai, Ext: ".py"})
	r.Register("text/x-java", &CodeExtractor{AI: ai, Ext: ".java"})
	r.Register("text/x-c", &CodeExtractor{AI: ai, Ext: ".c"})
	r.Register("text/x-c++", &CodeExtractor{AI: ai, Ext: ".cpp"})
	r.Register("text/x-ruby", &CodeExtractor{AI: ai, Ext: ".rb"})
	r.Register("text/x-rust", &CodeExtractor{AI: ai, Ext: ".rs"})
	r.Register("image/*", &ImageExtractor{AI: ai})
	r.Register("video/*", &VideoExtractor{})

	r.RegisterFallback(&GenericExtractor{AI: ai})
	return r
}
