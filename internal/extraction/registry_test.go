package extraction

import (
	"context"
	"testing"
)

type stubExtractor struct{ name string }

func (s *stubExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	return Result{Success: true}
}

func TestRegistry_ExactMatchWinsOverWildcard(t *testing.T) {
	r := NewRegistry()
	exact := &stubExtractor{name: "exact"}
	wildcard := &stubExtractor{name: "wildcard"}
	r.Register("application/pdf", exact)
	r.Register("application/*", wildcard)

	got := r.Lookup("application/pdf")
	if got != Extractor(exact) {
		t.Error("expected exact match to win over wildcard")
	}
}

func TestRegistry_WildcardFallsBackWhenNoExactMatch(t *testing.T) {
	r := NewRegistry()
	wildcard := &stubExtractor{name: "wildcard"}
	r.Register("text/*", wildcard)

	got := r.Lookup("text/markdown")
	if got != Extractor(wildcard) {
		t.Error("expected wildcard match for an unregistered exact type")
	}
}

func TestRegistry_FallbackWhenNothingMatches(t *testing.T) {
	r := NewRegistry()
	fallback := &stubExtractor{name: "fallback"}
	r.RegisterFallback(fallback)

	got := r.Lookup("application/octet-stream")
	if got != Extractor(fallback) {
		t.Error("expected fallback extractor when nothing else matches")
	}
}

func TestNewDefaultRegistry_RoutesKnownContentTypes(t *testing.T) {
	r := NewDefaultRegistry(nil)

	tests := []struct {
		contentType string
		wantNil     bool
	}{
		{"text/plain", false},
		{"application/pdf", false},
		{"text/x-go", false},
		{"image/png", false},
		{"application/octet-stream", false}, // falls back to generic
	}
	for _, tt := range tests {
		got := r.Lookup(tt.contentType)
		if (got == nil) != tt.wantNil {
			t.Errorf("Lookup(%q): nil=%v, want nil=%v", tt.contentType, got == nil, tt.wantNil)
		}
	}
}
