package aiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/knoguchi/ingestor/internal/ingerrors"
)

func TestBuildPrompt_IncludesEntityTypeFilterAndContext(t *testing.T) {
	prompt := buildPrompt(TemplateTextEntitiesCustom, "hello world", Options{
		EntityTypes: []string{"person", "date"},
		Context:     "news article",
	})

	for _, want := range []string{"person, date", "news article", "hello world"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q, got %q", want, prompt)
		}
	}
}

func TestBuildPrompt_CodeTemplateMentionsLanguage(t *testing.T) {
	prompt := buildPrompt(TemplateCode, "func main() {}", Options{Language: "Go"})
	if !strings.Contains(prompt, "written in Go") {
		t.Errorf("expected code template to mention the language, got %q", prompt)
	}
}

func TestBuildPrompt_UnknownTemplateFallsBackToGeneric(t *testing.T) {
	prompt := buildPrompt("nonexistent", "content", Options{})
	if !strings.Contains(prompt, "general-purpose entity extraction system") {
		t.Errorf("expected fallback to the generic template, got %q", prompt)
	}
}

func TestAnalyze_MissingCredentialsShortCircuits(t *testing.T) {
	c := New("http://localhost", "", "model")
	_, err := c.Analyze(context.Background(), "text", TemplateGeneric, Options{})
	if err == nil {
		t.Fatal("expected an error when credential is empty")
	}
	if ingerrors.KindOf(err) != ingerrors.Validation {
		t.Errorf("expected a Validation error, got %v", err)
	}
}

func TestAnalyze_SuccessParsesEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected Authorization header 'Bearer tok', got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entities": []map[string]any{
				{
					"name": "Ada Lovelace",
					"type": "person",
					"mentions": []map[string]any{
						{"context": "Ada Lovelace wrote the first algorithm.", "position": 0, "relevance": 0.9},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "model", WithRetries(0))
	result, err := c.Analyze(context.Background(), "Ada Lovelace wrote the first algorithm.", TemplateTextEntities, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "Ada Lovelace" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAnalyze_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("try again"))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"entities": []map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "model", WithRetries(3))
	_, err := c.Analyze(context.Background(), "text", TemplateGeneric, Options{})
	if err != nil {
		t.Fatalf("expected retry to eventually succeed, got %v", err)
	}
	if atomic.LoadInt32(&attempts) < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestAnalyze_4xxIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "model", WithRetries(3))
	_, err := c.Analyze(context.Background(), "text", TemplateGeneric, Options{})
	if err == nil {
		t.Fatal("expected a 4xx response to surface as an error")
	}
	if ingerrors.KindOf(err) != ingerrors.Corruption {
		t.Errorf("expected a Corruption error for a permanent 4xx failure, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retriable 4xx, got %d", attempts)
	}
}

func TestAnalyze_MalformedJSONIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "model", WithRetries(3))
	_, err := c.Analyze(context.Background(), "text", TemplateGeneric, Options{})
	if err == nil {
		t.Fatal("expected malformed JSON to surface as an error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected exactly 1 attempt for malformed JSON (permanent corruption), got %d", attempts)
	}
}

func TestExtractEntities_PromptCarriesInputText(t *testing.T) {
	var sawPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		sawPrompt, _ = body["prompt"].(string)
		json.NewEncoder(w).Encode(map[string]any{"entities": []map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "model")
	_, err := c.ExtractEntities(context.Background(), "some text", "text/plain", Options{})
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if !strings.Contains(sawPrompt, "some text") {
		t.Errorf("expected prompt to carry the input text, got %q", sawPrompt)
	}
}
