package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knoguchi/ingestor/internal/ingerrors"
)

func TestAllowedOriginsOrWildcard(t *testing.T) {
	if got := allowedOriginsOrWildcard(nil); len(got) != 1 || got[0] != "*" {
		t.Errorf("expected wildcard default for empty origins, got %v", got)
	}
	origins := []string{"https://example.com"}
	if got := allowedOriginsOrWildcard(origins); len(got) != 1 || got[0] != "https://example.com" {
		t.Errorf("expected configured origins to pass through, got %v", got)
	}
}

func TestPaginationParams_Defaults(t *testing.T) {
	limit, offset := paginationParams(map[string][]string{})
	if limit != 50 || offset != 0 {
		t.Errorf("expected defaults limit=50 offset=0, got limit=%d offset=%d", limit, offset)
	}
}

func TestPaginationParams_ParsesValidValues(t *testing.T) {
	limit, offset := paginationParams(map[string][]string{"limit": {"10"}, "offset": {"20"}})
	if limit != 10 || offset != 20 {
		t.Errorf("expected limit=10 offset=20, got limit=%d offset=%d", limit, offset)
	}
}

func TestPaginationParams_IgnoresInvalidValues(t *testing.T) {
	limit, offset := paginationParams(map[string][]string{"limit": {"not-a-number"}, "offset": {"-5"}})
	if limit != 50 || offset != 0 {
		t.Errorf("expected fallback to defaults on invalid input, got limit=%d offset=%d", limit, offset)
	}
}

func TestFirstOf(t *testing.T) {
	q := map[string][]string{"key": {"a", "b"}}
	if got := firstOf(q, "key"); got != "a" {
		t.Errorf("expected first value 'a', got %q", got)
	}
	if got := firstOf(q, "missing"); got != "" {
		t.Errorf("expected empty string for missing key, got %q", got)
	}
}

func TestWriteError_MapsErrorKindsToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind     ingerrors.Kind
		wantCode int
	}{
		{ingerrors.Validation, http.StatusBadRequest},
		{ingerrors.NotFound, http.StatusNotFound},
		{ingerrors.Conflict, http.StatusConflict},
		{ingerrors.Transient, http.StatusBadGateway},
		{ingerrors.Upstream, http.StatusBadGateway},
		{ingerrors.Fatal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, ingerrors.New(tt.kind, "boom"))
		if rec.Code != tt.wantCode {
			t.Errorf("kind %s: expected status %d, got %d", tt.kind, tt.wantCode, rec.Code)
		}
	}
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"ok": "true"})
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthCheckHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadinessCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	readinessCheckHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
