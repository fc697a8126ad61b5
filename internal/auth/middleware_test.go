package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_MissingBearerToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("secret"))
	handler := Middleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("expected wrapped handler to not be called without a bearer token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("secret"))
	handler := Middleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("expected wrapped handler to not be called with an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ValidToken_AttachesOwnerID(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("secret"))
	token, err := manager.GenerateToken("owner-42")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var gotOwnerID string
	handler := Middleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOwnerID = OwnerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotOwnerID != "owner-42" {
		t.Errorf("expected OwnerID 'owner-42', got %q", gotOwnerID)
	}
}

func TestOwnerID_DefaultsToEmptyString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := OwnerID(req.Context()); got != "" {
		t.Errorf("expected empty OwnerID when unset, got %q", got)
	}
}
