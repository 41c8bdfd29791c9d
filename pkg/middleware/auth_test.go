package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/next-dentist/next-dentist-sub003/internal/core/services"
)

func authedServer(t *testing.T) (*httptest.Server, *services.TokenService) {
	t.Helper()
	tokenSvc := services.NewTokenService("test-secret")
	handler := AuthMiddleware(tokenSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(UserIDKey).(string)
		w.Write([]byte(userID))
	}))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, tokenSvc
}

func TestAuthMiddlewareBearerHeader(t *testing.T) {
	srv, tokenSvc := authedServer(t)
	tok, err := tokenSvc.GenerateToken("u1", "u1@example.com", "x")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareQueryFallback(t *testing.T) {
	srv, tokenSvc := authedServer(t)
	tok, err := tokenSvc.GenerateToken("u1", "u1@example.com", "x")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	resp, err := http.Get(srv.URL + "?token=" + tok)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 via query token, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	srv, _ := authedServer(t)

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, http.StatusUnauthorized},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			tt.setup(req)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
