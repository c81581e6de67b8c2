package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/billow/internal/auth"
	"github.com/dukerupert/billow/internal/database"
	"github.com/dukerupert/billow/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) *store.APIKeyStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewAPIKeyStore(db)
}

func TestRequireAPIKeyMissing(t *testing.T) {
	ks := setupAuthMiddlewareDB(t)

	handler := RequireAPIKey(ks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestRequireAPIKeyInvalid(t *testing.T) {
	ks := setupAuthMiddlewareDB(t)

	handler := RequireAPIKey(ks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer bk_invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAPIKeyValid(t *testing.T) {
	ks := setupAuthMiddlewareDB(t)
	key, plaintext, err := ks.Create(context.Background(), "org-1", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	for _, header := range []string{"Authorization", "X-API-Key"} {
		t.Run(header, func(t *testing.T) {
			var gotAC auth.AuthContext
			handler := RequireAPIKey(ks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ac, ok := auth.FromContext(r.Context())
				if !ok {
					t.Fatal("expected AuthContext in request context")
				}
				gotAC = ac
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/", nil)
			if header == "Authorization" {
				req.Header.Set(header, "Bearer "+plaintext)
			} else {
				req.Header.Set(header, plaintext)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if gotAC.OrganizationID != "org-1" {
				t.Errorf("OrganizationID = %q, want %q", gotAC.OrganizationID, "org-1")
			}
			if gotAC.APIKeyID != key.ID {
				t.Errorf("APIKeyID = %q, want %q", gotAC.APIKeyID, key.ID)
			}
		})
	}
}

func TestRequireAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		want       int
	}{
		{"valid", "s3cret", "s3cret", http.StatusOK},
		{"wrong", "s3cret", "guess", http.StatusUnauthorized},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"disabled", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdminToken(tt.configured)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !auth.IsAdmin(r.Context()) {
					t.Error("expected admin context")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("POST", "/admin/billing/sync", nil)
			if tt.sent != "" {
				req.Header.Set("Authorization", "Bearer "+tt.sent)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
