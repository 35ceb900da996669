package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/fleetworks/fleet-api/internal/auth"
)

// --- Mocks ---

type mockAuthenticator struct {
	users map[string]*auth.UserContext
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*auth.UserContext, error) {
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, assertErr("invalid token")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

// userEcho writes the authenticated user's id, or 500 when there is none.
func userEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(u.Email))
	})
}

func newAuth(t *testing.T, skip bool) *AuthMiddleware {
	return NewAuthMiddleware(&mockAuthenticator{users: map[string]*auth.UserContext{
		"good": {UserID: 2, CompanyID: 3, Email: "ana@fleet.test", Role: auth.RoleManager, TokenType: auth.TokenTypeAPIToken},
	}}, skip, zaptest.NewLogger(t))
}

// --- Auth tests ---

func TestAuth_MissingToken(t *testing.T) {
	handler := newAuth(t, false).Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Unauthenticated.") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestAuth_TokenSources(t *testing.T) {
	handler := newAuth(t, false).Middleware(userEcho(t))

	cases := map[string]func(r *http.Request){
		"bearer":      func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
		"bearer case": func(r *http.Request) { r.Header.Set("Authorization", "bearer good") },
		"api key":     func(r *http.Request) { r.Header.Set("X-API-Key", "good") },
		"query":       func(r *http.Request) { r.URL.RawQuery = "api_token=good" },
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/vehicle-locations/ws", nil)
			set(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK || rec.Body.String() != "ana@fleet.test" {
				t.Fatalf("expected authenticated request, got %d %q", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	handler := newAuth(t, false).Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestAuth_SkipAuthInjectsAdmin(t *testing.T) {
	var got *auth.UserContext
	handler := newAuth(t, true).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.UserFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/vehicles", nil))
	if got == nil || got.Role != auth.RoleAdmin || got.CompanyID != 1 || got.UserID != 1 {
		t.Fatalf("expected development admin, got %+v", got)
	}

	// Each request gets its own copy.
	got.CompanyID = 99
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/vehicles", nil))
	if got.CompanyID != 1 {
		t.Fatalf("development user leaked between requests")
	}
}

// --- Validation tests ---

func TestValidation_RejectsNonJSON(t *testing.T) {
	vm := NewValidationMiddleware(zaptest.NewLogger(t))
	handler := vm.Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/api/trips", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestValidation_AllowsJSONAndReads(t *testing.T) {
	vm := NewValidationMiddleware(zaptest.NewLogger(t))
	handler := vm.Middleware(okHandler(t))

	for _, ct := range []string{"application/json", "application/json; charset=utf-8", ""} {
		req := httptest.NewRequest(http.MethodPut, "/api/trips/1", strings.NewReader(`{"status":"completed"}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("content type %q: expected 200, got %d", ct, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reads are not checked, got %d", rec.Code)
	}
}

func TestValidation_TooLarge(t *testing.T) {
	vm := NewValidationMiddleware(zaptest.NewLogger(t))
	handler := vm.Middleware(okHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/api/trips", strings.NewReader(strings.Repeat("x", maxBodyBytes+1)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
