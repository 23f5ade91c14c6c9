// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/recoverkit/ingest-gateway/internal/auth"
)

type mockResolver struct {
	identity auth.Identity
	found    bool
	err      error
}

func (m *mockResolver) Resolve(context.Context, string) (auth.Identity, bool, error) {
	return m.identity, m.found, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBearerAuth(t *testing.T) {
	logger := discardLogger()

	t.Run("allows health paths without auth", func(t *testing.T) {
		for _, path := range []string{"/health", "/healthz", "/metrics", "/version"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()

			BearerAuth(&mockResolver{}, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("path %s: expected status %d got %d", path, http.StatusOK, rec.Code)
			}
		}
	})

	t.Run("rejects missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/state-checkin", nil)
		rec := httptest.NewRecorder()

		var handlerCalled bool
		BearerAuth(&mockResolver{found: true}, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
		}
		if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
			t.Fatalf("expected WWW-Authenticate header %q got %q", "Bearer", got)
		}
		if handlerCalled {
			t.Fatal("handler must not run for unauthenticated request")
		}
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/state-checkin", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()

		BearerAuth(&mockResolver{found: false}, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("fails closed on resolver error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/state-checkin", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()

		BearerAuth(&mockResolver{err: errors.New("identity service down")}, logger)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}),
		).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected fail-closed 401, got %d", rec.Code)
		}
	})

	t.Run("stores identity on context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/state-checkin", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()

		want := auth.Identity{ID: "user-1", TenantID: "org-1"}
		var got auth.Identity
		BearerAuth(&mockResolver{identity: want, found: true}, logger)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = auth.IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}),
		).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 got %d", rec.Code)
		}
		if got != want {
			t.Fatalf("expected identity %+v got %+v", want, got)
		}
	})
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "", ok: false},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer abc", token: "abc", ok: true},
	}

	for _, tc := range cases {
		token, ok := bearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("bearerToken(%q): expected (%q, %v) got (%q, %v)", tc.header, tc.token, tc.ok, token, ok)
		}
	}
}
