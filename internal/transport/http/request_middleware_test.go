// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/recoverkit/ingest-gateway/internal/auth"
	"github.com/recoverkit/ingest-gateway/internal/task"
)

func TestRequestIDMiddlewareGeneratesAndPropagatesRequestID(t *testing.T) {
	var gotRequestID string
	h := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := requestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request_id in context")
		}
		gotRequestID = requestID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	respRequestID := rec.Header().Get(headerRequestID)
	if respRequestID == "" {
		t.Fatal("expected X-Request-Id response header")
	}
	if gotRequestID != respRequestID {
		t.Fatalf("expected context request_id %q got %q", respRequestID, gotRequestID)
	}
}

func TestRequestIDMiddlewarePreservesIncomingRequestID(t *testing.T) {
	h := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := requestIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected request_id in context")
		}
		if requestID != "req-fixed-id" {
			t.Fatalf("expected request_id req-fixed-id got %q", requestID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get(headerRequestID); got != "req-fixed-id" {
		t.Fatalf("expected X-Request-Id req-fixed-id got %q", got)
	}
}

func TestAuditTrailMiddlewareRecordsHandledRequest(t *testing.T) {
	audit := &mockAuditStore{}
	tasks := task.NewRunner(discardLogger())

	h := auditTrailMiddleware(discardLogger(), audit, tasks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*r = *r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{ID: "user-9", TenantID: "org-3"}))
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/state-checkin", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tasks.Close(ctx); err != nil {
		t.Fatalf("close runner: %v", err)
	}

	if audit.insertCalls() != 1 {
		t.Fatalf("expected one audit row got %d", audit.insertCalls())
	}
	entry := audit.inserted[0]
	if entry.Route != "/state-checkin" || entry.Method != http.MethodPost {
		t.Fatalf("unexpected route on entry: %+v", entry)
	}
	if entry.Status != http.StatusCreated {
		t.Fatalf("expected recorded status 201 got %d", entry.Status)
	}
	if entry.CallerID != "user-9" || entry.TenantID != "org-3" {
		t.Fatalf("expected caller identity on entry, got %+v", entry)
	}
}

func TestAuditTrailMiddlewareSkipsOperationalEndpoints(t *testing.T) {
	audit := &mockAuditStore{}
	tasks := task.NewRunner(discardLogger())

	h := auditTrailMiddleware(discardLogger(), audit, tasks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/healthz", "/metrics", "/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tasks.Close(ctx); err != nil {
		t.Fatalf("close runner: %v", err)
	}

	if audit.insertCalls() != 0 {
		t.Fatalf("expected no audit rows got %d", audit.insertCalls())
	}
}

func TestStatusRecorderDefaultsTo200OnWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	if _, err := sr.Write([]byte("ok")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if sr.status != http.StatusOK {
		t.Fatalf("expected recorded status 200 got %d", sr.status)
	}

	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusOK {
		t.Fatalf("expected first status to stick, got %d", sr.status)
	}
}
