// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/recoverkit/ingest-gateway/internal/auth"
	"github.com/recoverkit/ingest-gateway/internal/domain"
	"github.com/recoverkit/ingest-gateway/internal/metrics"
	"github.com/recoverkit/ingest-gateway/internal/task"
)

const headerRequestID = "X-Request-Id"

type requestIDContextKey struct{}

var ctxRequestIDKey requestIDContextKey

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(p)
}

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxRequestIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(headerRequestID))
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(headerRequestID, reqID)
			next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), reqID)))
		})
	}
}

// auditTrailMiddleware records every handled request: a structured log line,
// the request counters, and a detached audit row. The row write never touches
// the response; a failed insert is counted and logged inside the runner.
func auditTrailMiddleware(logger *slog.Logger, audit AuditStore, tasks *task.Runner) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			route := routePattern(r)
			metrics.IncRequest(route, r.Method, strconv.Itoa(rec.status))
			metrics.ObserveRequestDuration(duration)

			reqID, _ := requestIDFromContext(r.Context())
			attrs := []any{
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", duration.Milliseconds(),
			}
			identity, authed := auth.IdentityFromContext(r.Context())
			if authed {
				attrs = append(attrs, "caller_id", identity.ID)
			}
			logger.Info("request completed", attrs...)

			if audit == nil || tasks == nil || !auditable(route) {
				return
			}

			meta, _ := json.Marshal(map[string]string{"request_id": reqID})
			entry := domain.AuditEntry{
				Route:      route,
				Method:     r.Method,
				Status:     rec.status,
				DurationMS: duration.Milliseconds(),
				CallerID:   identity.ID,
				TenantID:   identity.TenantID,
				Meta:       meta,
			}
			tasks.Go("audit_insert", func(ctx context.Context) error {
				if err := audit.Insert(ctx, entry); err != nil {
					metrics.IncAuditFailure()
					return err
				}
				return nil
			})
		})
	}
}

// routePattern prefers the matched chi pattern over the raw path so metric
// labels stay low-cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func auditable(route string) bool {
	switch route {
	case "/health", "/healthz", "/metrics", "/version":
		return false
	}
	return true
}
