// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/recoverkit/ingest-gateway/internal/auth"
)

const healthPath = "/health"
const healthzPath = "/healthz"
const metricsPath = "/metrics"
const versionPath = "/version"

// BearerAuth resolves the caller's bearer token into an identity and stores
// it on the request context. Unauthenticated requests are rejected with a
// normalized 401 body; the gate fails closed, so a resolver error is treated
// like an invalid token, never as an authenticated caller.
//
// /health, /healthz, /metrics, and /version stay open.
func BearerAuth(resolver auth.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("middleware.BearerAuth requires a resolver")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case healthPath, healthzPath, metricsPath, versionPath:
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn("request blocked: missing bearer token",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				unauthorized(w)
				return
			}

			identity, found, err := resolver.Resolve(r.Context(), token)
			if err != nil || !found {
				if err != nil {
					logger.Error("identity resolution failed",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"error", err,
					)
				} else {
					logger.Warn("request blocked: token rejected",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
					)
				}
				unauthorized(w)
				return
			}

			// Preserve the authenticated context on the current request
			// pointer so the outer audit middleware can read the caller
			// after next returns.
			*r = *r.WithContext(auth.WithIdentity(r.Context(), identity))
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
}

func bearerToken(header string) (string, bool) {
	schemeToken := strings.SplitN(header, " ", 2)
	if len(schemeToken) != 2 {
		return "", false
	}
	if !strings.EqualFold(schemeToken[0], "Bearer") {
		return "", false
	}
	if schemeToken[1] == "" {
		return "", false
	}
	return schemeToken[1], true
}
