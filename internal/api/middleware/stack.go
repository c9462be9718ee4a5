// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/auditrun/internal/log"
)

// StackConfig configures the ingress middleware shared by every route.
type StackConfig struct {
	// TracingService names the tracer; empty disables tracing.
	TracingService string
	// QuietPaths are served without access log lines (health checks, scrapes).
	QuietPaths []string
}

// Chain returns the ingress middleware, outermost first:
// Recoverer, RequestID, Metrics, Tracing, access log.
func Chain(cfg StackConfig) []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{Recoverer, RequestID, Metrics()}
	if cfg.TracingService != "" {
		chain = append(chain, Tracing(cfg.TracingService))
	}
	return append(chain, skipPaths(cfg.QuietPaths, log.Middleware()))
}

// NewRouter returns a chi router with Chain(cfg) installed.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Chain(cfg)...)
	return r
}

// skipPaths bypasses mw for requests whose path is in paths.
func skipPaths(paths []string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if len(paths) == 0 {
		return mw
	}
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(paths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
