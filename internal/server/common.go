// Package server provides HTTP middleware shared by the ScoreShift API.
package server

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/ScoreShift/internal/logging"
)

// SlowRequestThreshold is the duration above which TimingMiddleware warns.
const SlowRequestThreshold = 500 * time.Millisecond

// AbsPath returns the absolute path of a file, or the original path if it fails.
func AbsPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// ExposedHeaders are the response headers browsers may read cross-origin.
var ExposedHeaders = []string{
	"X-Request-ID",
	"X-Score-Sha256",
	"X-Score-Blake3",
	"X-Transpose-Semitones",
	"X-Transpose-From-Fifths",
	"X-Transpose-To-Fifths",
	"X-Cache",
}

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	AllowedOrigins []string // List of allowed origins, empty = allow all (*)
}

// CORSMiddleware adds CORS headers to responses with configurable origins.
// If AllowedOrigins is empty, it defaults to "*" (allow all origins).
// Otherwise requests from other origins get no CORS headers and their
// preflight requests are refused.
func CORSMiddleware(cfg CORSConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigin := "*"
		if len(cfg.AllowedOrigins) > 0 {
			allowed := false
			for _, o := range cfg.AllowedOrigins {
				if origin == o {
					allowed = true
					allowedOrigin = origin
					break
				}
			}
			if !allowed {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-API-Key")
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(ExposedHeaders, ", "))

		// Credentials are never allowed together with a wildcard origin.
		if allowedOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TimingMiddleware logs requests slower than SlowRequestThreshold.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if d := time.Since(start); d > SlowRequestThreshold {
			logging.WarnContext(r.Context(), "slow request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", d.Milliseconds(),
			)
		}
	})
}
