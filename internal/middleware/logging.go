package middleware

import (
	"net/http"
	"time"

	"flashcards-backend/internal/logger"
)

// RequestLogger logs one line per request after it completes.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"request_id", r.Header.Get(RequestIDHeader),
				"remote", r.RemoteAddr,
			}
			if sw.status >= http.StatusInternalServerError {
				log.Warn("http request", kv...)
			} else {
				log.Info("http request", kv...)
			}
		})
	}
}
