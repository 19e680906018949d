// Package middleware provides HTTP middleware for the import server.
package middleware

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/carimport/internal/core"
	"github.com/JonMunkholm/carimport/internal/logging"
)

// Logger logs one structured line per request.
//
// Log fields: method, path, status, bytes, duration_ms, ip, user (when the
// request was authenticated) and user_agent. The request ID is added by
// logging.FromContext.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		// Auth runs further down the chain and replaces the request context;
		// capture the user through a pointer the inner handler can fill.
		var user string
		r = r.WithContext(withUserSlot(r.Context(), &user))

		next.ServeHTTP(ww, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"bytes", ww.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if user != "" {
			args = append(args, "user", user)
		}

		logger := logging.FromContext(r.Context())
		if ww.status >= http.StatusInternalServerError {
			logger.Error("request", args...)
			return
		}
		logger.Info("request", args...)
	})
}

// RecordUser stores the authenticated user for the request log line.
// It must run after APIKeyAuth.
func RecordUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot := userSlot(r.Context()); slot != nil {
			*slot = core.UsernameFromContext(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code and size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
