// Package logging configures log/slog for the server and the CLI.
//
// Loggers obtained through FromContext carry chi's request ID, so every line
// written while handling an upload can be correlated with the request log.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default logger writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupTo(os.Stdout, level, format)
}

// SetupTo installs the default logger writing to w. The CLI logs to stderr so
// that command output on stdout stays machine-readable.
func SetupTo(w io.Writer, level, format string) {
	slog.SetDefault(New(w, level, format))
}

// New builds a logger without installing it.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the default logger, enriched with the request ID when
// ctx belongs to an HTTP request.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a request-aware logger with additional fields.
//
//	log := logging.WithFields(ctx, "import_id", id, "table", "cars")
//	log.Info("import committed", "created", n)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
