package web

// errors.go provides unified error responses for the web layer.
//
// Every error is logged with its technical text and the request ID, then
// mapped through core.MapError to a message, an action and a support code.
// API requests receive JSON; browser requests receive the HTML error page.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/carimport/internal/core"
	"github.com/JonMunkholm/carimport/internal/logging"
)

// Request errors raised by the handlers themselves.
var (
	errRateLimited  = errors.New("rate limit exceeded")
	errNoFile       = errors.New("no file provided")
	errFileTooLarge = errors.New("file too large")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError picks the status code for err and writes the response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondStatus(w, r, statusFor(err), err)
}

// respondStatus logs err and writes a user-facing response with status.
func respondStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if wantsJSON(r) {
		writeJSONStatus(w, status, ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorPage(msg).Render(r.Context(), w); err != nil {
		logger.Error("render error page", "error", err)
	}
}

// statusFor maps importer and request errors to HTTP status codes.
func statusFor(err error) int {
	var missing *core.MissingColumnsError
	switch {
	case errors.Is(err, core.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errNoFile), errors.Is(err, errInvalidOption):
		return http.StatusBadRequest
	case errors.As(err, &missing),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrFileUnreadable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON reports whether the client expects a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
