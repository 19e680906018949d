package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/carimport/internal/config"
	"github.com/JonMunkholm/carimport/internal/core"
)

// apiKey is one configured credential. Bare keys authenticate as "api".
type apiKey struct {
	user string
	key  []byte
}

func parseAPIKeys(raw []string) []apiKey {
	keys := make([]apiKey, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, key, ok := strings.Cut(entry, ":")
		if !ok || user == "" {
			user, key = "api", entry
		}
		keys = append(keys, apiKey{user: user, key: []byte(key)})
	}
	return keys
}

// APIKeyAuth returns middleware that validates the X-API-Key header. Browsers
// posting the upload form send the key as the HTTP Basic password instead.
//
// Keys are configured as "user:key" pairs; the matching user is stored in the
// request context and stamped on imported rows. If RequireAPIKey is false all
// requests pass through unchanged.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := parseAPIKeys(cfg.APIKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			provided := credential(r)
			if provided == "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="carimport", charset="UTF-8"`)
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			user, ok := matchAPIKey(provided, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			ctx := core.ContextWithUsername(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credential returns the X-API-Key header, else the Basic auth password.
func credential(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if _, pass, ok := r.BasicAuth(); ok {
		return pass
	}
	return ""
}

// matchAPIKey compares against every configured key in constant time and
// returns the user of the matching one.
func matchAPIKey(provided string, keys []apiKey) (string, bool) {
	user := ""
	found := 0
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(provided), k.key) == 1 {
			user = k.user
			found = 1
		}
	}
	return user, found == 1
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
