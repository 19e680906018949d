package core

import "context"

type contextKey string

const ctxKeyUsername contextKey = "import_user"

// ContextWithUsername records the importing user for row stamping.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxKeyUsername, username)
}

// UsernameFromContext extracts the importing user from context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUsername).(string); ok {
		return v
	}
	return ""
}
