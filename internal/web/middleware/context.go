package middleware

import "context"

type slotKey struct{}

func withUserSlot(ctx context.Context, user *string) context.Context {
	return context.WithValue(ctx, slotKey{}, user)
}

func userSlot(ctx context.Context) *string {
	s, _ := ctx.Value(slotKey{}).(*string)
	return s
}
