package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

type contextKey struct{}

// Caller is the authenticated principal seeded by Auth.
type Caller struct {
	UserID uuid.UUID
	Role   enums.Role
}

// WithCaller stores the caller on ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, caller)
}

// CallerFromContext reports false when Auth never ran or the caller has no id.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(contextKey{}).(Caller)
	if !ok || caller.UserID == uuid.Nil {
		return Caller{}, false
	}
	return caller, true
}
