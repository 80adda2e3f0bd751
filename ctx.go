package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var payloadCtxKey = &contextKey{"payload"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithPayloadContext sets the verified TokenPayload in the given context
func WithPayloadContext(r context.Context, payload TokenPayload) context.Context {
	return context.WithValue(r, payloadCtxKey, payload)
}

// PayloadFromContext extracts the TokenPayload from the standard context
func PayloadFromContext(ctx context.Context) (TokenPayload, bool) {
	raw, ok := ctx.Value(payloadCtxKey).(TokenPayload)
	return raw, ok
}

// SubjectFromRouter resolves the authenticated user id from the router
// context, zero if the route was not protected.
func SubjectFromRouter(ctx router.Context, key string) (int64, bool) {
	if key == "" {
		key = "user"
	}
	payload, err := GetRouterSession(ctx, key)
	if err != nil {
		return 0, false
	}
	return payload.SubjectID, true
}
