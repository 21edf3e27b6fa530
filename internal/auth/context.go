package auth

import (
	"context"

	"worklane.org/internal/model"
)

type actorContextKey struct{}
type tokenContextKey struct{}

// ContextWithActor attaches the authenticated user snapshot to the context.
func ContextWithActor(ctx context.Context, actor model.PublicUser) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authenticated user from the context.
func ActorFromContext(ctx context.Context) (model.PublicUser, bool) {
	if ctx == nil {
		return model.PublicUser{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*model.PublicUser)
	if !ok || v == nil {
		return model.PublicUser{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw session token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the session token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
