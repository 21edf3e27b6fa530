package httpapi

import (
	"net/http"
	"strings"

	"worklane.org/internal/auth"
	"worklane.org/internal/model"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}
var publicPrefixes = []string{
	"/v1/auth/invite/",
}

// withIdentity resolves the caller on every protected path and stashes the
// actor in the context for handlers and audit entries. Handlers still go
// through the gateway, which re-resolves the session; this middleware only
// front-loads the 401.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		actor, token, err := a.gw.Identity(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, model.ErrUnauthenticated.Error())
			return
		}
		ctx := auth.ContextWithActor(r.Context(), actor)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
