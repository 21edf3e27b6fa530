package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"worklane.org/internal/auth"
	"worklane.org/internal/model"
)

const (
	tokenCookie          = "worklane_token"
	workspacePermsCookie = "workspace_permissions"
	projectPermsCookie   = "project_permissions"
	updateMarkersCookie  = "workspace_updates"

	// The scheme prefix match is exact. "bearer" or "BEARER" is rejected.
	bearerPrefix = "Bearer "

	minCookieSecret = 32
)

// Store manages the browser-facing session state: the token cookie, the
// per-resource permission maps and the workspace update markers. Permission
// cookies are signed with a separate secret so a tampered role map fails to
// decode instead of granting access.
type Store struct {
	codec  *auth.TokenCodec
	cookie *securecookie.SecureCookie
	maxAge time.Duration
}

// NewStore builds a session store around the token codec and the cookie
// signing secret.
func NewStore(codec *auth.TokenCodec, cookieSecret []byte) (*Store, error) {
	if codec == nil {
		return nil, errors.New("session: token codec is required")
	}
	if len(cookieSecret) < minCookieSecret {
		return nil, fmt.Errorf("session: cookie secret must be at least %d bytes", minCookieSecret)
	}
	sc := securecookie.New(cookieSecret, nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(auth.DefaultTokenTTL / time.Second))
	return &Store{
		codec:  codec,
		cookie: sc,
		maxAge: auth.DefaultTokenTTL,
	}, nil
}

// Identity resolves the caller from the request. The session cookie wins;
// the Authorization header is the fallback for non-browser clients. The raw
// token is returned alongside the subject for downstream propagation.
func (s *Store) Identity(r *http.Request) (model.PublicUser, string, error) {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		subject, verr := s.codec.Verify(c.Value)
		if verr != nil {
			return model.PublicUser{}, "", fmt.Errorf("%w: %v", model.ErrUnauthenticated, verr)
		}
		return subject, c.Value, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return model.PublicUser{}, "", fmt.Errorf("%w: no session cookie or bearer token", model.ErrUnauthenticated)
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return model.PublicUser{}, "", fmt.Errorf("%w: malformed authorization header", model.ErrUnauthenticated)
	}
	token := header[len(bearerPrefix):]
	subject, err := s.codec.Verify(token)
	if err != nil {
		return model.PublicUser{}, "", fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}
	return subject, token, nil
}

// Establish issues a fresh token for the subject and sets the session cookie.
// The raw token is returned so API clients can also use the bearer header.
func (s *Store) Establish(w http.ResponseWriter, subject model.PublicUser) (string, time.Time, error) {
	token, exp, err := s.codec.Issue(subject)
	if err != nil {
		return "", time.Time{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.maxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, exp, nil
}

// Terminate expires every session cookie. Issued bearer tokens stay valid
// until their expiry; there is no server-side revocation list.
func (s *Store) Terminate(w http.ResponseWriter) {
	for _, name := range []string{tokenCookie, workspacePermsCookie, projectPermsCookie, updateMarkersCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// ResourceRole reads the caller's cached role for a resource. A missing
// cookie, an undecodable cookie or an absent entry all resolve to
// RoleUnknown; a stale or broken permission map must never fail a request,
// only deny it.
func (s *Store) ResourceRole(r *http.Request, scope model.Scope, id uuid.UUID) model.ResourceRole {
	perms := s.readPermissions(r, scope)
	v, ok := perms[id]
	if !ok {
		return model.RoleUnknown
	}
	role, err := model.ResourceRoleFromInt(v)
	if err != nil {
		return model.RoleUnknown
	}
	return role
}

// SetResourceRole records the caller's role for a resource in the signed
// permission cookie, overwriting any previous entry.
func (s *Store) SetResourceRole(w http.ResponseWriter, r *http.Request, scope model.Scope, id uuid.UUID, role model.ResourceRole) error {
	perms := s.readPermissions(r, scope)
	perms[id] = int16(role)
	return s.writeCookie(w, permsCookieName(scope), perms)
}

// UpdateMarker returns the caller's last-seen update marker for a workspace.
func (s *Store) UpdateMarker(r *http.Request, workspaceID uuid.UUID) (string, bool) {
	markers := s.readMarkers(r)
	m, ok := markers[workspaceID]
	return m, ok
}

// SetUpdateMarker records the update marker for a workspace in the signed
// markers cookie.
func (s *Store) SetUpdateMarker(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID, marker string) error {
	markers := s.readMarkers(r)
	markers[workspaceID] = marker
	return s.writeCookie(w, updateMarkersCookie, markers)
}

func (s *Store) readPermissions(r *http.Request, scope model.Scope) map[uuid.UUID]int16 {
	perms := make(map[uuid.UUID]int16)
	c, err := r.Cookie(permsCookieName(scope))
	if err != nil {
		return perms
	}
	if err := s.cookie.Decode(permsCookieName(scope), c.Value, &perms); err != nil {
		return make(map[uuid.UUID]int16)
	}
	return perms
}

func (s *Store) readMarkers(r *http.Request) map[uuid.UUID]string {
	markers := make(map[uuid.UUID]string)
	c, err := r.Cookie(updateMarkersCookie)
	if err != nil {
		return markers
	}
	if err := s.cookie.Decode(updateMarkersCookie, c.Value, &markers); err != nil {
		return make(map[uuid.UUID]string)
	}
	return markers
}

func (s *Store) writeCookie(w http.ResponseWriter, name string, value any) error {
	encoded, err := s.cookie.Encode(name, value)
	if err != nil {
		return fmt.Errorf("session: encode %s cookie: %w", name, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(s.maxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func permsCookieName(scope model.Scope) string {
	if scope == model.ScopeProject {
		return projectPermsCookie
	}
	return workspacePermsCookie
}
