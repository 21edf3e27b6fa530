package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"worklane.org/internal/audit"
	"worklane.org/internal/auth"
	"worklane.org/internal/cache"
	"worklane.org/internal/ids"
	"worklane.org/internal/model"
	"worklane.org/internal/obs"
	"worklane.org/internal/policy"
)

const inviteTokenLength = 64

// LoginResult is what a successful login hands back to the client: the
// public snapshot, the raw bearer token and its expiry.
type LoginResult struct {
	User      model.PublicUser `json:"user"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Login authenticates by email and password and establishes a session.
// Unknown emails and non-active accounts both answer not-found so the login
// form cannot be used to probe for accounts.
func (g *Gateway) Login(w http.ResponseWriter, r *http.Request, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	user, err := g.db.GetUserByEmail(r.Context(), email)
	if err != nil {
		return LoginResult{}, err
	}
	if user.Status != model.StatusActive {
		return LoginResult{}, fmt.Errorf("%w: user not found", model.ErrNotFound)
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", model.ErrBadRequest)
	}
	subject := user.Public()
	token, exp, err := g.sessions.Establish(w, subject)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: subject, Token: token, ExpiresAt: exp}, nil
}

// Logout drops the session cookies. Already-issued bearer tokens remain
// valid until expiry.
func (g *Gateway) Logout(w http.ResponseWriter) {
	g.sessions.Terminate(w)
}

// InviteUser creates an invited account and emails an invitation link. The
// email is sent off the request path; a delivery failure is logged and the
// invitation can be re-issued.
func (g *Gateway) InviteUser(w http.ResponseWriter, r *http.Request, username, email string, role model.UserRole) (model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := policy.CanInviteUser(actor, role); err != nil {
		return model.PublicUser{}, err
	}
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return model.PublicUser{}, fmt.Errorf("%w: username and email are required", model.ErrBadRequest)
	}

	user, err := g.db.CreateUser(r.Context(), model.User{
		ID:       uuid.New(),
		Role:     role,
		Status:   model.StatusInvited,
		Username: username,
		Email:    email,
	})
	if err != nil {
		return model.PublicUser{}, err
	}

	token := ids.RandomToken(inviteTokenLength)
	cache.WriteThrough(r.Context(), g.cache, cache.InviteTokenKey(token), user.ID)

	_ = audit.LogEvent(r.Context(), "user.invited", map[string]any{
		"user_id": user.ID.String(),
		"role":    role.String(),
	})

	go func(email, name, token string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := g.mailer.SendInvitation(ctx, email, name, token); err != nil {
			obs.Logger().Printf("invite mail to %s failed: %v", email, err)
		}
	}(email, user.Public().Name(), token)

	return user.Public(), nil
}

// CompleteInvitation redeems an invitation token, sets the password and logs
// the new user in. Tokens live only in the cache and expire with it.
func (g *Gateway) CompleteInvitation(w http.ResponseWriter, r *http.Request, token, password string) (LoginResult, error) {
	if token == "" {
		return LoginResult{}, fmt.Errorf("%w: missing invitation token", model.ErrBadRequest)
	}
	userID, err := cache.ReadThrough(r.Context(), g.cache, cache.InviteTokenKey(token),
		func(context.Context) (uuid.UUID, error) {
			return uuid.Nil, fmt.Errorf("%w: invitation expired or unknown", model.ErrNotFound)
		})
	if err != nil {
		return LoginResult{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", model.ErrBadRequest, err)
	}
	user, err := g.db.SetUserPassword(r.Context(), userID, hash, model.StatusActive)
	if err != nil {
		return LoginResult{}, err
	}
	g.cache.Invalidate(r.Context(), cache.InviteTokenKey(token))

	subject := user.Public()
	rawToken, exp, err := g.sessions.Establish(w, subject)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: subject, Token: rawToken, ExpiresAt: exp}, nil
}
