package gateway

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"worklane.org/internal/audit"
	"worklane.org/internal/model"
	"worklane.org/internal/policy"
)

// Me returns the caller's own profile, refreshed from the store of record so
// a stale token snapshot does not linger.
func (g *Gateway) Me(w http.ResponseWriter, r *http.Request) (model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.PublicUser{}, err
	}
	user, err := g.db.GetUser(r.Context(), actor.ID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// ViewUser returns a profile. Non-admins can only see themselves; anything
// else answers not-found.
func (g *Gateway) ViewUser(w http.ResponseWriter, r *http.Request, id uuid.UUID) (model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := policy.CanViewUser(actor, id); err != nil {
		return model.PublicUser{}, err
	}
	user, err := g.db.GetUser(r.Context(), id)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// ListUsers returns the directory page for managers and admins.
func (g *Gateway) ListUsers(w http.ResponseWriter, r *http.Request, limit, offset int) ([]model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return nil, err
	}
	if err := policy.CanListUsers(actor); err != nil {
		return nil, err
	}
	users, err := g.db.ListUsers(r.Context(), limit, offset)
	if err != nil {
		return nil, err
	}
	res := make([]model.PublicUser, len(users))
	for i, u := range users {
		res[i] = u.Public()
	}
	return res, nil
}

// UpdateUser applies a partial profile update.
func (g *Gateway) UpdateUser(w http.ResponseWriter, r *http.Request, id uuid.UUID, upd model.UserUpdate) (model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := policy.CanUpdateUser(actor, id); err != nil {
		return model.PublicUser{}, err
	}
	user, err := g.db.UpdateUser(r.Context(), id, upd)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

// SetUserRole changes a user's global role. The new role can never exceed
// the actor's own.
func (g *Gateway) SetUserRole(w http.ResponseWriter, r *http.Request, id uuid.UUID, role model.UserRole) (model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := policy.CanSetUserRole(actor, role); err != nil {
		return model.PublicUser{}, err
	}
	user, err := g.db.SetUserRole(r.Context(), id, role)
	if err != nil {
		return model.PublicUser{}, err
	}
	_ = audit.LogEvent(r.Context(), "user.role.set", map[string]any{
		"user_id": id.String(),
		"role":    role.String(),
	})
	return user.Public(), nil
}

// SetUserStatus suspends or reactivates an account. Deletion goes through
// DeleteUser; the invited and password-set states are lifecycle-internal.
func (g *Gateway) SetUserStatus(w http.ResponseWriter, r *http.Request, id uuid.UUID, status model.UserStatus) (model.PublicUser, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.PublicUser{}, err
	}
	if err := policy.CanSetUserStatus(actor); err != nil {
		return model.PublicUser{}, err
	}
	if status != model.StatusActive && status != model.StatusSuspended {
		return model.PublicUser{}, fmt.Errorf("%w: status must be active or suspended", model.ErrBadRequest)
	}
	user, err := g.db.SetUserStatus(r.Context(), id, status)
	if err != nil {
		return model.PublicUser{}, err
	}
	_ = audit.LogEvent(r.Context(), "user.status.set", map[string]any{
		"user_id": id.String(),
		"status":  status.String(),
	})
	return user.Public(), nil
}

// DeleteUser soft-deletes an account. Deleting yourself also ends the
// session.
func (g *Gateway) DeleteUser(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return err
	}
	if err := policy.CanDeleteUser(actor, id); err != nil {
		return err
	}
	if err := g.db.DeleteUser(r.Context(), id); err != nil {
		return err
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"user_id": id.String()})
	if actor.ID == id {
		g.sessions.Terminate(w)
	}
	return nil
}
