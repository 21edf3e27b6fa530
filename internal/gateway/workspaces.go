package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"worklane.org/internal/audit"
	"worklane.org/internal/cache"
	"worklane.org/internal/model"
	"worklane.org/internal/policy"
)

// MemberSpec names a user and the role to grant them.
type MemberSpec struct {
	User uuid.UUID          `json:"user"`
	Role model.ResourceRole `json:"role"`
}

// CreateWorkspaceInput is the payload for workspace creation. The member
// list must be non-empty and contain exactly one owner.
type CreateWorkspaceInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ImageURL    string       `json:"image_url"`
	Members     []MemberSpec `json:"members"`
}

// rosterOwner validates a creation roster and returns the single owner.
func rosterOwner(members []MemberSpec) (uuid.UUID, error) {
	if len(members) == 0 {
		return uuid.Nil, fmt.Errorf("%w: member list is empty", model.ErrBadRequest)
	}
	var owner uuid.UUID
	owners := 0
	for _, m := range members {
		if _, err := model.ResourceRoleFromInt(int16(m.Role)); err != nil {
			return uuid.Nil, err
		}
		if m.Role == model.RoleOwner {
			owners++
			owner = m.User
		}
	}
	if owners != 1 {
		return uuid.Nil, fmt.Errorf("%w: exactly one owner is required, got %d", model.ErrBadRequest, owners)
	}
	return owner, nil
}

// CreateWorkspace creates a workspace with its initial roster in a single
// transaction.
func (g *Gateway) CreateWorkspace(w http.ResponseWriter, r *http.Request, in CreateWorkspaceInput) (model.WorkspaceWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := policy.CanCreateWorkspace(actor); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.WorkspaceWithMembers{}, fmt.Errorf("%w: workspace name is required", model.ErrBadRequest)
	}
	owner, err := rosterOwner(in.Members)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}

	id := uuid.New()
	members := make([]model.WorkspaceMember, len(in.Members))
	for i, m := range in.Members {
		members[i] = model.WorkspaceMember{Workspace: id, Member: m.User, Role: m.Role}
	}
	ws, err := g.db.CreateWorkspace(r.Context(), model.Workspace{
		ID:          id,
		Owner:       owner,
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}, members)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	g.refreshWorkspace(w, r, actor, ws)
	_ = audit.LogEvent(r.Context(), "workspace.created", map[string]any{
		"workspace_id": id.String(),
		"members":      len(members),
	})
	return ws, nil
}

// ViewWorkspace returns the aggregate view for members and admins.
func (g *Gateway) ViewWorkspace(w http.ResponseWriter, r *http.Request, id uuid.UUID) (model.WorkspaceWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	ws, role, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := policy.CanViewWorkspace(actor, role); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	return ws, nil
}

// ViewWorkspaceTeam returns just the member roster, cached on its own key.
func (g *Gateway) ViewWorkspaceTeam(w http.ResponseWriter, r *http.Request, id uuid.UUID) ([]model.MemberInfo, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return nil, err
	}
	_, role, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanViewWorkspace(actor, role); err != nil {
		return nil, err
	}
	return cache.ReadThrough(r.Context(), g.cache, cache.TeamKey(id),
		func(ctx context.Context) ([]model.MemberInfo, error) {
			ws, err := g.db.GetWorkspace(ctx, id)
			if err != nil {
				return nil, err
			}
			return ws.Members, nil
		})
}

// ListWorkspaces returns the workspaces the caller belongs to.
func (g *Gateway) ListWorkspaces(w http.ResponseWriter, r *http.Request) ([]model.Workspace, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return nil, err
	}
	return g.db.ListWorkspacesForUser(r.Context(), actor.ID)
}

// UpdateWorkspaceInfo applies a partial update of name, description and
// image.
func (g *Gateway) UpdateWorkspaceInfo(w http.ResponseWriter, r *http.Request, id uuid.UUID, upd model.WorkspaceUpdate) (model.WorkspaceWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	_, role, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := policy.CanUpdateWorkspaceInfo(actor, role); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	ws, err := g.db.UpdateWorkspaceInfo(r.Context(), id, upd)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	g.refreshWorkspace(w, r, actor, ws)
	return ws, nil
}

// AddWorkspaceMembers adds a batch of members atomically. Granting a second
// owner is refused before the store is touched.
func (g *Gateway) AddWorkspaceMembers(w http.ResponseWriter, r *http.Request, id uuid.UUID, specs []MemberSpec) (model.WorkspaceWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	current, role, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := policy.CanManageWorkspaceMembers(actor, role); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if len(specs) == 0 {
		return model.WorkspaceWithMembers{}, fmt.Errorf("%w: member list is empty", model.ErrBadRequest)
	}
	members := make([]model.WorkspaceMember, len(specs))
	for i, m := range specs {
		if _, err := model.ResourceRoleFromInt(int16(m.Role)); err != nil {
			return model.WorkspaceWithMembers{}, err
		}
		if m.Role == model.RoleOwner && current.HasOwner() {
			return model.WorkspaceWithMembers{}, fmt.Errorf("%w: workspace already has an owner", model.ErrBadRequest)
		}
		members[i] = model.WorkspaceMember{Workspace: id, Member: m.User, Role: m.Role}
	}

	ws, err := g.db.AddWorkspaceMembers(r.Context(), id, members)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	g.refreshWorkspace(w, r, actor, ws)
	g.cache.Invalidate(r.Context(), cache.TeamKey(id))
	_ = audit.LogEvent(r.Context(), "workspace.members.added", map[string]any{
		"workspace_id": id.String(),
		"members":      len(members),
	})
	return ws, nil
}

// RemoveWorkspaceMember removes one member. The owner cannot be removed;
// ownership must be transferred first.
func (g *Gateway) RemoveWorkspaceMember(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) (model.WorkspaceWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	current, role, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := policy.CanManageWorkspaceMembers(actor, role); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if memberRole, ok := current.MemberRole(userID); ok && memberRole == model.RoleOwner {
		return model.WorkspaceWithMembers{}, fmt.Errorf("%w: transfer ownership before removing the owner", model.ErrBadRequest)
	}

	ws, err := g.db.RemoveWorkspaceMember(r.Context(), id, userID)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	g.refreshWorkspace(w, r, actor, ws)
	g.cache.Invalidate(r.Context(), cache.TeamKey(id))
	_ = audit.LogEvent(r.Context(), "workspace.member.removed", map[string]any{
		"workspace_id": id.String(),
		"user_id":      userID.String(),
	})
	return ws, nil
}

// SetWorkspaceMemberRole changes one member's role while keeping exactly one
// owner.
func (g *Gateway) SetWorkspaceMemberRole(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID, role model.ResourceRole) (model.WorkspaceWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	current, actorRole, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := policy.CanManageWorkspaceMembers(actor, actorRole); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if _, err := model.ResourceRoleFromInt(int16(role)); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	currentRole, isMember := current.MemberRole(userID)
	if !isMember {
		return model.WorkspaceWithMembers{}, fmt.Errorf("%w: not a workspace member", model.ErrNotFound)
	}
	if role == model.RoleOwner && currentRole != model.RoleOwner && current.HasOwner() {
		return model.WorkspaceWithMembers{}, fmt.Errorf("%w: workspace already has an owner", model.ErrConflict)
	}
	if currentRole == model.RoleOwner && role != model.RoleOwner {
		return model.WorkspaceWithMembers{}, fmt.Errorf("%w: workspace must keep an owner", model.ErrBadRequest)
	}

	ws, err := g.db.SetWorkspaceMemberRole(r.Context(), id, userID, role)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	g.refreshWorkspace(w, r, actor, ws)
	g.cache.Invalidate(r.Context(), cache.TeamKey(id))
	_ = audit.LogEvent(r.Context(), "workspace.member.role.set", map[string]any{
		"workspace_id": id.String(),
		"user_id":      userID.String(),
		"role":         role.String(),
	})
	return ws, nil
}

// DeleteWorkspace removes the workspace and drops its cache entries.
// Project entries left behind expire on their TTL.
func (g *Gateway) DeleteWorkspace(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return err
	}
	_, role, err := g.workspaceAggregate(w, r, actor, id)
	if err != nil {
		return err
	}
	if err := policy.CanDeleteWorkspace(actor, role); err != nil {
		return err
	}
	if err := g.db.DeleteWorkspace(r.Context(), id); err != nil {
		return err
	}
	g.cache.Invalidate(r.Context(), cache.WorkspaceKey(id), cache.TeamKey(id))
	_ = audit.LogEvent(r.Context(), "workspace.deleted", map[string]any{"workspace_id": id.String()})
	return nil
}
