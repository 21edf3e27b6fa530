package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"worklane.org/internal/audit"
	"worklane.org/internal/cache"
	"worklane.org/internal/model"
	"worklane.org/internal/policy"
)

// CreateProjectInput is the payload for project creation under a workspace.
type CreateProjectInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ImageURL    string       `json:"image_url"`
	Members     []MemberSpec `json:"members"`
}

// CreateProject creates a project under a workspace. Creation requires
// mastery of the parent workspace and a roster with exactly one owner.
func (g *Gateway) CreateProject(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID, in CreateProjectInput) (model.ProjectWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	_, wsRole, err := g.workspaceAggregate(w, r, actor, workspaceID)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := policy.CanCreateProject(actor, wsRole); err != nil {
		return model.ProjectWithMembers{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.ProjectWithMembers{}, fmt.Errorf("%w: project name is required", model.ErrBadRequest)
	}
	if _, err := rosterOwner(in.Members); err != nil {
		return model.ProjectWithMembers{}, err
	}

	id := uuid.New()
	members := make([]model.ProjectMember, len(in.Members))
	for i, m := range in.Members {
		members[i] = model.ProjectMember{Project: id, Member: m.User, Role: m.Role}
	}
	p, err := g.db.CreateProject(r.Context(), model.Project{
		ID:          id,
		Workspace:   workspaceID,
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}, members)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	g.refreshProject(w, r, actor, p)
	g.cache.Invalidate(r.Context(), cache.WorkspaceKey(workspaceID))
	_ = audit.LogEvent(r.Context(), "project.created", map[string]any{
		"workspace_id": workspaceID.String(),
		"project_id":   id.String(),
	})
	return p, nil
}

// ViewProject returns the aggregate view. Visibility follows the parent
// workspace: members of the workspace can see all its projects.
func (g *Gateway) ViewProject(w http.ResponseWriter, r *http.Request, id uuid.UUID) (model.ProjectWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	p, _, err := g.projectAggregate(w, r, actor, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	_, wsRole, err := g.workspaceAggregate(w, r, actor, p.Project.Workspace)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := policy.CanViewProject(actor, wsRole); err != nil {
		return model.ProjectWithMembers{}, err
	}
	return p, nil
}

// ListProjects returns the projects under a workspace the caller can see.
func (g *Gateway) ListProjects(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID) ([]model.Project, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return nil, err
	}
	_, wsRole, err := g.workspaceAggregate(w, r, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanViewWorkspace(actor, wsRole); err != nil {
		return nil, err
	}
	return g.db.ListProjects(r.Context(), workspaceID)
}

// UpdateProjectInfo applies a partial update. Project contributors and up
// may edit.
func (g *Gateway) UpdateProjectInfo(w http.ResponseWriter, r *http.Request, id uuid.UUID, upd model.ProjectUpdate) (model.ProjectWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	_, projRole, err := g.projectAggregate(w, r, actor, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := policy.CanUpdateProjectInfo(actor, projRole); err != nil {
		return model.ProjectWithMembers{}, err
	}
	p, err := g.db.UpdateProjectInfo(r.Context(), id, upd)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	g.refreshProject(w, r, actor, p)
	return p, nil
}

// AddProjectMembers adds a batch of members atomically.
func (g *Gateway) AddProjectMembers(w http.ResponseWriter, r *http.Request, id uuid.UUID, specs []MemberSpec) (model.ProjectWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	current, projRole, err := g.projectAggregate(w, r, actor, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := policy.CanManageProjectMembers(actor, projRole); err != nil {
		return model.ProjectWithMembers{}, err
	}
	if len(specs) == 0 {
		return model.ProjectWithMembers{}, fmt.Errorf("%w: member list is empty", model.ErrBadRequest)
	}
	members := make([]model.ProjectMember, len(specs))
	for i, m := range specs {
		if _, err := model.ResourceRoleFromInt(int16(m.Role)); err != nil {
			return model.ProjectWithMembers{}, err
		}
		if m.Role == model.RoleOwner && current.HasOwner() {
			return model.ProjectWithMembers{}, fmt.Errorf("%w: project already has an owner", model.ErrBadRequest)
		}
		members[i] = model.ProjectMember{Project: id, Member: m.User, Role: m.Role}
	}

	p, err := g.db.AddProjectMembers(r.Context(), id, members)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	g.refreshProject(w, r, actor, p)
	_ = audit.LogEvent(r.Context(), "project.members.added", map[string]any{
		"project_id": id.String(),
		"members":    len(members),
	})
	return p, nil
}

// RemoveProjectMember removes one member. Removal is governed by the parent
// workspace role so workspace masters can prune projects they are not in.
func (g *Gateway) RemoveProjectMember(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) (model.ProjectWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	current, _, err := g.projectAggregate(w, r, actor, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	_, wsRole, err := g.workspaceAggregate(w, r, actor, current.Project.Workspace)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := policy.CanRemoveProjectMember(actor, wsRole); err != nil {
		return model.ProjectWithMembers{}, err
	}
	if memberRole, ok := current.MemberRole(userID); ok && memberRole == model.RoleOwner {
		return model.ProjectWithMembers{}, fmt.Errorf("%w: transfer ownership before removing the owner", model.ErrBadRequest)
	}

	p, err := g.db.RemoveProjectMember(r.Context(), id, userID)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	g.refreshProject(w, r, actor, p)
	_ = audit.LogEvent(r.Context(), "project.member.removed", map[string]any{
		"project_id": id.String(),
		"user_id":    userID.String(),
	})
	return p, nil
}

// SetProjectMemberRole changes one member's role while keeping exactly one
// owner.
func (g *Gateway) SetProjectMemberRole(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID, role model.ResourceRole) (model.ProjectWithMembers, error) {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	current, projRole, err := g.projectAggregate(w, r, actor, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := policy.CanManageProjectMembers(actor, projRole); err != nil {
		return model.ProjectWithMembers{}, err
	}
	if _, err := model.ResourceRoleFromInt(int16(role)); err != nil {
		return model.ProjectWithMembers{}, err
	}
	currentRole, isMember := current.MemberRole(userID)
	if !isMember {
		return model.ProjectWithMembers{}, fmt.Errorf("%w: not a project member", model.ErrNotFound)
	}
	if role == model.RoleOwner && currentRole != model.RoleOwner && current.HasOwner() {
		return model.ProjectWithMembers{}, fmt.Errorf("%w: project already has an owner", model.ErrConflict)
	}
	if currentRole == model.RoleOwner && role != model.RoleOwner {
		return model.ProjectWithMembers{}, fmt.Errorf("%w: project must keep an owner", model.ErrBadRequest)
	}

	p, err := g.db.SetProjectMemberRole(r.Context(), id, userID, role)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	g.refreshProject(w, r, actor, p)
	_ = audit.LogEvent(r.Context(), "project.member.role.set", map[string]any{
		"project_id": id.String(),
		"user_id":    userID.String(),
		"role":       role.String(),
	})
	return p, nil
}

// DeleteProject removes the project. Only admins and the workspace owner
// may delete.
func (g *Gateway) DeleteProject(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	actor, _, err := g.sessions.Identity(r)
	if err != nil {
		return err
	}
	current, _, err := g.projectAggregate(w, r, actor, id)
	if err != nil {
		return err
	}
	_, wsRole, err := g.workspaceAggregate(w, r, actor, current.Project.Workspace)
	if err != nil {
		return err
	}
	if err := policy.CanDeleteProject(actor, wsRole); err != nil {
		return err
	}
	if err := g.db.DeleteProject(r.Context(), id); err != nil {
		return err
	}
	g.cache.Invalidate(r.Context(), cache.ProjectKey(id), cache.WorkspaceKey(current.Project.Workspace))
	_ = audit.LogEvent(r.Context(), "project.deleted", map[string]any{"project_id": id.String()})
	return nil
}
