// Package gateway is the authorization front of the service. Every operation
// follows the same sequence: resolve the caller's identity, obtain the
// aggregate view from cache or the store of record, evaluate the policy
// rules, refresh the session's cached roles, then apply the mutation and
// push the fresh aggregate back through the cache.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"worklane.org/internal/cache"
	"worklane.org/internal/model"
	"worklane.org/internal/session"
)

// Database is the store-of-record surface the gateway depends on.
type Database interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (model.User, error)
	SetUserRole(ctx context.Context, id uuid.UUID, role model.UserRole) (model.User, error)
	SetUserStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (model.User, error)
	SetUserPassword(ctx context.Context, id uuid.UUID, hash string, status model.UserStatus) (model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	CreateWorkspace(ctx context.Context, w model.Workspace, members []model.WorkspaceMember) (model.WorkspaceWithMembers, error)
	GetWorkspace(ctx context.Context, id uuid.UUID) (model.WorkspaceWithMembers, error)
	ListWorkspacesForUser(ctx context.Context, userID uuid.UUID) ([]model.Workspace, error)
	UpdateWorkspaceInfo(ctx context.Context, id uuid.UUID, upd model.WorkspaceUpdate) (model.WorkspaceWithMembers, error)
	AddWorkspaceMembers(ctx context.Context, id uuid.UUID, members []model.WorkspaceMember) (model.WorkspaceWithMembers, error)
	RemoveWorkspaceMember(ctx context.Context, id, userID uuid.UUID) (model.WorkspaceWithMembers, error)
	SetWorkspaceMemberRole(ctx context.Context, id, userID uuid.UUID, role model.ResourceRole) (model.WorkspaceWithMembers, error)
	DeleteWorkspace(ctx context.Context, id uuid.UUID) error
	WorkspaceMarker(ctx context.Context, id uuid.UUID) (time.Time, error)

	CreateProject(ctx context.Context, p model.Project, members []model.ProjectMember) (model.ProjectWithMembers, error)
	GetProject(ctx context.Context, id uuid.UUID) (model.ProjectWithMembers, error)
	ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]model.Project, error)
	UpdateProjectInfo(ctx context.Context, id uuid.UUID, upd model.ProjectUpdate) (model.ProjectWithMembers, error)
	AddProjectMembers(ctx context.Context, id uuid.UUID, members []model.ProjectMember) (model.ProjectWithMembers, error)
	RemoveProjectMember(ctx context.Context, id, userID uuid.UUID) (model.ProjectWithMembers, error)
	SetProjectMemberRole(ctx context.Context, id, userID uuid.UUID, role model.ResourceRole) (model.ProjectWithMembers, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
}

// Mailer delivers invitation emails.
type Mailer interface {
	SendInvitation(ctx context.Context, email, name, token string) error
}

type Gateway struct {
	db       Database
	sessions *session.Store
	cache    *cache.Coordinator
	mailer   Mailer
}

func New(db Database, sessions *session.Store, coordinator *cache.Coordinator, mailer Mailer) *Gateway {
	return &Gateway{db: db, sessions: sessions, cache: coordinator, mailer: mailer}
}

// Identity exposes session resolution for the authentication middleware.
func (g *Gateway) Identity(r *http.Request) (model.PublicUser, string, error) {
	return g.sessions.Identity(r)
}

// marker formats an update time as the freshness marker sessions carry.
// RFC 3339 with fixed-width fractional seconds keeps string comparison
// consistent with time comparison.
func marker(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// workspaceAggregate loads the workspace view honoring the session's
// freshness marker, and refreshes the session's cached role and marker.
// The cache is consulted only after the workspace's current marker is read
// from the store of record and found to match the session's; any mismatch
// or absence falls through to a full source fetch. The returned role is
// RoleUnknown for non-members.
func (g *Gateway) workspaceAggregate(w http.ResponseWriter, r *http.Request, actor model.PublicUser, id uuid.UUID) (model.WorkspaceWithMembers, model.ResourceRole, error) {
	held, _ := g.sessions.UpdateMarker(r, id)
	ws, mk, err := cache.ReadThroughMarked(r.Context(), g.cache, cache.WorkspaceKey(id), held,
		func(ctx context.Context) (string, error) {
			t, err := g.db.WorkspaceMarker(ctx, id)
			if err != nil {
				return "", err
			}
			return marker(t), nil
		},
		func(ctx context.Context) (model.WorkspaceWithMembers, string, error) {
			ws, err := g.db.GetWorkspace(ctx, id)
			if err != nil {
				return model.WorkspaceWithMembers{}, "", err
			}
			return ws, marker(ws.Workspace.UpdatedAt), nil
		})
	if err != nil {
		return model.WorkspaceWithMembers{}, model.RoleUnknown, err
	}
	role, isMember := ws.MemberRole(actor.ID)
	if isMember {
		_ = g.sessions.SetResourceRole(w, r, model.ScopeWorkspace, id, role)
	}
	_ = g.sessions.SetUpdateMarker(w, r, id, mk)
	return ws, role, nil
}

// projectAggregate loads the project view and refreshes the session's cached
// project role.
func (g *Gateway) projectAggregate(w http.ResponseWriter, r *http.Request, actor model.PublicUser, id uuid.UUID) (model.ProjectWithMembers, model.ResourceRole, error) {
	p, err := cache.ReadThrough(r.Context(), g.cache, cache.ProjectKey(id),
		func(ctx context.Context) (model.ProjectWithMembers, error) {
			return g.db.GetProject(ctx, id)
		})
	if err != nil {
		return model.ProjectWithMembers{}, model.RoleUnknown, err
	}
	role, isMember := p.MemberRole(actor.ID)
	if isMember {
		_ = g.sessions.SetResourceRole(w, r, model.ScopeProject, id, role)
	}
	return p, role, nil
}

// refreshWorkspace pushes a freshly mutated aggregate through the cache and
// the session. Cache and cookie failures are tolerated; the TTL bounds how
// long a skipped refresh can stay stale.
func (g *Gateway) refreshWorkspace(w http.ResponseWriter, r *http.Request, actor model.PublicUser, ws model.WorkspaceWithMembers) {
	mk := marker(ws.Workspace.UpdatedAt)
	cache.WriteThroughMarked(r.Context(), g.cache, cache.WorkspaceKey(ws.Workspace.ID), mk, ws)
	if role, ok := ws.MemberRole(actor.ID); ok {
		_ = g.sessions.SetResourceRole(w, r, model.ScopeWorkspace, ws.Workspace.ID, role)
	}
	_ = g.sessions.SetUpdateMarker(w, r, ws.Workspace.ID, mk)
}

// refreshProject pushes a freshly mutated project aggregate through the
// cache. The session's workspace marker is left alone: the project's own
// timestamp is not the workspace marker of record, and mutations that do
// affect the workspace bump its row inside the same store transaction, so
// the next workspace read re-resolves against the source on its own.
func (g *Gateway) refreshProject(w http.ResponseWriter, r *http.Request, actor model.PublicUser, p model.ProjectWithMembers) {
	cache.WriteThrough(r.Context(), g.cache, cache.ProjectKey(p.Project.ID), p)
	if role, ok := p.MemberRole(actor.ID); ok {
		_ = g.sessions.SetResourceRole(w, r, model.ScopeProject, p.Project.ID, role)
	}
}
