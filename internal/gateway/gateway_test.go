package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"worklane.org/internal/auth"
	"worklane.org/internal/cache"
	"worklane.org/internal/model"
	"worklane.org/internal/session"
)

var (
	testTokenSecret  = []byte("0123456789abcdef0123456789abcdef")
	testCookieSecret = []byte("fedcba9876543210fedcba9876543210")
)

// fakeDB is an in-memory Database that counts aggregate fetches so tests can
// assert cache behavior.
type fakeDB struct {
	mu               sync.Mutex
	users            map[uuid.UUID]model.User
	workspaces       map[uuid.UUID]model.WorkspaceWithMembers
	projects         map[uuid.UUID]model.ProjectWithMembers
	workspaceFetches int
	projectFetches   int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:      make(map[uuid.UUID]model.User),
		workspaces: make(map[uuid.UUID]model.WorkspaceWithMembers),
		projects:   make(map[uuid.UUID]model.ProjectWithMembers),
	}
}

func notFound(what string) error { return fmt.Errorf("%w: %s", model.ErrNotFound, what) }

func (f *fakeDB) CreateUser(_ context.Context, u model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return model.User{}, fmt.Errorf("%w: duplicate user", model.ErrConflict)
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeDB) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, notFound("user")
	}
	return u, nil
}

func (f *fakeDB) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, notFound("user")
}

func (f *fakeDB) ListUsers(_ context.Context, _, _ int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.User
	for _, u := range f.users {
		if u.Status != model.StatusDeleted {
			res = append(res, u)
		}
	}
	return res, nil
}

func (f *fakeDB) UpdateUser(_ context.Context, id uuid.UUID, upd model.UserUpdate) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, notFound("user")
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return u, nil
}

func (f *fakeDB) SetUserRole(_ context.Context, id uuid.UUID, role model.UserRole) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, notFound("user")
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return u, nil
}

func (f *fakeDB) SetUserStatus(_ context.Context, id uuid.UUID, status model.UserStatus) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, notFound("user")
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return u, nil
}

func (f *fakeDB) SetUserPassword(_ context.Context, id uuid.UUID, hash string, status model.UserStatus) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, notFound("user")
	}
	u.PasswordHash = hash
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return u, nil
}

func (f *fakeDB) DeleteUser(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Status == model.StatusDeleted {
		return notFound("user")
	}
	u.Status = model.StatusDeleted
	f.users[id] = u
	return nil
}

func (f *fakeDB) memberInfoLocked(userID uuid.UUID, role model.ResourceRole) (model.MemberInfo, error) {
	u, ok := f.users[userID]
	if !ok {
		return model.MemberInfo{}, notFound("member user")
	}
	return model.MemberInfo{User: u.Public(), Role: role}, nil
}

func (f *fakeDB) CreateWorkspace(_ context.Context, w model.Workspace, members []model.WorkspaceMember) (model.WorkspaceWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	ws := model.WorkspaceWithMembers{Workspace: w}
	for _, m := range members {
		info, err := f.memberInfoLocked(m.Member, m.Role)
		if err != nil {
			return model.WorkspaceWithMembers{}, err
		}
		ws.Members = append(ws.Members, info)
	}
	ws.Workspace.MemberCount = len(ws.Members)
	f.workspaces[w.ID] = ws
	return copyWorkspace(ws), nil
}

func copyWorkspace(ws model.WorkspaceWithMembers) model.WorkspaceWithMembers {
	out := ws
	out.Members = append([]model.MemberInfo(nil), ws.Members...)
	return out
}

func (f *fakeDB) GetWorkspace(_ context.Context, id uuid.UUID) (model.WorkspaceWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaceFetches++
	ws, ok := f.workspaces[id]
	if !ok {
		return model.WorkspaceWithMembers{}, notFound("workspace")
	}
	return copyWorkspace(ws), nil
}

func (f *fakeDB) ListWorkspacesForUser(_ context.Context, userID uuid.UUID) ([]model.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.Workspace
	for _, ws := range f.workspaces {
		if _, ok := ws.MemberRole(userID); ok {
			res = append(res, ws.Workspace)
		}
	}
	return res, nil
}

func (f *fakeDB) UpdateWorkspaceInfo(_ context.Context, id uuid.UUID, upd model.WorkspaceUpdate) (model.WorkspaceWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return model.WorkspaceWithMembers{}, notFound("workspace")
	}
	if upd.Name != nil {
		ws.Workspace.Name = *upd.Name
	}
	if upd.Description != nil {
		ws.Workspace.Description = *upd.Description
	}
	if upd.ImageURL != nil {
		ws.Workspace.ImageURL = *upd.ImageURL
	}
	ws.Workspace.UpdatedAt = time.Now().UTC()
	f.workspaces[id] = ws
	return copyWorkspace(ws), nil
}

func (f *fakeDB) AddWorkspaceMembers(_ context.Context, id uuid.UUID, members []model.WorkspaceMember) (model.WorkspaceWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return model.WorkspaceWithMembers{}, notFound("workspace")
	}
	// All-or-nothing: validate the whole batch before mutating.
	added := make([]model.MemberInfo, 0, len(members))
	for _, m := range members {
		if _, exists := ws.MemberRole(m.Member); exists {
			return model.WorkspaceWithMembers{}, fmt.Errorf("%w: already a member", model.ErrConflict)
		}
		info, err := f.memberInfoLocked(m.Member, m.Role)
		if err != nil {
			return model.WorkspaceWithMembers{}, err
		}
		added = append(added, info)
	}
	ws = copyWorkspace(ws)
	ws.Members = append(ws.Members, added...)
	ws.Workspace.MemberCount = len(ws.Members)
	ws.Workspace.UpdatedAt = time.Now().UTC()
	f.workspaces[id] = ws
	return copyWorkspace(ws), nil
}

func (f *fakeDB) RemoveWorkspaceMember(_ context.Context, id, userID uuid.UUID) (model.WorkspaceWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return model.WorkspaceWithMembers{}, notFound("workspace")
	}
	ws = copyWorkspace(ws)
	for i, m := range ws.Members {
		if m.User.ID == userID {
			ws.Members = append(ws.Members[:i], ws.Members[i+1:]...)
			ws.Workspace.MemberCount = len(ws.Members)
			ws.Workspace.UpdatedAt = time.Now().UTC()
			f.workspaces[id] = ws
			return copyWorkspace(ws), nil
		}
	}
	return model.WorkspaceWithMembers{}, notFound("member")
}

func (f *fakeDB) SetWorkspaceMemberRole(_ context.Context, id, userID uuid.UUID, role model.ResourceRole) (model.WorkspaceWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return model.WorkspaceWithMembers{}, notFound("workspace")
	}
	ws = copyWorkspace(ws)
	for i, m := range ws.Members {
		if m.User.ID == userID {
			ws.Members[i].Role = role
			ws.Workspace.UpdatedAt = time.Now().UTC()
			f.workspaces[id] = ws
			return copyWorkspace(ws), nil
		}
	}
	return model.WorkspaceWithMembers{}, notFound("member")
}

func (f *fakeDB) WorkspaceMarker(_ context.Context, id uuid.UUID) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return time.Time{}, notFound("workspace")
	}
	return ws.Workspace.UpdatedAt, nil
}

func (f *fakeDB) DeleteWorkspace(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[id]; !ok {
		return notFound("workspace")
	}
	delete(f.workspaces, id)
	return nil
}

func copyProject(p model.ProjectWithMembers) model.ProjectWithMembers {
	out := p
	out.Members = append([]model.MemberInfo(nil), p.Members...)
	return out
}

func (f *fakeDB) CreateProject(_ context.Context, p model.Project, members []model.ProjectMember) (model.ProjectWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	agg := model.ProjectWithMembers{Project: p}
	for _, m := range members {
		info, err := f.memberInfoLocked(m.Member, m.Role)
		if err != nil {
			return model.ProjectWithMembers{}, err
		}
		agg.Members = append(agg.Members, info)
	}
	agg.Project.MemberCount = len(agg.Members)
	f.projects[p.ID] = agg
	if ws, ok := f.workspaces[p.Workspace]; ok {
		ws.Workspace.UpdatedAt = now
		f.workspaces[p.Workspace] = ws
	}
	return copyProject(agg), nil
}

func (f *fakeDB) GetProject(_ context.Context, id uuid.UUID) (model.ProjectWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectFetches++
	p, ok := f.projects[id]
	if !ok {
		return model.ProjectWithMembers{}, notFound("project")
	}
	return copyProject(p), nil
}

func (f *fakeDB) ListProjects(_ context.Context, workspaceID uuid.UUID) ([]model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.Project
	for _, p := range f.projects {
		if p.Project.Workspace == workspaceID {
			res = append(res, p.Project)
		}
	}
	return res, nil
}

func (f *fakeDB) UpdateProjectInfo(_ context.Context, id uuid.UUID, upd model.ProjectUpdate) (model.ProjectWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return model.ProjectWithMembers{}, notFound("project")
	}
	if upd.Name != nil {
		p.Project.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Project.Description = *upd.Description
	}
	if upd.ImageURL != nil {
		p.Project.ImageURL = *upd.ImageURL
	}
	p.Project.UpdatedAt = time.Now().UTC()
	f.projects[id] = p
	return copyProject(p), nil
}

func (f *fakeDB) AddProjectMembers(_ context.Context, id uuid.UUID, members []model.ProjectMember) (model.ProjectWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return model.ProjectWithMembers{}, notFound("project")
	}
	added := make([]model.MemberInfo, 0, len(members))
	for _, m := range members {
		if _, exists := p.MemberRole(m.Member); exists {
			return model.ProjectWithMembers{}, fmt.Errorf("%w: already a member", model.ErrConflict)
		}
		info, err := f.memberInfoLocked(m.Member, m.Role)
		if err != nil {
			return model.ProjectWithMembers{}, err
		}
		added = append(added, info)
	}
	p = copyProject(p)
	p.Members = append(p.Members, added...)
	p.Project.MemberCount = len(p.Members)
	p.Project.UpdatedAt = time.Now().UTC()
	f.projects[id] = p
	return copyProject(p), nil
}

func (f *fakeDB) RemoveProjectMember(_ context.Context, id, userID uuid.UUID) (model.ProjectWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return model.ProjectWithMembers{}, notFound("project")
	}
	p = copyProject(p)
	for i, m := range p.Members {
		if m.User.ID == userID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			p.Project.MemberCount = len(p.Members)
			p.Project.UpdatedAt = time.Now().UTC()
			f.projects[id] = p
			return copyProject(p), nil
		}
	}
	return model.ProjectWithMembers{}, notFound("member")
}

func (f *fakeDB) SetProjectMemberRole(_ context.Context, id, userID uuid.UUID, role model.ResourceRole) (model.ProjectWithMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return model.ProjectWithMembers{}, notFound("project")
	}
	p = copyProject(p)
	for i, m := range p.Members {
		if m.User.ID == userID {
			p.Members[i].Role = role
			p.Project.UpdatedAt = time.Now().UTC()
			f.projects[id] = p
			return copyProject(p), nil
		}
	}
	return model.ProjectWithMembers{}, notFound("member")
}

func (f *fakeDB) DeleteProject(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return notFound("project")
	}
	delete(f.projects, id)
	return nil
}

type fakeMailer struct {
	sent chan string
}

func newFakeMailer() *fakeMailer { return &fakeMailer{sent: make(chan string, 4)} }

func (m *fakeMailer) SendInvitation(_ context.Context, _, _, token string) error {
	m.sent <- token
	return nil
}

func newTestGateway(t *testing.T) (*Gateway, *fakeDB, *fakeMailer) {
	t.Helper()
	codec, err := auth.NewTokenCodec(testTokenSecret)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	sessions, err := session.NewStore(codec, testCookieSecret)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	db := newFakeDB()
	mailer := newFakeMailer()
	g := New(db, sessions, cache.NewCoordinator(cache.NewMemoryKV(64, 24*time.Hour)), mailer)
	return g, db, mailer
}

// seedUser registers an active user directly in the fake store.
func seedUser(t *testing.T, db *fakeDB, username string, role model.UserRole) model.User {
	t.Helper()
	hash, err := auth.HashPassword("s3cret-" + username)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u, err := db.CreateUser(context.Background(), model.User{
		ID:           uuid.New(),
		Role:         role,
		Status:       model.StatusActive,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// requestAs returns a request authenticated as the user, carrying the cookie
// jar accumulated across previous responses, newest first.
func requestAs(t *testing.T, g *Gateway, u model.User, prev ...*httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/workspaces", nil)
	seen := make(map[string]bool)
	for _, rec := range prev {
		if rec == nil {
			continue
		}
		// Within one response the last Set-Cookie per name wins, as in a
		// real user agent; across responses the newest recorder wins.
		latest := make(map[string]*http.Cookie)
		var order []string
		for _, c := range rec.Result().Cookies() {
			if seen[c.Name] {
				continue
			}
			if _, ok := latest[c.Name]; !ok {
				order = append(order, c.Name)
			}
			latest[c.Name] = c
		}
		for _, name := range order {
			req.AddCookie(latest[name])
			seen[name] = true
		}
	}
	if !seen["worklane_token"] {
		rec := httptest.NewRecorder()
		if _, _, err := g.sessions.Establish(rec, u.Public()); err != nil {
			t.Fatalf("Establish: %v", err)
		}
		for _, c := range rec.Result().Cookies() {
			if !seen[c.Name] {
				req.AddCookie(c)
			}
		}
	}
	return req
}

// seedWorkspace creates a workspace owned by owner with optional extra
// members, bypassing the gateway.
func seedWorkspace(t *testing.T, db *fakeDB, owner model.User, extra ...model.WorkspaceMember) model.WorkspaceWithMembers {
	t.Helper()
	id := uuid.New()
	members := append([]model.WorkspaceMember{
		{Workspace: id, Member: owner.ID, Role: model.RoleOwner},
	}, extra...)
	ws, err := db.CreateWorkspace(context.Background(), model.Workspace{
		ID:    id,
		Owner: owner.ID,
		Name:  "platform",
	}, members)
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	return ws
}

func TestNonMemberViewThenMembershipGrantsAccess(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	reviewer := seedUser(t, db, "rita", model.UserReviewer)
	ws := seedWorkspace(t, db, owner)

	// Not a member: the workspace must look nonexistent.
	rec := httptest.NewRecorder()
	_, err := g.ViewWorkspace(rec, requestAs(t, g, reviewer, nil), ws.Workspace.ID)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member, got %v", err)
	}

	// Owner adds them as viewer.
	ownerRec := httptest.NewRecorder()
	if _, err := g.AddWorkspaceMembers(ownerRec, requestAs(t, g, owner, nil), ws.Workspace.ID, []MemberSpec{
		{User: reviewer.ID, Role: model.RoleViewer},
	}); err != nil {
		t.Fatalf("AddWorkspaceMembers: %v", err)
	}

	// Same request now succeeds and populates the session's role map.
	rec2 := httptest.NewRecorder()
	got, err := g.ViewWorkspace(rec2, requestAs(t, g, reviewer, nil), ws.Workspace.ID)
	if err != nil {
		t.Fatalf("ViewWorkspace after membership: %v", err)
	}
	if got.Workspace.MemberCount != 2 {
		t.Fatalf("unexpected member count: %d", got.Workspace.MemberCount)
	}
	followUp := requestAs(t, g, reviewer, rec2)
	if role := g.sessions.ResourceRole(followUp, model.ScopeWorkspace, ws.Workspace.ID); role != model.RoleViewer {
		t.Fatalf("expected session role Viewer, got %v", role)
	}
}

func TestManagerWithoutProjectRoleCannotUpdateProject(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	manager := seedUser(t, db, "max", model.UserManager)
	ws := seedWorkspace(t, db, owner, model.WorkspaceMember{Member: manager.ID, Role: model.RoleViewer})

	projID := uuid.New()
	if _, err := db.CreateProject(context.Background(), model.Project{
		ID:        projID,
		Workspace: ws.Workspace.ID,
		Name:      "billing",
	}, []model.ProjectMember{{Project: projID, Member: owner.ID, Role: model.RoleOwner}}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	name := "renamed"
	rec := httptest.NewRecorder()
	_, err := g.UpdateProjectInfo(rec, requestAs(t, g, manager, nil), projID, model.ProjectUpdate{Name: &name})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestViewAndMutateErrorShapesDiffer(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	stake := seedUser(t, db, "sam", model.UserContributor)
	outsider := seedUser(t, db, "out", model.UserContributor)
	ws := seedWorkspace(t, db, owner, model.WorkspaceMember{Member: stake.ID, Role: model.RoleStakeholder})

	rec := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, outsider, nil), ws.Workspace.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("view denial must be ErrNotFound, got %v", err)
	}

	name := "renamed"
	rec = httptest.NewRecorder()
	_, err := g.UpdateWorkspaceInfo(rec, requestAs(t, g, stake, nil), ws.Workspace.ID, model.WorkspaceUpdate{Name: &name})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("mutate denial must be ErrUnauthorized, got %v", err)
	}
}

func TestMutationWritesThroughWithoutExtraFetch(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	ws := seedWorkspace(t, db, owner)

	rec := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}
	afterFirstView := db.workspaceFetches

	name := "renamed"
	rec2 := httptest.NewRecorder()
	if _, err := g.UpdateWorkspaceInfo(rec2, requestAs(t, g, owner, rec), ws.Workspace.ID, model.WorkspaceUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateWorkspaceInfo: %v", err)
	}

	rec3 := httptest.NewRecorder()
	got, err := g.ViewWorkspace(rec3, requestAs(t, g, owner, rec2), ws.Workspace.ID)
	if err != nil {
		t.Fatalf("ViewWorkspace after update: %v", err)
	}
	if got.Workspace.Name != "renamed" {
		t.Fatalf("read-through returned stale name %q", got.Workspace.Name)
	}
	if db.workspaceFetches != afterFirstView {
		t.Fatalf("expected no extra source fetch, got %d -> %d", afterFirstView, db.workspaceFetches)
	}
}

func TestStaleCacheBypassedAfterMarkerAdvance(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	ws := seedWorkspace(t, db, owner)

	// Warm the cache, then mutate the store behind the cache's back and
	// advance only the session marker, as a lost write-through would.
	rec := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}
	name := "renamed"
	fresh, err := db.UpdateWorkspaceInfo(context.Background(), ws.Workspace.ID, model.WorkspaceUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateWorkspaceInfo: %v", err)
	}
	markerRec := httptest.NewRecorder()
	if err := g.sessions.SetUpdateMarker(markerRec, requestAs(t, g, owner, rec), ws.Workspace.ID, marker(fresh.Workspace.UpdatedAt)); err != nil {
		t.Fatalf("SetUpdateMarker: %v", err)
	}

	rec2 := httptest.NewRecorder()
	got, err := g.ViewWorkspace(rec2, requestAs(t, g, owner, markerRec), ws.Workspace.ID)
	if err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}
	if got.Workspace.Name != "renamed" {
		t.Fatalf("marked read served a stale aggregate: %q", got.Workspace.Name)
	}
}

func TestSupersededAggregateNotServedToFreshSession(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	ws := seedWorkspace(t, db, owner)

	// Warm the cache.
	rec := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}

	// Another node mutates the store of record and its cache write-through
	// is lost.
	name := "renamed"
	if _, err := db.UpdateWorkspaceInfo(context.Background(), ws.Workspace.ID, model.WorkspaceUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateWorkspaceInfo: %v", err)
	}

	// A session holding no marker must be answered from the source, not the
	// superseded cache entry.
	rec2 := httptest.NewRecorder()
	got, err := g.ViewWorkspace(rec2, requestAs(t, g, owner, nil), ws.Workspace.ID)
	if err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}
	if got.Workspace.Name != "renamed" {
		t.Fatalf("served an aggregate the store of record superseded: %q", got.Workspace.Name)
	}
}

func TestProjectMutationKeepsWorkspaceMarkerConsistent(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	ws := seedWorkspace(t, db, owner)

	projID := uuid.New()
	if _, err := db.CreateProject(context.Background(), model.Project{
		ID:        projID,
		Workspace: ws.Workspace.ID,
		Name:      "billing",
	}, []model.ProjectMember{{Project: projID, Member: owner.ID, Role: model.RoleOwner}}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	rec := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}
	afterView := db.workspaceFetches

	name := "renamed"
	rec2 := httptest.NewRecorder()
	if _, err := g.UpdateProjectInfo(rec2, requestAs(t, g, owner, rec), projID, model.ProjectUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateProjectInfo: %v", err)
	}

	// The project's own timestamp is not the workspace marker; the session's
	// workspace marker must stay valid so the next workspace read is a hit.
	rec3 := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec3, requestAs(t, g, owner, rec2, rec), ws.Workspace.ID); err != nil {
		t.Fatalf("ViewWorkspace after project update: %v", err)
	}
	if db.workspaceFetches != afterView {
		t.Fatalf("expected workspace cache hit, fetches %d -> %d", afterView, db.workspaceFetches)
	}
}

func TestSecondOwnerRejectedWithoutPersisting(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserManager)
	other := seedUser(t, db, "otto", model.UserContributor)
	ws := seedWorkspace(t, db, owner)

	rec := httptest.NewRecorder()
	_, err := g.AddWorkspaceMembers(rec, requestAs(t, g, owner, nil), ws.Workspace.ID, []MemberSpec{
		{User: other.ID, Role: model.RoleOwner},
	})
	if !errors.Is(err, model.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for second owner, got %v", err)
	}
	stored, _ := db.GetWorkspace(context.Background(), ws.Workspace.ID)
	if len(stored.Members) != 1 {
		t.Fatalf("member rows were persisted despite the rejection: %d", len(stored.Members))
	}

	rec = httptest.NewRecorder()
	if _, err := g.AddWorkspaceMembers(rec, requestAs(t, g, owner, nil), ws.Workspace.ID, nil); !errors.Is(err, model.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty member list, got %v", err)
	}
}

func TestCreateWorkspaceRequiresExactlyOneOwner(t *testing.T) {
	g, db, _ := newTestGateway(t)
	manager := seedUser(t, db, "max", model.UserManager)

	rec := httptest.NewRecorder()
	_, err := g.CreateWorkspace(rec, requestAs(t, g, manager, nil), CreateWorkspaceInput{
		Name: "no-owner",
		Members: []MemberSpec{
			{User: manager.ID, Role: model.RoleMaster},
		},
	})
	if !errors.Is(err, model.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest without an owner, got %v", err)
	}

	rec = httptest.NewRecorder()
	ws, err := g.CreateWorkspace(rec, requestAs(t, g, manager, nil), CreateWorkspaceInput{
		Name: "good",
		Members: []MemberSpec{
			{User: manager.ID, Role: model.RoleOwner},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if ws.Workspace.Owner != manager.ID || !ws.HasOwner() {
		t.Fatalf("owner not recorded: %+v", ws.Workspace)
	}
}

func TestSelfServiceProfileUpdate(t *testing.T) {
	g, db, _ := newTestGateway(t)
	alice := seedUser(t, db, "alice", model.UserContributor)
	bob := seedUser(t, db, "bob", model.UserContributor)

	bio := "hello"
	rec := httptest.NewRecorder()
	if _, err := g.UpdateUser(rec, requestAs(t, g, alice, nil), alice.ID, model.UserUpdate{Bio: &bio}); err != nil {
		t.Fatalf("self update: %v", err)
	}

	rec = httptest.NewRecorder()
	_, err := g.UpdateUser(rec, requestAs(t, g, alice, nil), bob.ID, model.UserUpdate{Bio: &bio})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for peer update, got %v", err)
	}
}

func TestWorkspaceDeleteInvalidatesCache(t *testing.T) {
	g, db, _ := newTestGateway(t)
	owner := seedUser(t, db, "olga", model.UserAdmin)
	ws := seedWorkspace(t, db, owner)

	rec := httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); err != nil {
		t.Fatalf("ViewWorkspace: %v", err)
	}
	rec = httptest.NewRecorder()
	if err := g.DeleteWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	rec = httptest.NewRecorder()
	if _, err := g.ViewWorkspace(rec, requestAs(t, g, owner, nil), ws.Workspace.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
