package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"worklane.org/internal/gateway"
	"worklane.org/internal/model"
)

type addMembersRequest struct {
	Members []gateway.MemberSpec `json:"members"`
}

type setMemberRoleRequest struct {
	Role int16 `json:"role"`
}

func (a *API) handleWorkspacesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listWorkspaces(w, r)
	case http.MethodPost:
		a.createWorkspace(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleWorkspaceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/workspaces/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getWorkspace(w, r, id)
		case http.MethodPatch:
			a.updateWorkspace(w, r, id)
		case http.MethodDelete:
			a.deleteWorkspace(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "members":
		switch r.Method {
		case http.MethodGet:
			a.getWorkspaceTeam(w, r, id)
		case http.MethodPost:
			a.addWorkspaceMembers(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3 && parts[1] == "members":
		userID, err := uuid.Parse(parts[2])
		if err != nil {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		switch r.Method {
		case http.MethodPut:
			a.setWorkspaceMemberRole(w, r, id, userID)
		case http.MethodDelete:
			a.removeWorkspaceMember(w, r, id, userID)
		default:
			methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "projects":
		switch r.Method {
		case http.MethodGet:
			a.listProjects(w, r, id)
		case http.MethodPost:
			a.createProject(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	items, err := a.gw.ListWorkspaces(w, r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var in gateway.CreateWorkspaceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ws, err := a.gw.CreateWorkspace(w, r, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/workspaces/"+ws.Workspace.ID.String())
	writeJSON(w, http.StatusCreated, ws)
}

func (a *API) getWorkspace(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ws, err := a.gw.ViewWorkspace(w, r, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) getWorkspaceTeam(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	members, err := a.gw.ViewWorkspaceTeam(w, r, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

func (a *API) updateWorkspace(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var upd model.WorkspaceUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ws, err := a.gw.UpdateWorkspaceInfo(w, r, id, upd)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) addWorkspaceMembers(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req addMembersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ws, err := a.gw.AddWorkspaceMembers(w, r, id, req.Members)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) setWorkspaceMemberRole(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) {
	var req setMemberRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := model.ResourceRoleFromInt(req.Role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	ws, err := a.gw.SetWorkspaceMemberRole(w, r, id, userID, role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) removeWorkspaceMember(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) {
	ws, err := a.gw.RemoveWorkspaceMember(w, r, id, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) deleteWorkspace(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := a.gw.DeleteWorkspace(w, r, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID) {
	items, err := a.gw.ListProjects(w, r, workspaceID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request, workspaceID uuid.UUID) {
	var in gateway.CreateProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.gw.CreateProject(w, r, workspaceID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/projects/"+p.Project.ID.String())
	writeJSON(w, http.StatusCreated, p)
}
