package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"worklane.org/internal/model"
)

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
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
			a.getProject(w, r, id)
		case http.MethodPatch:
			a.updateProject(w, r, id)
		case http.MethodDelete:
			a.deleteProject(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "members":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.addProjectMembers(w, r, id)
	case len(parts) == 3 && parts[1] == "members":
		userID, err := uuid.Parse(parts[2])
		if err != nil {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		switch r.Method {
		case http.MethodPut:
			a.setProjectMemberRole(w, r, id, userID)
		case http.MethodDelete:
			a.removeProjectMember(w, r, id, userID)
		default:
			methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	p, err := a.gw.ViewProject(w, r, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var upd model.ProjectUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.gw.UpdateProjectInfo(w, r, id, upd)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) addProjectMembers(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req addMembersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.gw.AddProjectMembers(w, r, id, req.Members)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) setProjectMemberRole(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) {
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
	p, err := a.gw.SetProjectMemberRole(w, r, id, userID, role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) removeProjectMember(w http.ResponseWriter, r *http.Request, id, userID uuid.UUID) {
	p, err := a.gw.RemoveProjectMember(w, r, id, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deleteProject(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := a.gw.DeleteProject(w, r, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
