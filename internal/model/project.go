package model

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID          uuid.UUID `json:"id"`
	Workspace   uuid.UUID `json:"workspace"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"member_count"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectMember struct {
	Project uuid.UUID    `json:"project"`
	Member  uuid.UUID    `json:"member"`
	Role    ResourceRole `json:"role"`
}

// ProjectWithMembers is the aggregate view for projects, structurally the
// same as WorkspaceWithMembers.
type ProjectWithMembers struct {
	Project Project      `json:"project"`
	Members []MemberInfo `json:"members"`
}

func (p ProjectWithMembers) MemberRole(userID uuid.UUID) (ResourceRole, bool) {
	for _, m := range p.Members {
		if m.User.ID == userID {
			return m.Role, true
		}
	}
	return RoleUnknown, false
}

func (p ProjectWithMembers) HasOwner() bool {
	for _, m := range p.Members {
		if m.Role == RoleOwner {
			return true
		}
	}
	return false
}

type ProjectUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}
