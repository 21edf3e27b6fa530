package model

import (
	"time"

	"github.com/google/uuid"
)

type Workspace struct {
	ID          uuid.UUID `json:"id"`
	Owner       uuid.UUID `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"member_count"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkspaceMember is one membership row.
type WorkspaceMember struct {
	Workspace uuid.UUID    `json:"workspace"`
	Member    uuid.UUID    `json:"member"`
	Role      ResourceRole `json:"role"`
}

// MemberInfo pairs a public user snapshot with their role in the resource.
type MemberInfo struct {
	User PublicUser   `json:"user"`
	Role ResourceRole `json:"role"`
}

// WorkspaceWithMembers is the aggregate view served to clients and stored in
// the cache: the resource plus its denormalized member list.
type WorkspaceWithMembers struct {
	Workspace Workspace    `json:"workspace"`
	Members   []MemberInfo `json:"members"`
}

// MemberRole returns the role of the given user in the aggregate, or
// RoleUnknown with false when they are not a member.
func (w WorkspaceWithMembers) MemberRole(userID uuid.UUID) (ResourceRole, bool) {
	for _, m := range w.Members {
		if m.User.ID == userID {
			return m.Role, true
		}
	}
	return RoleUnknown, false
}

// HasOwner reports whether any member holds the Owner role.
func (w WorkspaceWithMembers) HasOwner() bool {
	for _, m := range w.Members {
		if m.Role == RoleOwner {
			return true
		}
	}
	return false
}

// WorkspaceUpdate is a partial update of workspace information.
type WorkspaceUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}
