package model

import "fmt"

// UserRole is the global system role, ordered by privilege.
type UserRole int16

const (
	UserReviewer    UserRole = 0
	UserContributor UserRole = 1
	UserManager     UserRole = 2
	UserAdmin       UserRole = 3
)

// UserRoleFromInt converts a persisted integer into a UserRole. The mapping
// is closed: any other value is invalid input, never a valid role.
func UserRoleFromInt(v int16) (UserRole, error) {
	switch UserRole(v) {
	case UserReviewer, UserContributor, UserManager, UserAdmin:
		return UserRole(v), nil
	default:
		return 0, fmt.Errorf("%w: invalid user role value %d", ErrBadRequest, v)
	}
}

func (r UserRole) String() string {
	switch r {
	case UserReviewer:
		return "Reviewer"
	case UserContributor:
		return "Contributor"
	case UserManager:
		return "Manager"
	case UserAdmin:
		return "Admin"
	default:
		return fmt.Sprintf("UserRole(%d)", int16(r))
	}
}

// ResourceRole is the per-resource role shared by workspaces and projects.
// The numbering is intentionally non-contiguous to separate the low tiers
// from Master and Owner.
type ResourceRole int16

const (
	// RoleUnknown is the denial-safe default used when the session holds no
	// entry for a resource. It sits below Viewer.
	RoleUnknown     ResourceRole = -1
	RoleViewer      ResourceRole = 0
	RoleStakeholder ResourceRole = 1
	RoleContributor ResourceRole = 2
	RoleMaster      ResourceRole = 5
	RoleOwner       ResourceRole = 10
)

// ResourceRoleFromInt converts a persisted integer into a ResourceRole.
// RoleUnknown is not a persistable role and is rejected here.
func ResourceRoleFromInt(v int16) (ResourceRole, error) {
	switch ResourceRole(v) {
	case RoleViewer, RoleStakeholder, RoleContributor, RoleMaster, RoleOwner:
		return ResourceRole(v), nil
	default:
		return 0, fmt.Errorf("%w: invalid resource role value %d", ErrBadRequest, v)
	}
}

func (r ResourceRole) String() string {
	switch r {
	case RoleViewer:
		return "Viewer"
	case RoleStakeholder:
		return "Stakeholder"
	case RoleContributor:
		return "Contributor"
	case RoleMaster:
		return "Master"
	case RoleOwner:
		return "Owner"
	default:
		return fmt.Sprintf("ResourceRole(%d)", int16(r))
	}
}

// Scope identifies the resource type a role applies to.
type Scope string

const (
	ScopeWorkspace Scope = "workspace"
	ScopeProject   Scope = "project"
)
