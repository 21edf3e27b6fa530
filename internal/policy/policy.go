// Package policy holds every authorization rule as a small boolean
// expression over the actor's global role and cached resource roles.
// Rules are pure: they never touch storage or the network, so callers must
// resolve the relevant resource roles first.
package policy

import (
	"fmt"

	"github.com/google/uuid"

	"worklane.org/internal/model"
)

// Any is satisfied when at least one condition holds. Conditions are
// evaluated eagerly at the call site, which keeps rules free of closures and
// makes the privilege table below read as plain boolean algebra.
func Any(conds ...bool) bool {
	for _, c := range conds {
		if c {
			return true
		}
	}
	return false
}

// All is satisfied when every condition holds. All() with no conditions is
// true, matching the usual empty-conjunction convention.
func All(conds ...bool) bool {
	for _, c := range conds {
		if !c {
			return false
		}
	}
	return true
}

// Authorize converts a rule outcome into an authorization error. A denial
// acknowledges the resource exists.
func Authorize(ok bool, msg string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrUnauthorized, msg)
}

// NotFound converts a rule outcome into a not-found error. Used where a
// denial must not reveal that the resource exists.
func NotFound(ok bool, msg string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrNotFound, msg)
}

// User rules.

// CanViewUser hides other users' profiles from non-admins.
func CanViewUser(actor model.PublicUser, target uuid.UUID) error {
	return NotFound(Any(
		actor.IsAdmin(),
		actor.ID == target,
	), "user not found")
}

// CanListUsers restricts the directory to managers and above.
func CanListUsers(actor model.PublicUser) error {
	return Authorize(actor.IsAtLeast(model.UserManager), "cannot list users")
}

// CanInviteUser allows managers to invite, but never with a role above their
// own.
func CanInviteUser(actor model.PublicUser, role model.UserRole) error {
	return Authorize(All(
		actor.IsAtLeast(model.UserManager),
		role <= actor.Role,
	), "cannot invite with this role")
}

// CanUpdateUser allows managers and the user themselves to edit profile
// information.
func CanUpdateUser(actor model.PublicUser, target uuid.UUID) error {
	return Authorize(Any(
		actor.IsAtLeast(model.UserManager),
		actor.ID == target,
	), "cannot update this user")
}

// CanSetUserStatus allows managers to suspend and reactivate accounts.
func CanSetUserStatus(actor model.PublicUser) error {
	return Authorize(actor.IsAtLeast(model.UserManager), "cannot change account status")
}

// CanSetUserRole allows managers to assign global roles, but never a role
// above their own.
func CanSetUserRole(actor model.PublicUser, newRole model.UserRole) error {
	return Authorize(All(
		actor.IsAtLeast(model.UserManager),
		newRole <= actor.Role,
	), "cannot grant this role")
}

// CanDeleteUser allows admins and the user themselves to delete the account.
func CanDeleteUser(actor model.PublicUser, target uuid.UUID) error {
	return Authorize(Any(
		actor.IsAdmin(),
		actor.ID == target,
	), "cannot delete this user")
}

// Workspace rules. wsRole is the actor's role within the workspace,
// RoleUnknown when the actor is not a member.

// CanCreateWorkspace restricts workspace creation to managers and above.
func CanCreateWorkspace(actor model.PublicUser) error {
	return Authorize(actor.IsAtLeast(model.UserManager), "cannot create workspaces")
}

// CanViewWorkspace hides workspaces from non-members.
func CanViewWorkspace(actor model.PublicUser, wsRole model.ResourceRole) error {
	return NotFound(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleViewer,
	), "workspace not found")
}

// CanUpdateWorkspaceInfo covers name, description and image changes.
func CanUpdateWorkspaceInfo(actor model.PublicUser, wsRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleContributor,
	), "cannot update this workspace")
}

// CanManageWorkspaceMembers covers adding, removing and re-roling members.
func CanManageWorkspaceMembers(actor model.PublicUser, wsRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleMaster,
	), "cannot manage workspace members")
}

// CanDeleteWorkspace allows admins and workspace masters to delete.
func CanDeleteWorkspace(actor model.PublicUser, wsRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleMaster,
	), "cannot delete this workspace")
}

// Project rules. Visibility and creation key off the parent workspace role,
// day-to-day edits off the project role.

// CanViewProject hides projects from non-members of the parent workspace.
func CanViewProject(actor model.PublicUser, wsRole model.ResourceRole) error {
	return NotFound(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleViewer,
	), "project not found")
}

// CanCreateProject requires mastery of the parent workspace.
func CanCreateProject(actor model.PublicUser, wsRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleMaster,
	), "cannot create projects in this workspace")
}

// CanUpdateProjectInfo covers name and description changes.
func CanUpdateProjectInfo(actor model.PublicUser, projRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		projRole >= model.RoleContributor,
	), "cannot update this project")
}

// CanManageProjectMembers covers adding and re-roling project members.
func CanManageProjectMembers(actor model.PublicUser, projRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		projRole >= model.RoleMaster,
	), "cannot manage project members")
}

// CanRemoveProjectMember keys off the workspace role so workspace masters
// can clean up projects they do not belong to.
func CanRemoveProjectMember(actor model.PublicUser, wsRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleMaster,
	), "cannot remove project members")
}

// CanDeleteProject reserves deletion for admins and the workspace owner.
func CanDeleteProject(actor model.PublicUser, wsRole model.ResourceRole) error {
	return Authorize(Any(
		actor.IsAdmin(),
		wsRole >= model.RoleOwner,
	), "cannot delete this project")
}
