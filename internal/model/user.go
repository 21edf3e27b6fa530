package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserStatus tracks the account lifecycle.
type UserStatus int16

const (
	// StatusInvited means the user was created but has not set a password yet.
	StatusInvited UserStatus = 0
	// StatusPasswordSet means the user completed their invitation.
	StatusPasswordSet UserStatus = 1
	StatusActive      UserStatus = 2
	StatusSuspended   UserStatus = 3
	StatusDeleted     UserStatus = 4
)

// UserStatusFromInt converts a persisted integer into a UserStatus.
func UserStatusFromInt(v int16) (UserStatus, error) {
	switch UserStatus(v) {
	case StatusInvited, StatusPasswordSet, StatusActive, StatusSuspended, StatusDeleted:
		return UserStatus(v), nil
	default:
		return 0, fmt.Errorf("%w: invalid user status value %d", ErrBadRequest, v)
	}
}

func (s UserStatus) String() string {
	switch s {
	case StatusInvited:
		return "Invited"
	case StatusPasswordSet:
		return "PasswordSet"
	case StatusActive:
		return "Active"
	case StatusSuspended:
		return "Suspended"
	case StatusDeleted:
		return "Deleted"
	default:
		return fmt.Sprintf("UserStatus(%d)", int16(s))
	}
}

// User is the full database record, password hash included. It never leaves
// the service boundary; responses carry PublicUser instead.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name,omitempty"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Bio          string     `json:"bio,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PublicUser is the client-safe snapshot of a user. It is what session tokens
// embed and what aggregate member lists expose.
type PublicUser struct {
	ID          uuid.UUID  `json:"id"`
	Role        UserRole   `json:"role"`
	Status      UserStatus `json:"status"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	Email       string     `json:"email"`
	Bio         string     `json:"bio,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Public strips the credential fields from a User.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Role:        u.Role,
		Status:      u.Status,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// Name returns the display name, falling back to the username.
func (u PublicUser) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// IsAdmin reports whether the user holds the global Admin role.
func (u PublicUser) IsAdmin() bool { return u.Role >= UserAdmin }

// IsAtLeast reports whether the user's global role meets the threshold.
func (u PublicUser) IsAtLeast(role UserRole) bool { return u.Role >= role }

// UserUpdate is a partial update of a user's basic information. Nil fields
// are left untouched.
type UserUpdate struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
}
