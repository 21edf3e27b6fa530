package model

import (
	"errors"
	"testing"
)

func TestUserRoleOrdering(t *testing.T) {
	if !(UserReviewer < UserContributor && UserContributor < UserManager && UserManager < UserAdmin) {
		t.Fatal("user roles must be strictly ordered by privilege")
	}
}

func TestResourceRoleOrdering(t *testing.T) {
	ordered := []ResourceRole{RoleUnknown, RoleViewer, RoleStakeholder, RoleContributor, RoleMaster, RoleOwner}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Fatalf("%v must rank below %v", ordered[i-1], ordered[i])
		}
	}
}

func TestUserRoleFromIntRejectsUnknownValues(t *testing.T) {
	for _, v := range []int16{-1, 4, 42} {
		if _, err := UserRoleFromInt(v); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("value %d: expected ErrBadRequest, got %v", v, err)
		}
	}
	if role, err := UserRoleFromInt(2); err != nil || role != UserManager {
		t.Fatalf("expected Manager, got %v (%v)", role, err)
	}
}

func TestResourceRoleFromIntRejectsGaps(t *testing.T) {
	for _, v := range []int16{-1, 3, 4, 6, 9, 11} {
		if _, err := ResourceRoleFromInt(v); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("value %d: expected ErrBadRequest, got %v", v, err)
		}
	}
	if role, err := ResourceRoleFromInt(5); err != nil || role != RoleMaster {
		t.Fatalf("expected Master, got %v (%v)", role, err)
	}
}

func TestUserStatusFromInt(t *testing.T) {
	if _, err := UserStatusFromInt(9); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if st, err := UserStatusFromInt(2); err != nil || st != StatusActive {
		t.Fatalf("expected Active, got %v (%v)", st, err)
	}
}
