package security

import (
	"io"
	"log/slog"
	"testing"
)

func TestRolePermissions(t *testing.T) {
	as := NewAuthorizationService(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermManageUsers, true},
		{RoleAdmin, PermDeleteRecords, true},
		{RoleAdmin, PermCheckoutBook, true},
		{RoleLibrarian, PermCheckoutBook, true},
		{RoleLibrarian, PermReturnBook, true},
		{RoleLibrarian, PermRunSweep, true},
		{RoleLibrarian, PermManageUsers, false},
		{RoleLibrarian, PermDeleteRecords, false},
		{Role("intern"), PermCheckoutBook, false},
	}
	for _, tc := range cases {
		if got := as.HasPermission(tc.role, tc.perm); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestValidatePermission(t *testing.T) {
	as := NewAuthorizationService(slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := as.ValidatePermission(RoleLibrarian, PermCheckoutBook); err != nil {
		t.Errorf("expected librarian checkout to pass, got %v", err)
	}
	if err := as.ValidatePermission(RoleLibrarian, PermManageUsers); err == nil {
		t.Error("expected librarian manage_users to be denied")
	}
}

func TestValidRole(t *testing.T) {
	if !ValidRole("admin") || !ValidRole("librarian") {
		t.Error("expected admin and librarian to be valid roles")
	}
	if ValidRole("root") || ValidRole("") {
		t.Error("expected unknown roles to be invalid")
	}
}
