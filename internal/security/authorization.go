package security

import (
	"fmt"
	"log/slog"
)

// Role represents a staff role
type Role string

const (
	RoleAdmin     = "admin"
	RoleLibrarian = "librarian"
)

// ValidRole reports whether s names a known role
func ValidRole(s string) bool {
	return s == RoleAdmin || s == RoleLibrarian
}

// Permission represents an action permission
type Permission string

const (
	PermManageBooks     Permission = "manage_books"
	PermManageBorrowers Permission = "manage_borrowers"
	PermCheckoutBook    Permission = "checkout_book"
	PermReturnBook      Permission = "return_book"
	PermViewReports     Permission = "view_reports"
	PermRunSweep        Permission = "run_sweep"
	PermManageUsers     Permission = "manage_users"
	PermDeleteRecords   Permission = "delete_records"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermManageBooks,
		PermManageBorrowers,
		PermCheckoutBook,
		PermReturnBook,
		PermViewReports,
		PermRunSweep,
		PermManageUsers,
		PermDeleteRecords,
	},
	RoleLibrarian: {
		PermManageBooks,
		PermManageBorrowers,
		PermCheckoutBook,
		PermReturnBook,
		PermViewReports,
		PermRunSweep,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("permission denied: %s role cannot %s", role, permission)
	}
	return nil
}

// GetRolePermissions returns all permissions for a role
func (as *AuthorizationService) GetRolePermissions(role Role) []Permission {
	return RolePermissions[role]
}
