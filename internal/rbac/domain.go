package rbac

import "strings"

// Role represents a fixed identity class assigned at authentication time.
type Role string

// Known roles. The set is closed.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
)

// Permission represents an atomic capability gating one privileged operation.
type Permission string

// Known permissions. The set is closed.
const (
	PermViewDashboard  Permission = "view_dashboard"
	PermManageUsers    Permission = "manage_users"
	PermManagePhotos   Permission = "manage_photos"
	PermManageComments Permission = "manage_comments"
	PermViewLogs       Permission = "view_logs"
	PermExportLogs     Permission = "export_logs"
	PermManageAdmins   Permission = "manage_admins"
	PermManageSettings Permission = "manage_settings"
)

// Roles lists every known role in display order.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleModerator}
}

// Permissions lists every known permission in display order.
func Permissions() []Permission {
	return []Permission{
		PermViewDashboard,
		PermManageUsers,
		PermManagePhotos,
		PermManageComments,
		PermViewLogs,
		PermExportLogs,
		PermManageAdmins,
		PermManageSettings,
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	for _, known := range Permissions() {
		if p == known {
			return true
		}
	}
	return false
}

// ParseRole normalises raw and returns the matching role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// ParsePermission normalises raw and returns the matching permission.
func ParsePermission(raw string) (Permission, bool) {
	p := Permission(strings.ToLower(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// IdentityKind distinguishes the kind of actor behind a principal.
type IdentityKind string

const (
	KindAdmin  IdentityKind = "admin"
	KindUser   IdentityKind = "user"
	KindSystem IdentityKind = "system"
)

// Valid reports whether k is a known identity kind.
func (k IdentityKind) Valid() bool {
	switch k {
	case KindAdmin, KindUser, KindSystem:
		return true
	}
	return false
}

// Principal describes the authenticated actor for one request. It is
// supplied by the caller and never stored by this package.
type Principal struct {
	ID   int64
	Role Role
	Kind IdentityKind
}

// System returns the principal used for system-originated activity.
func System() Principal {
	return Principal{Kind: KindSystem}
}
