package rbac

import (
	"fmt"
	"sort"
)

// Matrix is an immutable role to permission table. Pairs absent from the
// table evaluate to false. A Matrix is built once and shared by reference.
type Matrix struct {
	grants map[Role]map[Permission]bool
}

// MatrixConfig is the configuration shape: role name to permission name to
// allowed flag.
type MatrixConfig map[string]map[string]bool

// NewMatrix validates cfg and builds a Matrix. Unknown role or permission
// names are rejected so that typos surface at startup rather than as silent
// denials.
func NewMatrix(cfg MatrixConfig) (*Matrix, error) {
	grants := make(map[Role]map[Permission]bool, len(cfg))
	for rawRole, perms := range cfg {
		role, ok := ParseRole(rawRole)
		if !ok {
			return nil, fmt.Errorf("rbac: unknown role %q in matrix", rawRole)
		}
		set := make(map[Permission]bool, len(perms))
		for rawPerm, allowed := range perms {
			perm, ok := ParsePermission(rawPerm)
			if !ok {
				return nil, fmt.Errorf("rbac: unknown permission %q for role %s", rawPerm, role)
			}
			set[perm] = allowed
		}
		grants[role] = set
	}
	return &Matrix{grants: grants}, nil
}

// DefaultMatrix returns the built-in matrix. Each role's grants are listed
// explicitly; no role inherits from another.
func DefaultMatrix() *Matrix {
	m, err := NewMatrix(MatrixConfig{
		string(RoleSuperAdmin): {
			string(PermViewDashboard):  true,
			string(PermManageUsers):    true,
			string(PermManagePhotos):   true,
			string(PermManageComments): true,
			string(PermViewLogs):       true,
			string(PermExportLogs):     true,
			string(PermManageAdmins):   true,
			string(PermManageSettings): true,
		},
		string(RoleAdmin): {
			string(PermViewDashboard):  true,
			string(PermManageUsers):    true,
			string(PermManagePhotos):   true,
			string(PermManageComments): true,
			string(PermViewLogs):       true,
			string(PermExportLogs):     true,
			string(PermManageAdmins):   false,
			string(PermManageSettings): false,
		},
		string(RoleModerator): {
			string(PermViewDashboard):  true,
			string(PermManageUsers):    false,
			string(PermManagePhotos):   true,
			string(PermManageComments): true,
			string(PermViewLogs):       false,
			string(PermExportLogs):     false,
			string(PermManageAdmins):   false,
			string(PermManageSettings): false,
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}

// Allowed reports whether role holds perm. Unknown inputs yield false.
func (m *Matrix) Allowed(role Role, perm Permission) bool {
	if m == nil {
		return false
	}
	return m.grants[role][perm]
}

// Granted returns the permissions held by role, sorted by name.
func (m *Matrix) Granted(role Role) []Permission {
	if m == nil {
		return nil
	}
	out := make([]Permission, 0, len(m.grants[role]))
	for perm, allowed := range m.grants[role] {
		if allowed {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Config returns a copy of the table in configuration shape, covering every
// known role and permission.
func (m *Matrix) Config() MatrixConfig {
	cfg := make(MatrixConfig, len(Roles()))
	for _, role := range Roles() {
		perms := make(map[string]bool, len(Permissions()))
		for _, perm := range Permissions() {
			perms[string(perm)] = m.Allowed(role, perm)
		}
		cfg[string(role)] = perms
	}
	return cfg
}
