package rbac

import (
	"errors"
	"fmt"
)

// ErrAccessDenied is matched by every AuthorizationError.
var ErrAccessDenied = errors.New("rbac: access denied")

// AuthorizationError reports a denied (role, permission) pair.
type AuthorizationError struct {
	Role       Role
	Permission Permission
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("rbac: access denied: role %q lacks %q", e.Role, e.Permission)
}

// Unwrap allows errors.Is(err, ErrAccessDenied).
func (e *AuthorizationError) Unwrap() error {
	return ErrAccessDenied
}

// Gate evaluates principals against a Matrix. Reads are pure.
type Gate struct {
	matrix *Matrix
}

// NewGate binds a gate to matrix.
func NewGate(matrix *Matrix) *Gate {
	return &Gate{matrix: matrix}
}

// Matrix exposes the underlying table.
func (g *Gate) Matrix() *Matrix {
	if g == nil {
		return nil
	}
	return g.matrix
}

// Authorize reports whether role holds perm.
func (g *Gate) Authorize(role Role, perm Permission) bool {
	if g == nil {
		return false
	}
	return g.matrix.Allowed(role, perm)
}

// Require returns an *AuthorizationError when role lacks perm. Callers must
// abort the privileged operation before any mutation when it fails.
func (g *Gate) Require(role Role, perm Permission) error {
	if g.Authorize(role, perm) {
		return nil
	}
	return &AuthorizationError{Role: role, Permission: perm}
}

// RequireAny succeeds when role holds at least one of perms.
func (g *Gate) RequireAny(role Role, perms ...Permission) error {
	for _, perm := range perms {
		if g.Authorize(role, perm) {
			return nil
		}
	}
	var first Permission
	if len(perms) > 0 {
		first = perms[0]
	}
	return &AuthorizationError{Role: role, Permission: first}
}
