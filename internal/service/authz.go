package service

import (
	"fmt"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

// Role names the capability an operation requires. Checks are identity
// equality only; there is no role hierarchy.
type Role int

const (
	// RoleAdmin requires the configured administrator identity.
	RoleAdmin Role = iota
	// RoleOwner requires the caller to equal the record's owner.
	RoleOwner
	// RoleHolder requires the caller to equal the policy holder.
	RoleHolder
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	case RoleHolder:
		return "holder"
	}
	return "unknown"
}

// Authorizer is the single capability gate. All call sites go through
// Authorize instead of comparing identities directly, so adding multiple
// administrators or delegation later touches only this type.
type Authorizer struct {
	admin string
}

func NewAuthorizer(admin string) *Authorizer {
	return &Authorizer{admin: admin}
}

// Authorize checks that caller holds the required role. For RoleOwner and
// RoleHolder, expected is the identity stored on the record; for
// RoleAdmin it is ignored.
func (a *Authorizer) Authorize(caller string, role Role, expected string) error {
	switch role {
	case RoleAdmin:
		expected = a.admin
	case RoleOwner, RoleHolder:
	default:
		return fmt.Errorf("unknown role %d: %w", role, domain.ErrNotAuthorized)
	}
	if caller == "" || caller != expected {
		return fmt.Errorf("caller %q lacks %s capability: %w", caller, role, domain.ErrNotAuthorized)
	}
	return nil
}

// IsAdmin reports whether caller is the administrator.
func (a *Authorizer) IsAdmin(caller string) bool {
	return caller != "" && caller == a.admin
}
