// Package principal describes who is calling and what they may do.
package principal

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleHR       Role = "HR"
	RoleDirector Role = "Director"
	RoleEmployee Role = "Employee"
)

var roles = []Role{RoleAdmin, RoleHR, RoleDirector, RoleEmployee}

// ParseRole accepts only the closed set of known roles.
func ParseRole(s string) (Role, error) {
	for _, r := range roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Principal is the authenticated caller. CompanyID is nil only for Admins
// that are not bound to a single company.
type Principal struct {
	UserID    uuid.UUID
	CompanyID *uuid.UUID
	Role      Role
}

// System is used by jobs that run without a human caller.
func System() Principal {
	return Principal{UserID: uuid.Nil, Role: RoleAdmin}
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessCompany reports whether p may see records of companyID.
func (p Principal) CanAccessCompany(companyID uuid.UUID) bool {
	if p.IsAdmin() {
		return true
	}
	return p.CompanyID != nil && *p.CompanyID == companyID
}

// ScopeCompany returns the company p is restricted to, or nil when p may see all.
func (p Principal) ScopeCompany() *uuid.UUID {
	if p.IsAdmin() {
		return nil
	}
	if p.CompanyID == nil {
		// a non-admin without a company sees nothing
		nilID := uuid.Nil
		return &nilID
	}
	id := *p.CompanyID
	return &id
}
