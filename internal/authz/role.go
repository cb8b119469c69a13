package authz

import (
	"fmt"
	"strings"
)

// Role is the closed set of platform roles. The hierarchy is a strict total
// order; rank comparisons must go through the rank table rather than string
// comparison so escalation checks stay total.
type Role string

// Platform roles, lowest rank first.
const (
	RoleStudent          Role = "student"
	RoleTeacher          Role = "teacher"
	RoleDepartmentAdmin  Role = "department_admin"
	RoleInstitutionAdmin Role = "institution_admin"
	RoleAdmin            Role = "admin"
)

var roleRanks = map[Role]int{
	RoleStudent:          1,
	RoleTeacher:          2,
	RoleDepartmentAdmin:  3,
	RoleInstitutionAdmin: 4,
	RoleAdmin:            5,
}

// ParseRole normalises and validates a raw role string against the closed set.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// Rank returns the hierarchy rank of the role; unknown roles rank zero, below
// every valid role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether the role ranks at or above the other role.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}
