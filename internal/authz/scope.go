package authz

// ScopeKind discriminates the scope lattice a caller is resolved into.
type ScopeKind string

// Scope kinds, widest first.
const (
	ScopeGlobal      ScopeKind = "global"
	ScopeInstitution ScopeKind = "institution"
	ScopeDepartment  ScopeKind = "department"
	ScopeSelf        ScopeKind = "self"
)

// Scope is the set of tenant/entity identifiers a caller may act upon.
// Only the fields relevant to the kind are populated.
type Scope struct {
	Kind          ScopeKind
	InstitutionID uint
	DepartmentID  uint
	UserID        uint
}

// Target identifies the entity a request wants to act on. OwnerID names the
// user that owns the target (the teacher of a roster, the student of a
// dashboard) and is what Self scopes are matched against.
type Target struct {
	InstitutionID uint
	DepartmentID  *uint
	OwnerID       *uint
}

// Contains applies the scope-containment rules: Global contains everything,
// Institution contains targets in the same institution, Department requires
// both institution and department to match, Self matches the owning user only.
func (s Scope) Contains(target Target) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeInstitution:
		return target.InstitutionID == s.InstitutionID
	case ScopeDepartment:
		if target.InstitutionID != s.InstitutionID {
			return false
		}
		return target.DepartmentID != nil && *target.DepartmentID == s.DepartmentID
	case ScopeSelf:
		return target.OwnerID != nil && *target.OwnerID == s.UserID
	default:
		return false
	}
}
