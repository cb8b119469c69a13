package authz

// Principal is the immutable per-request snapshot of the authenticated user.
// It is sourced from storage via the resolver, never from a request body.
type Principal struct {
	ID            uint
	Role          Role
	InstitutionID uint
	DepartmentID  *uint
}

// CallerContext couples a principal with its resolved scope. It is derived
// once per request and never cached across requests.
type CallerContext struct {
	Principal Principal
	Scope     Scope
}

// Action names a gated operation and the minimum role rank it requires.
type Action struct {
	Name    string
	MinRole Role
}

// The gated actions of the engine.
var (
	ActionRosterAdd       = Action{Name: "roster.student.add", MinRole: RoleTeacher}
	ActionRosterRemove    = Action{Name: "roster.student.remove", MinRole: RoleTeacher}
	ActionTeacherUnassign = Action{Name: "department.teacher.unassign", MinRole: RoleDepartmentAdmin}
	ActionRoleAssign      = Action{Name: "user.role.assign", MinRole: RoleDepartmentAdmin}
	ActionDashboardView   = Action{Name: "dashboard.view", MinRole: RoleStudent}
)

// DenyReason explains a gate denial.
type DenyReason string

// Denial reasons surfaced to callers and recorded to audit.
const (
	DenyInsufficientRole DenyReason = "insufficient_role"
	DenyOutOfScope       DenyReason = "out_of_scope"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Check is the single authorization gate: a pure decision over the caller's
// role rank and scope containment. An action is allowed iff the caller ranks
// at or above the action's minimum role and the caller's scope contains the
// target. Teachers and students resolve to Self scopes, so ownership checks
// (a teacher acting on their own roster, a student reading their own
// dashboard) fall out of the containment rules rather than the hierarchy.
func Check(ctx CallerContext, action Action, target Target) Decision {
	if !ctx.Principal.Role.AtLeast(action.MinRole) {
		return Deny(DenyInsufficientRole)
	}
	if !ctx.Scope.Contains(target) {
		return Deny(DenyOutOfScope)
	}
	return Allow()
}
