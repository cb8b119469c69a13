package authz

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

// ErrUnauthenticated indicates no valid principal could be resolved.
var ErrUnauthenticated = errors.New("unauthenticated")

// UserDirectory looks up principals by identifier.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
}

// Resolver derives a CallerContext from an authenticated user identifier.
// It re-reads the user row on every call: a role or scope change must take
// effect on the next request, so stale contexts are never reused.
type Resolver struct {
	users  UserDirectory
	logger zerolog.Logger
}

// NewResolver constructs the identity and scope resolver.
func NewResolver(users UserDirectory, logger zerolog.Logger) *Resolver {
	return &Resolver{
		users:  users,
		logger: logger.With().Str("component", "authz_resolver").Logger(),
	}
}

// Resolve maps the authenticated subject into the scope lattice.
func (r *Resolver) Resolve(ctx context.Context, userID uint) (CallerContext, error) {
	if userID == 0 {
		return CallerContext{}, ErrUnauthenticated
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CallerContext{}, ErrUnauthenticated
		}
		return CallerContext{}, err
	}

	role, err := ParseRole(user.Role)
	if err != nil {
		r.logger.Warn().Uint("user_id", user.ID).Str("role", user.Role).Msg("user carries unknown role")
		return CallerContext{}, ErrUnauthenticated
	}

	principal := Principal{
		ID:            user.ID,
		Role:          role,
		InstitutionID: user.InstitutionID,
		DepartmentID:  user.DepartmentID,
	}

	return CallerContext{Principal: principal, Scope: scopeFor(principal)}, nil
}

func scopeFor(p Principal) Scope {
	switch p.Role {
	case RoleAdmin:
		return Scope{Kind: ScopeGlobal}
	case RoleInstitutionAdmin:
		return Scope{Kind: ScopeInstitution, InstitutionID: p.InstitutionID}
	case RoleDepartmentAdmin:
		if p.DepartmentID != nil {
			return Scope{Kind: ScopeDepartment, InstitutionID: p.InstitutionID, DepartmentID: *p.DepartmentID}
		}
		// A department admin without a department attachment acts on
		// nothing beyond their own record.
		return Scope{Kind: ScopeSelf, UserID: p.ID}
	default:
		return Scope{Kind: ScopeSelf, UserID: p.ID}
	}
}
