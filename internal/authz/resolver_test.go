package authz

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

type fakeDirectory struct {
	users map[uint]models.User
}

func (d *fakeDirectory) GetByID(_ context.Context, id uint) (models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func TestResolveRejectsMissingSubject(t *testing.T) {
	resolver := NewResolver(&fakeDirectory{users: map[uint]models.User{}}, zerolog.Nop())

	_, err := resolver.Resolve(context.Background(), 0)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = resolver.Resolve(context.Background(), 42)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveRejectsUnknownRole(t *testing.T) {
	directory := &fakeDirectory{users: map[uint]models.User{
		1: {ID: 1, Role: "superuser", InstitutionID: 10},
	}}
	resolver := NewResolver(directory, zerolog.Nop())

	_, err := resolver.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveScopeMapping(t *testing.T) {
	department := uint(3)
	directory := &fakeDirectory{users: map[uint]models.User{
		1: {ID: 1, Role: "admin", InstitutionID: 10},
		2: {ID: 2, Role: "institution_admin", InstitutionID: 10},
		3: {ID: 3, Role: "department_admin", InstitutionID: 10, DepartmentID: &department},
		4: {ID: 4, Role: "department_admin", InstitutionID: 10},
		5: {ID: 5, Role: "teacher", InstitutionID: 10},
		6: {ID: 6, Role: "student", InstitutionID: 10},
	}}
	resolver := NewResolver(directory, zerolog.Nop())
	ctx := context.Background()

	admin, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, ScopeGlobal, admin.Scope.Kind)

	instAdmin, err := resolver.Resolve(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, ScopeInstitution, instAdmin.Scope.Kind)
	require.Equal(t, uint(10), instAdmin.Scope.InstitutionID)

	deptAdmin, err := resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, ScopeDepartment, deptAdmin.Scope.Kind)
	require.Equal(t, department, deptAdmin.Scope.DepartmentID)

	// Without a department attachment a department admin only reaches self.
	detached, err := resolver.Resolve(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, ScopeSelf, detached.Scope.Kind)

	teacher, err := resolver.Resolve(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, ScopeSelf, teacher.Scope.Kind)
	require.Equal(t, uint(5), teacher.Scope.UserID)

	student, err := resolver.Resolve(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, ScopeSelf, student.Scope.Kind)
}

func TestResolveReflectsRoleChangeOnNextCall(t *testing.T) {
	directory := &fakeDirectory{users: map[uint]models.User{
		1: {ID: 1, Role: "teacher", InstitutionID: 10},
	}}
	resolver := NewResolver(directory, zerolog.Nop())
	ctx := context.Background()

	before, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, RoleTeacher, before.Principal.Role)

	directory.users[1] = models.User{ID: 1, Role: "institution_admin", InstitutionID: 10}

	after, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, RoleInstitutionAdmin, after.Principal.Role)
	require.Equal(t, ScopeInstitution, after.Scope.Kind)
}
