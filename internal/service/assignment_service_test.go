package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/models"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint]models.User
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uint) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

type unassignCall struct {
	departmentID       uint
	teacherID          uint
	actorInstitutionID uint
	actorID            uint
}

type roleUpdateCall struct {
	userID             uint
	role               string
	departmentID       *uint
	actorInstitutionID *uint
}

type fakeAssignmentRepo struct {
	mu            sync.Mutex
	unassignCalls []unassignCall
	unassignErr   error
	roleUpdates   []roleUpdateCall
	roleErrByUser map[uint]error
	audits        []*models.AuditEntry
}

func (r *fakeAssignmentRepo) Unassign(_ context.Context, departmentID, teacherID, actorInstitutionID, actorID uint, audit *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unassignCalls = append(r.unassignCalls, unassignCall{departmentID, teacherID, actorInstitutionID, actorID})
	if r.unassignErr != nil {
		return r.unassignErr
	}
	if audit != nil {
		r.audits = append(r.audits, audit)
	}
	return nil
}

func (r *fakeAssignmentRepo) UpdateUserRole(_ context.Context, userID uint, role string, departmentID *uint, actorInstitutionID *uint, audit *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.roleErrByUser[userID]; ok {
		return err
	}
	r.roleUpdates = append(r.roleUpdates, roleUpdateCall{userID, role, departmentID, actorInstitutionID})
	if audit != nil {
		r.audits = append(r.audits, audit)
	}
	return nil
}

func departmentAdminCaller(id, institutionID, departmentID uint) authz.CallerContext {
	return authz.CallerContext{
		Principal: authz.Principal{ID: id, Role: authz.RoleDepartmentAdmin, InstitutionID: institutionID, DepartmentID: &departmentID},
		Scope:     authz.Scope{Kind: authz.ScopeDepartment, InstitutionID: institutionID, DepartmentID: departmentID},
	}
}

func globalAdminCaller(id uint) authz.CallerContext {
	return authz.CallerContext{
		Principal: authz.Principal{ID: id, Role: authz.RoleAdmin},
		Scope:     authz.Scope{Kind: authz.ScopeGlobal},
	}
}

func newAssignmentFixture(users map[uint]models.User) (*fakeAssignmentRepo, *memoryAuditLog, AssignmentService) {
	assignments := &fakeAssignmentRepo{roleErrByUser: map[uint]error{}}
	audit := &memoryAuditLog{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAssignmentService(assignments, &fakeUserRepo{users: users}, audit, validate, 2, time.Second, testLogger())
	return assignments, audit, svc
}

func TestUnassignTeacherCrossTenant(t *testing.T) {
	dept := uint(2)
	assignments, audit, svc := newAssignmentFixture(map[uint]models.User{
		300: {ID: 300, Role: "teacher", InstitutionID: 11, DepartmentID: &dept},
	})

	err := svc.UnassignTeacher(context.Background(), departmentAdminCaller(5, 10, 2), 2, 300)
	require.ErrorIs(t, err, ErrCrossTenant)
	require.Empty(t, assignments.unassignCalls)
	require.Equal(t, []string{models.AuditOutcomeDenied}, audit.recordedOutcomes())
	require.Equal(t, "cross_tenant", audit.records[0].Reason)
}

func TestUnassignTeacherInsufficientRole(t *testing.T) {
	dept := uint(2)
	assignments, audit, svc := newAssignmentFixture(map[uint]models.User{
		300: {ID: 300, Role: "teacher", InstitutionID: 10, DepartmentID: &dept},
	})

	err := svc.UnassignTeacher(context.Background(), teacherCaller(7), 2, 300)
	require.ErrorIs(t, err, ErrForbidden)
	require.Empty(t, assignments.unassignCalls)
	require.Equal(t, []string{models.AuditOutcomeDenied}, audit.recordedOutcomes())
	require.Equal(t, string(authz.DenyInsufficientRole), audit.records[0].Reason)
}

func TestUnassignTeacherHappyPath(t *testing.T) {
	dept := uint(2)
	assignments, audit, svc := newAssignmentFixture(map[uint]models.User{
		300: {ID: 300, Role: "teacher", InstitutionID: 10, DepartmentID: &dept},
	})

	err := svc.UnassignTeacher(context.Background(), departmentAdminCaller(5, 10, 2), 2, 300)
	require.NoError(t, err)

	require.Len(t, assignments.unassignCalls, 1)
	call := assignments.unassignCalls[0]
	require.Equal(t, uint(2), call.departmentID)
	require.Equal(t, uint(300), call.teacherID)
	// The write predicate carries the actor's own institution.
	require.Equal(t, uint(10), call.actorInstitutionID)
	require.Equal(t, uint(5), call.actorID)

	require.Len(t, assignments.audits, 1)
	require.Contains(t, audit.announced, assignments.audits[0])
}

func TestUnassignTeacherGlobalAdminUsesTargetInstitution(t *testing.T) {
	dept := uint(2)
	assignments, _, svc := newAssignmentFixture(map[uint]models.User{
		300: {ID: 300, Role: "teacher", InstitutionID: 11, DepartmentID: &dept},
	})

	err := svc.UnassignTeacher(context.Background(), globalAdminCaller(1), 2, 300)
	require.NoError(t, err)
	require.Len(t, assignments.unassignCalls, 1)
	require.Equal(t, uint(11), assignments.unassignCalls[0].actorInstitutionID)
}

func TestUnassignTeacherMissingAssignment(t *testing.T) {
	dept := uint(2)
	assignments, audit, svc := newAssignmentFixture(map[uint]models.User{
		300: {ID: 300, Role: "teacher", InstitutionID: 10, DepartmentID: &dept},
	})
	assignments.unassignErr = gorm.ErrRecordNotFound

	err := svc.UnassignTeacher(context.Background(), departmentAdminCaller(5, 10, 2), 2, 300)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
	require.Contains(t, audit.recordedOutcomes(), models.AuditOutcomeFailed)
}

func TestApplyBatchRejectsEmptyBatch(t *testing.T) {
	_, _, svc := newAssignmentFixture(nil)

	_, err := svc.ApplyBatch(context.Background(), institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{})
	require.Error(t, err)
}

func TestApplyBatchDuplicateTargetDetection(t *testing.T) {
	dept := uint(2)
	_, _, svc := newAssignmentFixture(map[uint]models.User{
		400: {ID: 400, Role: "student", InstitutionID: 10},
		401: {ID: 401, Role: "student", InstitutionID: 10},
	})

	response, err := svc.ApplyBatch(context.Background(), institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{
			{TargetUserID: 400, Role: "teacher", DepartmentID: &dept},
			{TargetUserID: 401, Role: "teacher", DepartmentID: &dept},
			{TargetUserID: 400, Role: "department_admin", DepartmentID: &dept},
		},
	})
	require.NoError(t, err)
	require.False(t, response.Incomplete)
	require.Len(t, response.Results, 3)

	require.Equal(t, dto.BatchOutcomeApplied, response.Results[0].Outcome)
	require.Equal(t, dto.BatchOutcomeApplied, response.Results[1].Outcome)
	// The later entry for the same target with a different role loses.
	require.Equal(t, dto.BatchOutcomeConflict, response.Results[2].Outcome)
	require.Equal(t, dto.ConflictDuplicateTarget, response.Results[2].Reason)
}

func TestApplyBatchOutOfScopeDuplicateIsDenied(t *testing.T) {
	dept := uint(2)
	assignments, audit, svc := newAssignmentFixture(map[uint]models.User{
		500: {ID: 500, Role: "student", InstitutionID: 11},
	})

	// Both entries target a user outside the caller's institution; the
	// later duplicate must still be gated and denied, not reported as a
	// conflict.
	response, err := svc.ApplyBatch(context.Background(), departmentAdminCaller(5, 10, 2), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{
			{TargetUserID: 500, Role: "teacher", DepartmentID: &dept},
			{TargetUserID: 500, Role: "department_admin", DepartmentID: &dept},
		},
	})
	require.NoError(t, err)
	require.Len(t, response.Results, 2)
	for _, result := range response.Results {
		require.Equal(t, dto.BatchOutcomeDenied, result.Outcome)
		require.Equal(t, string(authz.DenyOutOfScope), result.Reason)
	}
	require.Empty(t, assignments.roleUpdates)
	require.Equal(t, []string{models.AuditOutcomeDenied, models.AuditOutcomeDenied}, audit.recordedOutcomes())
}

func TestApplyBatchPrivilegeEscalationConflict(t *testing.T) {
	_, _, svc := newAssignmentFixture(map[uint]models.User{
		400: {ID: 400, Role: "teacher", InstitutionID: 10},
	})

	response, err := svc.ApplyBatch(context.Background(), institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{{TargetUserID: 400, Role: "admin"}},
	})
	require.NoError(t, err)
	require.Equal(t, dto.BatchOutcomeConflict, response.Results[0].Outcome)
	require.Equal(t, dto.ConflictPrivilegeEscalation, response.Results[0].Reason)
}

func TestApplyBatchMissingDepartmentConflict(t *testing.T) {
	_, _, svc := newAssignmentFixture(map[uint]models.User{
		400: {ID: 400, Role: "student", InstitutionID: 10},
	})

	response, err := svc.ApplyBatch(context.Background(), institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{{TargetUserID: 400, Role: "teacher"}},
	})
	require.NoError(t, err)
	require.Equal(t, dto.BatchOutcomeConflict, response.Results[0].Outcome)
	require.Equal(t, dto.ConflictMissingDepartment, response.Results[0].Reason)
}

func TestApplyBatchUnknownRoleFails(t *testing.T) {
	_, _, svc := newAssignmentFixture(map[uint]models.User{
		400: {ID: 400, Role: "student", InstitutionID: 10},
	})

	response, err := svc.ApplyBatch(context.Background(), institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{{TargetUserID: 400, Role: "superuser"}},
	})
	require.NoError(t, err)
	require.Equal(t, dto.BatchOutcomeFailed, response.Results[0].Outcome)
	require.Equal(t, "unknown_role", response.Results[0].Reason)
}

func TestApplyBatchEntriesCommitIndependently(t *testing.T) {
	dept := uint(2)
	assignments, audit, svc := newAssignmentFixture(map[uint]models.User{
		400: {ID: 400, Role: "student", InstitutionID: 10},
		401: {ID: 401, Role: "student", InstitutionID: 10},
		402: {ID: 402, Role: "student", InstitutionID: 11},
	})
	assignments.roleErrByUser[401] = gorm.ErrInvalidDB

	response, err := svc.ApplyBatch(context.Background(), institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{
			{TargetUserID: 400, Role: "teacher", DepartmentID: &dept},
			{TargetUserID: 401, Role: "teacher", DepartmentID: &dept},
			{TargetUserID: 402, Role: "teacher", DepartmentID: &dept},
		},
	})
	require.NoError(t, err)
	require.False(t, response.Incomplete)

	outcomes := map[uint]dto.BatchEntryResult{}
	for _, result := range response.Results {
		outcomes[result.Entry.TargetUserID] = result
	}

	require.Equal(t, dto.BatchOutcomeApplied, outcomes[400].Outcome)
	require.Equal(t, dto.BatchOutcomeFailed, outcomes[401].Outcome)
	require.Equal(t, "storage_error", outcomes[401].Reason)
	// Cross-institution target is out of the institution admin's scope.
	require.Equal(t, dto.BatchOutcomeDenied, outcomes[402].Outcome)
	require.Equal(t, string(authz.DenyOutOfScope), outcomes[402].Reason)

	require.Len(t, assignments.roleUpdates, 1)
	require.Equal(t, uint(400), assignments.roleUpdates[0].userID)
	require.NotNil(t, assignments.roleUpdates[0].actorInstitutionID)
	require.Equal(t, uint(10), *assignments.roleUpdates[0].actorInstitutionID)

	// Every non-applied entry still leaves an audit record.
	require.Len(t, audit.recordedOutcomes(), 2)
}

func TestApplyBatchCancelledContextSkipsRemainder(t *testing.T) {
	dept := uint(2)
	assignments, _, svc := newAssignmentFixture(map[uint]models.User{
		400: {ID: 400, Role: "student", InstitutionID: 10},
		401: {ID: 401, Role: "student", InstitutionID: 10},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	response, err := svc.ApplyBatch(ctx, institutionAdminCaller(99, 10), dto.RoleChangeBatchRequest{
		Entries: []dto.RoleChangeEntry{
			{TargetUserID: 400, Role: "teacher", DepartmentID: &dept},
			{TargetUserID: 401, Role: "teacher", DepartmentID: &dept},
		},
	})
	require.NoError(t, err)
	require.True(t, response.Incomplete)
	for _, result := range response.Results {
		require.Equal(t, dto.BatchOutcomeSkipped, result.Outcome)
	}
	require.Empty(t, assignments.roleUpdates)
}
