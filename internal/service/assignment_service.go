package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/models"
	"github.com/ScepterCode/project-nest-api/internal/observability"
	"github.com/ScepterCode/project-nest-api/internal/repository"
)

// Assignment service sentinel errors.
var (
	ErrAssignmentNotFound = errors.New("assignment target not found")
	ErrCrossTenant        = errors.New("target belongs to another institution")
)

const (
	targetTypeAssignment = "department_assignment"
	targetTypeUserRole   = "user_role"

	defaultBatchWorkers = 4
)

// AssignmentService owns teacher-department and user-role assignment
// mutations, single and bulk. Bulk batches commit per entry: a failed or
// denied entry never rolls back the others.
type AssignmentService interface {
	UnassignTeacher(ctx context.Context, caller authz.CallerContext, departmentID, teacherID uint) error
	ApplyBatch(ctx context.Context, caller authz.CallerContext, req dto.RoleChangeBatchRequest) (dto.BatchResponse, error)
}

type assignmentService struct {
	assignments    repository.AssignmentRepository
	users          repository.UserRepository
	audit          AuditLog
	validator      *validator.Validate
	batchWorkers   int
	storageTimeout time.Duration
	logger         zerolog.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(assignments repository.AssignmentRepository, users repository.UserRepository, audit AuditLog, validate *validator.Validate, batchWorkers int, storageTimeout time.Duration, logger zerolog.Logger) AssignmentService {
	if batchWorkers <= 0 {
		batchWorkers = defaultBatchWorkers
	}
	return &assignmentService{
		assignments:    assignments,
		users:          users,
		audit:          audit,
		validator:      validate,
		batchWorkers:   batchWorkers,
		storageTimeout: storageTimeout,
		logger:         logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) UnassignTeacher(ctx context.Context, caller authz.CallerContext, departmentID, teacherID uint) error {
	if departmentID == 0 || teacherID == 0 {
		return ErrAssignmentNotFound
	}

	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	teacher, err := s.users.GetByID(callCtx, teacherID)
	cancel()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	// Cross-tenant reach is reported distinctly from an ordinary scope
	// denial, and audited the same way.
	if caller.Scope.Kind != authz.ScopeGlobal && teacher.InstitutionID != caller.Principal.InstitutionID {
		s.recordUnassignDenied(ctx, caller, departmentID, teacherID, "cross_tenant")
		return ErrCrossTenant
	}

	target := authz.Target{
		InstitutionID: teacher.InstitutionID,
		DepartmentID:  &departmentID,
		OwnerID:       &teacher.ID,
	}
	decision := authz.Check(caller, authz.ActionTeacherUnassign, target)
	observability.ObserveAuthzDecision(authz.ActionTeacherUnassign, decision)
	if !decision.Allowed {
		s.recordUnassignDenied(ctx, caller, departmentID, teacherID, string(decision.Reason))
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	entry := s.audit.Prepare(AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionTeacherUnassign.Name,
		TargetType: targetTypeAssignment,
		TargetID:   &teacherID,
		Outcome:    models.AuditOutcomeApplied,
		Metadata:   map[string]interface{}{"department_id": departmentID},
	})

	// The write predicate re-asserts tenant isolation with the actor's own
	// institution id; a global admin inherits the target's institution.
	predicateInstitution := caller.Principal.InstitutionID
	if caller.Scope.Kind == authz.ScopeGlobal {
		predicateInstitution = teacher.InstitutionID
	}

	callCtx, cancel = storageCtx(ctx, s.storageTimeout)
	defer cancel()

	if err := s.assignments.Unassign(callCtx, departmentID, teacherID, predicateInstitution, caller.Principal.ID, entry); err != nil {
		s.recordUnassignFailed(ctx, caller, departmentID, teacherID, err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.audit.Announce(ctx, entry)
	observability.ObserveMutation(authz.ActionTeacherUnassign.Name, models.AuditOutcomeApplied)

	s.logger.Info().
		Uint("teacher_id", teacherID).
		Uint("department_id", departmentID).
		Uint("actor_id", caller.Principal.ID).
		Msg("teacher unassigned from department")

	return nil
}

func (s *assignmentService) ApplyBatch(ctx context.Context, caller authz.CallerContext, req dto.RoleChangeBatchRequest) (dto.BatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BatchResponse{}, err
	}

	batchID := uuid.NewString()
	results := make([]dto.BatchEntryResult, len(req.Entries))

	// Duplicate-target detection must see entries in declared batch order,
	// so it runs sequentially before any entry is dispatched to a worker.
	duplicates := make([]bool, len(req.Entries))
	firstRole := make(map[uint]string, len(req.Entries))
	for i, entry := range req.Entries {
		if prior, seen := firstRole[entry.TargetUserID]; seen && prior != entry.Role {
			duplicates[i] = true
			continue
		}
		if _, seen := firstRole[entry.TargetUserID]; !seen {
			firstRole[entry.TargetUserID] = entry.Role
		}
	}

	// Entries are independent transactions, so they may be processed with
	// bounded concurrency.
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := s.batchWorkers
	if workers > len(req.Entries) {
		workers = len(req.Entries)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					results[i] = dto.BatchEntryResult{Entry: req.Entries[i], Outcome: dto.BatchOutcomeSkipped, Reason: "batch cancelled"}
					continue
				}
				results[i] = s.applyEntry(ctx, caller, batchID, req.Entries[i], duplicates[i])
			}
		}()
	}
	for i := range req.Entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	incomplete := false
	for _, result := range results {
		if result.Outcome == dto.BatchOutcomeSkipped {
			incomplete = true
			break
		}
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("entries", len(req.Entries)).
		Bool("incomplete", incomplete).
		Msg("bulk role assignment processed")

	return dto.BatchResponse{BatchID: batchID, Incomplete: incomplete, Results: results}, nil
}

func (s *assignmentService) applyEntry(ctx context.Context, caller authz.CallerContext, batchID string, entry dto.RoleChangeEntry, duplicate bool) dto.BatchEntryResult {
	metadata := map[string]interface{}{
		"batch_id":       batchID,
		"requested_role": entry.Role,
	}

	conclude := func(outcome, reason string) dto.BatchEntryResult {
		s.recordEntry(ctx, caller, entry, outcome, reason, metadata)
		observability.ObserveMutation(authz.ActionRoleAssign.Name, outcome)
		return dto.BatchEntryResult{Entry: entry, Outcome: outcome, Reason: reason}
	}

	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	targetUser, err := s.users.GetByID(callCtx, entry.TargetUserID)
	cancel()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conclude(dto.BatchOutcomeFailed, "missing_target")
		}
		return conclude(dto.BatchOutcomeFailed, "storage_error")
	}

	// Every entry passes the gate on its own, before any conflict
	// classification; an out-of-scope entry is denied even when it also
	// collides with an earlier one.
	target := authz.Target{
		InstitutionID: targetUser.InstitutionID,
		DepartmentID:  targetUser.DepartmentID,
		OwnerID:       &targetUser.ID,
	}
	decision := authz.Check(caller, authz.ActionRoleAssign, target)
	observability.ObserveAuthzDecision(authz.ActionRoleAssign, decision)
	if !decision.Allowed {
		return conclude(dto.BatchOutcomeDenied, string(decision.Reason))
	}

	// Conflict detection runs after authorization, before commit.
	if duplicate {
		return conclude(dto.BatchOutcomeConflict, dto.ConflictDuplicateTarget)
	}

	requestedRole, err := authz.ParseRole(entry.Role)
	if err != nil {
		return conclude(dto.BatchOutcomeFailed, "unknown_role")
	}

	if requestedRole.Rank() > caller.Principal.Role.Rank() {
		return conclude(dto.BatchOutcomeConflict, dto.ConflictPrivilegeEscalation)
	}
	if roleRequiresDepartment(requestedRole) {
		if entry.DepartmentID == nil {
			return conclude(dto.BatchOutcomeConflict, dto.ConflictMissingDepartment)
		}
		if caller.Scope.Kind == authz.ScopeDepartment && *entry.DepartmentID != caller.Scope.DepartmentID {
			return conclude(dto.BatchOutcomeConflict, dto.ConflictMissingDepartment)
		}
	}

	auditEntry := s.audit.Prepare(AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionRoleAssign.Name,
		TargetType: targetTypeUserRole,
		TargetID:   &entry.TargetUserID,
		Outcome:    models.AuditOutcomeApplied,
		Metadata:   metadata,
	})

	var actorInstitution *uint
	if caller.Scope.Kind != authz.ScopeGlobal {
		institutionID := caller.Principal.InstitutionID
		actorInstitution = &institutionID
	}

	callCtx, cancel = storageCtx(ctx, s.storageTimeout)
	err = s.assignments.UpdateUserRole(callCtx, entry.TargetUserID, requestedRole.String(), entry.DepartmentID, actorInstitution, auditEntry)
	cancel()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conclude(dto.BatchOutcomeFailed, "missing_target")
		}
		return conclude(dto.BatchOutcomeFailed, "storage_error")
	}

	s.audit.Announce(ctx, auditEntry)
	observability.ObserveMutation(authz.ActionRoleAssign.Name, models.AuditOutcomeApplied)
	return dto.BatchEntryResult{Entry: entry, Outcome: dto.BatchOutcomeApplied}
}

// recordEntry audits a non-applied batch entry outcome. Applied entries are
// audited inside the mutation transaction instead.
func (s *assignmentService) recordEntry(ctx context.Context, caller authz.CallerContext, entry dto.RoleChangeEntry, outcome, reason string, metadata map[string]interface{}) {
	auditOutcome := models.AuditOutcomeFailed
	switch outcome {
	case dto.BatchOutcomeDenied:
		auditOutcome = models.AuditOutcomeDenied
	case dto.BatchOutcomeConflict, dto.BatchOutcomeSkipped, dto.BatchOutcomeFailed:
		auditOutcome = models.AuditOutcomeFailed
	}

	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionRoleAssign.Name,
		TargetType: targetTypeUserRole,
		TargetID:   &entry.TargetUserID,
		Reason:     reason,
		Outcome:    auditOutcome,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Error().Err(err).Uint("target_user_id", entry.TargetUserID).Msg("failed to audit batch entry")
	}
}

func (s *assignmentService) recordUnassignDenied(ctx context.Context, caller authz.CallerContext, departmentID, teacherID uint, reason string) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionTeacherUnassign.Name,
		TargetType: targetTypeAssignment,
		TargetID:   &teacherID,
		Reason:     reason,
		Outcome:    models.AuditOutcomeDenied,
		Metadata:   map[string]interface{}{"department_id": departmentID},
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to audit unassign denial")
	}
}

func (s *assignmentService) recordUnassignFailed(ctx context.Context, caller authz.CallerContext, departmentID, teacherID uint, cause error) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionTeacherUnassign.Name,
		TargetType: targetTypeAssignment,
		TargetID:   &teacherID,
		Reason:     cause.Error(),
		Outcome:    models.AuditOutcomeFailed,
		Metadata:   map[string]interface{}{"department_id": departmentID},
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to audit unassign failure")
	}
}

// roleRequiresDepartment reports whether a role only makes sense attached to
// a department.
func roleRequiresDepartment(role authz.Role) bool {
	switch role {
	case authz.RoleDepartmentAdmin, authz.RoleTeacher:
		return true
	default:
		return false
	}
}
