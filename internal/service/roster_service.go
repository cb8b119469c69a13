package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/models"
	"github.com/ScepterCode/project-nest-api/internal/observability"
	"github.com/ScepterCode/project-nest-api/internal/repository"
)

// Roster service sentinel errors.
var (
	ErrMissingReason   = errors.New("removal reason is required")
	ErrClassNotFound   = errors.New("class not found")
	ErrNotEnrolled     = errors.New("student is not enrolled")
	ErrAlreadyEnrolled = errors.New("student is already enrolled")
)

const targetTypeRoster = "roster"

// RosterService owns the class-membership lifecycle. Every mutation passes
// the authorization gate first and leaves an audit entry, denials included.
type RosterService interface {
	RemoveStudent(ctx context.Context, caller authz.CallerContext, classID, studentID uint, req dto.RosterRemoveRequest) (dto.MembershipResponse, error)
	AddStudent(ctx context.Context, caller authz.CallerContext, classID uint, req dto.RosterAddRequest) (dto.MembershipResponse, error)
}

type rosterService struct {
	memberships    repository.MembershipRepository
	classes        repository.ClassRepository
	audit          AuditLog
	validator      *validator.Validate
	sanitizer      *bluemonday.Policy
	storageTimeout time.Duration
	logger         zerolog.Logger
}

// NewRosterService constructs the roster service.
func NewRosterService(memberships repository.MembershipRepository, classes repository.ClassRepository, audit AuditLog, validate *validator.Validate, storageTimeout time.Duration, logger zerolog.Logger) RosterService {
	return &rosterService{
		memberships:    memberships,
		classes:        classes,
		audit:          audit,
		validator:      validate,
		sanitizer:      bluemonday.StrictPolicy(),
		storageTimeout: storageTimeout,
		logger:         logger.With().Str("component", "roster_service").Logger(),
	}
}

func (s *rosterService) RemoveStudent(ctx context.Context, caller authz.CallerContext, classID, studentID uint, req dto.RosterRemoveRequest) (dto.MembershipResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MembershipResponse{}, err
	}

	// Reason is mandatory and validated before any storage access; a silent
	// default would discard the caller's justification.
	reason := s.sanitizer.Sanitize(strings.TrimSpace(req.Reason))
	if reason == "" {
		return dto.MembershipResponse{}, ErrMissingReason
	}

	class, err := s.lookupClass(ctx, classID)
	if err != nil {
		return dto.MembershipResponse{}, err
	}

	target := rosterTarget(class)
	decision := authz.Check(caller, authz.ActionRosterRemove, target)
	observability.ObserveAuthzDecision(authz.ActionRosterRemove, decision)
	if !decision.Allowed {
		s.recordDenied(ctx, caller, authz.ActionRosterRemove, classID, decision, map[string]interface{}{
			"student_id": studentID,
		})
		return dto.MembershipResponse{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	entry := s.audit.Prepare(AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionRosterRemove.Name,
		TargetType: targetTypeRoster,
		TargetID:   &classID,
		Reason:     reason,
		Outcome:    models.AuditOutcomeApplied,
		Metadata:   map[string]interface{}{"student_id": studentID},
	})

	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()

	membership, err := s.memberships.Remove(callCtx, classID, studentID, caller.Principal.ID, reason, entry)
	if err != nil {
		// Authorization already passed, so the attempt is still audited.
		s.recordFailed(ctx, caller, authz.ActionRosterRemove, classID, err, map[string]interface{}{
			"student_id": studentID,
			"reason":     reason,
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MembershipResponse{}, ErrNotEnrolled
		}
		return dto.MembershipResponse{}, err
	}

	s.audit.Announce(ctx, entry)
	observability.ObserveMutation(authz.ActionRosterRemove.Name, models.AuditOutcomeApplied)

	s.logger.Info().
		Uint("class_id", classID).
		Uint("student_id", studentID).
		Uint("actor_id", caller.Principal.ID).
		Msg("student removed from roster")

	return dto.NewMembershipResponse(membership), nil
}

func (s *rosterService) AddStudent(ctx context.Context, caller authz.CallerContext, classID uint, req dto.RosterAddRequest) (dto.MembershipResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MembershipResponse{}, err
	}

	class, err := s.lookupClass(ctx, classID)
	if err != nil {
		return dto.MembershipResponse{}, err
	}

	target := rosterTarget(class)
	decision := authz.Check(caller, authz.ActionRosterAdd, target)
	observability.ObserveAuthzDecision(authz.ActionRosterAdd, decision)
	if !decision.Allowed {
		s.recordDenied(ctx, caller, authz.ActionRosterAdd, classID, decision, map[string]interface{}{
			"student_id": req.StudentID,
		})
		return dto.MembershipResponse{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	entry := s.audit.Prepare(AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionRosterAdd.Name,
		TargetType: targetTypeRoster,
		TargetID:   &classID,
		Outcome:    models.AuditOutcomeApplied,
		Metadata:   map[string]interface{}{"student_id": req.StudentID},
	})

	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()

	membership, err := s.memberships.Add(callCtx, classID, req.StudentID, entry)
	if err != nil {
		s.recordFailed(ctx, caller, authz.ActionRosterAdd, classID, err, map[string]interface{}{
			"student_id": req.StudentID,
		})
		if errors.Is(err, repository.ErrActiveMembership) {
			return dto.MembershipResponse{}, ErrAlreadyEnrolled
		}
		return dto.MembershipResponse{}, err
	}

	s.audit.Announce(ctx, entry)
	observability.ObserveMutation(authz.ActionRosterAdd.Name, models.AuditOutcomeApplied)

	return dto.NewMembershipResponse(membership), nil
}

func (s *rosterService) lookupClass(ctx context.Context, classID uint) (models.Class, error) {
	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()

	class, err := s.classes.GetByID(callCtx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Class{}, ErrClassNotFound
		}
		return models.Class{}, err
	}
	return class, nil
}

func (s *rosterService) recordDenied(ctx context.Context, caller authz.CallerContext, action authz.Action, classID uint, decision authz.Decision, metadata map[string]interface{}) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     action.Name,
		TargetType: targetTypeRoster,
		TargetID:   &classID,
		Reason:     string(decision.Reason),
		Outcome:    models.AuditOutcomeDenied,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Error().Err(err).Str("action", action.Name).Msg("failed to audit denial")
	}
}

func (s *rosterService) recordFailed(ctx context.Context, caller authz.CallerContext, action authz.Action, classID uint, cause error, metadata map[string]interface{}) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     action.Name,
		TargetType: targetTypeRoster,
		TargetID:   &classID,
		Reason:     cause.Error(),
		Outcome:    models.AuditOutcomeFailed,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Error().Err(err).Str("action", action.Name).Msg("failed to audit failure")
	}
}

func rosterTarget(class models.Class) authz.Target {
	teacherID := class.TeacherID
	return authz.Target{
		InstitutionID: class.InstitutionID,
		DepartmentID:  class.DepartmentID,
		OwnerID:       &teacherID,
	}
}
