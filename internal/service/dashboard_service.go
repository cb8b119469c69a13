package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/models"
	"github.com/ScepterCode/project-nest-api/internal/observability"
	"github.com/ScepterCode/project-nest-api/internal/repository"
)

// ErrStudentNotFound indicates the dashboard target does not exist.
var ErrStudentNotFound = errors.New("student not found")

const targetTypeDashboard = "dashboard"

// ScheduleProvider supplies upcoming class sessions for a student. The
// collaborator is optional: a failure degrades the dashboard, it never fails
// it.
type ScheduleProvider interface {
	GetUpcoming(ctx context.Context, studentID uint) ([]dto.ScheduleItem, error)
}

// ActivityProvider supplies derived progress metrics for a student. Optional
// in the same way as ScheduleProvider.
type ActivityProvider interface {
	GetActivity(ctx context.Context, studentID uint) (dto.ActivityMetrics, error)
}

// DashboardService composes a student's enrollment dashboard. Purely
// read-side: it passes the authorization gate but performs no mutation.
type DashboardService interface {
	GetDashboard(ctx context.Context, caller authz.CallerContext, studentID uint) (dto.DashboardResponse, error)
}

type dashboardService struct {
	users          repository.UserRepository
	memberships    repository.MembershipRepository
	schedule       ScheduleProvider
	activity       ActivityProvider
	audit          AuditLog
	cache          *redis.Client
	cacheTTL       time.Duration
	retryDelay     time.Duration
	storageTimeout time.Duration
	logger         zerolog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// NewDashboardService constructs the enrollment dashboard aggregator.
func NewDashboardService(users repository.UserRepository, memberships repository.MembershipRepository, schedule ScheduleProvider, activity ActivityProvider, audit AuditLog, cache *redis.Client, cacheTTL, storageTimeout time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		users:          users,
		memberships:    memberships,
		schedule:       schedule,
		activity:       activity,
		audit:          audit,
		cache:          cache,
		cacheTTL:       cacheTTL,
		retryDelay:     200 * time.Millisecond,
		storageTimeout: storageTimeout,
		logger:         logger.With().Str("component", "dashboard_service").Logger(),
		tracer:         otel.Tracer("github.com/ScepterCode/project-nest-api/internal/service/dashboard"),
		now:            time.Now,
	}
}

func (s *dashboardService) GetDashboard(ctx context.Context, caller authz.CallerContext, studentID uint) (dto.DashboardResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dashboard.get", trace.WithAttributes(
		attribute.Int64("student.id", int64(studentID)),
	))
	defer span.End()

	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	student, err := s.users.GetByID(callCtx, studentID)
	cancel()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DashboardResponse{}, ErrStudentNotFound
		}
		return dto.DashboardResponse{}, err
	}

	target := authz.Target{
		InstitutionID: student.InstitutionID,
		DepartmentID:  student.DepartmentID,
		OwnerID:       &student.ID,
	}
	decision := authz.Check(caller, authz.ActionDashboardView, target)
	observability.ObserveAuthzDecision(authz.ActionDashboardView, decision)
	if !decision.Allowed {
		s.recordDenied(ctx, caller, studentID, decision)
		return dto.DashboardResponse{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	cacheKey := fmt.Sprintf("dashboard:student:%d", studentID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("student_id", studentID).Msg("dashboard cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	memberships, err := s.listMembershipsWithRetry(ctx, studentID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	response := s.buildResponse(ctx, student, memberships)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

// listMembershipsWithRetry retries the read-side storage call once with a
// short backoff. Mutating paths never do this: an ambiguous retried write
// could break the single-active-membership invariant, a repeated read cannot.
func (s *dashboardService) listMembershipsWithRetry(ctx context.Context, studentID uint) ([]models.Membership, error) {
	callCtx, cancel := storageCtx(ctx, s.storageTimeout)
	memberships, err := s.memberships.ListByStudent(callCtx, studentID)
	cancel()
	if err == nil {
		return memberships, nil
	}

	s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("membership read failed, retrying once")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.retryDelay):
	}

	callCtx, cancel = storageCtx(ctx, s.storageTimeout)
	defer cancel()
	return s.memberships.ListByStudent(callCtx, studentID)
}

func (s *dashboardService) buildResponse(ctx context.Context, student models.User, memberships []models.Membership) dto.DashboardResponse {
	summary := dto.EnrollmentSummary{}
	active := make([]dto.EnrollmentItem, 0, len(memberships))
	past := make([]dto.EnrollmentItem, 0)

	for _, membership := range memberships {
		item := dto.EnrollmentItem{
			ClassID:   membership.ClassID,
			ClassName: membership.Class.Name,
			Status:    membership.Status,
			JoinedAt:  membership.JoinedAt,
			RemovedAt: membership.RemovedAt,
		}

		summary.TotalEnrollments++
		switch membership.Status {
		case models.MembershipStatusActive:
			summary.Active++
			active = append(active, item)
		case models.MembershipStatusCompleted:
			summary.Completed++
			past = append(past, item)
		case models.MembershipStatusRemoved:
			summary.Removed++
			past = append(past, item)
		}
	}

	if summary.TotalEnrollments > 0 {
		summary.CompletionRate = float64(summary.Completed) / float64(summary.TotalEnrollments) * 100
	}

	response := dto.DashboardResponse{
		StudentID:   student.ID,
		Summary:     summary,
		Active:      active,
		Past:        past,
		Upcoming:    []dto.ScheduleItem{},
		GeneratedAt: s.now(),
	}

	if s.schedule != nil {
		if upcoming, err := s.schedule.GetUpcoming(ctx, student.ID); err != nil {
			s.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("schedule source unavailable, serving degraded dashboard")
			response.Degraded = true
		} else {
			response.Upcoming = upcoming
		}
	}

	if s.activity != nil {
		if metrics, err := s.activity.GetActivity(ctx, student.ID); err != nil {
			s.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("activity source unavailable, serving degraded dashboard")
			response.Degraded = true
		} else {
			response.Metrics = &metrics
		}
	}

	return response
}

func (s *dashboardService) recordDenied(ctx context.Context, caller authz.CallerContext, studentID uint, decision authz.Decision) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:    caller.Principal.ID,
		ActorRole:  caller.Principal.Role.String(),
		Action:     authz.ActionDashboardView.Name,
		TargetType: targetTypeDashboard,
		TargetID:   &studentID,
		Reason:     string(decision.Reason),
		Outcome:    models.AuditOutcomeDenied,
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to audit dashboard denial")
	}
}
