package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/models"
	"github.com/ScepterCode/project-nest-api/internal/repository"
)

func setupDashboardDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Class{}, &models.Membership{}, &models.AuditEntry{}))
	return db
}

func studentCaller(id uint) authz.CallerContext {
	return authz.CallerContext{
		Principal: authz.Principal{ID: id, Role: authz.RoleStudent, InstitutionID: 10},
		Scope:     authz.Scope{Kind: authz.ScopeSelf, UserID: id},
	}
}

type stubSchedule struct {
	items []dto.ScheduleItem
	err   error
}

func (s *stubSchedule) GetUpcoming(context.Context, uint) ([]dto.ScheduleItem, error) {
	return s.items, s.err
}

type stubActivity struct {
	metrics dto.ActivityMetrics
	err     error
}

func (s *stubActivity) GetActivity(context.Context, uint) (dto.ActivityMetrics, error) {
	return s.metrics, s.err
}

func TestDashboardAggregationAndCaching(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db := setupDashboardDB(t)

	student := models.User{ID: 600, Name: "Ada", Email: "ada-dash@example.com", Role: "student", InstitutionID: 10}
	require.NoError(t, db.Create(&student).Error)

	classA := models.Class{ID: 601, Name: "Algebra", TeacherID: 7, InstitutionID: 10}
	classB := models.Class{ID: 602, Name: "Biology", TeacherID: 8, InstitutionID: 10}
	require.NoError(t, db.Create(&classA).Error)
	require.NoError(t, db.Create(&classB).Error)

	now := time.Now()
	removedAt := now.Add(-time.Hour)
	memberships := []models.Membership{
		{ClassID: 601, StudentID: 600, Status: models.MembershipStatusActive, JoinedAt: now.Add(-72 * time.Hour)},
		{ClassID: 602, StudentID: 600, Status: models.MembershipStatusCompleted, JoinedAt: now.Add(-200 * time.Hour)},
		{ClassID: 603, StudentID: 600, Status: models.MembershipStatusRemoved, JoinedAt: now.Add(-400 * time.Hour), RemovedAt: &removedAt},
	}
	for i := range memberships {
		require.NoError(t, db.Create(&memberships[i]).Error)
	}

	userRepo := repository.NewUserRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	schedule := &stubSchedule{items: []dto.ScheduleItem{{ClassID: 601, Title: "Algebra", StartsAt: now.Add(24 * time.Hour)}}}
	activity := &stubActivity{metrics: dto.ActivityMetrics{ProgressPercent: 40}}

	svc := NewDashboardService(userRepo, membershipRepo, schedule, activity, &memoryAuditLog{}, redisClient, time.Minute, time.Second, testLogger())

	ctx := context.Background()
	first, err := svc.GetDashboard(ctx, studentCaller(600), 600)
	require.NoError(t, err)
	require.Equal(t, 3, first.Summary.TotalEnrollments)
	require.Equal(t, 1, first.Summary.Active)
	require.Equal(t, 1, first.Summary.Completed)
	require.Equal(t, 1, first.Summary.Removed)
	require.InDelta(t, 33.33, first.Summary.CompletionRate, 0.5)
	require.Len(t, first.Active, 1)
	require.Len(t, first.Past, 2)
	require.Len(t, first.Upcoming, 1)
	require.NotNil(t, first.Metrics)
	require.False(t, first.Degraded)

	// Mutate storage to prove the second read is served from cache.
	require.NoError(t, db.Model(&models.Membership{}).Where("class_id = ? AND student_id = ?", 601, 600).Update("status", models.MembershipStatusRemoved).Error)

	second, err := svc.GetDashboard(ctx, studentCaller(600), 600)
	require.NoError(t, err)
	require.Equal(t, first.Summary, second.Summary)
}

func TestDashboardCacheHit(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db := setupDashboardDB(t)
	student := models.User{ID: 610, Name: "Ben", Email: "ben-dash@example.com", Role: "student", InstitutionID: 10}
	require.NoError(t, db.Create(&student).Error)

	svc := NewDashboardService(repository.NewUserRepository(db), repository.NewMembershipRepository(db), nil, nil, &memoryAuditLog{}, redisClient, time.Minute, time.Second, testLogger())

	ctx := context.Background()
	cached := dto.DashboardResponse{StudentID: 610, Summary: dto.EnrollmentSummary{TotalEnrollments: 5}}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, redisClient.Set(ctx, "dashboard:student:610", payload, time.Minute).Err())

	response, err := svc.GetDashboard(ctx, studentCaller(610), 610)
	require.NoError(t, err)
	require.Equal(t, 5, response.Summary.TotalEnrollments)
}

func TestDashboardDeniedForOtherStudent(t *testing.T) {
	db := setupDashboardDB(t)
	student := models.User{ID: 620, Name: "Cleo", Email: "cleo-dash@example.com", Role: "student", InstitutionID: 10}
	require.NoError(t, db.Create(&student).Error)

	audit := &memoryAuditLog{}
	svc := NewDashboardService(repository.NewUserRepository(db), repository.NewMembershipRepository(db), nil, nil, audit, nil, time.Minute, time.Second, testLogger())

	_, err := svc.GetDashboard(context.Background(), studentCaller(621), 620)
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, []string{models.AuditOutcomeDenied}, audit.recordedOutcomes())
}

func TestDashboardUnknownStudent(t *testing.T) {
	db := setupDashboardDB(t)
	svc := NewDashboardService(repository.NewUserRepository(db), repository.NewMembershipRepository(db), nil, nil, &memoryAuditLog{}, nil, time.Minute, time.Second, testLogger())

	_, err := svc.GetDashboard(context.Background(), studentCaller(9999), 9999)
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestDashboardDegradesWhenCollaboratorsFail(t *testing.T) {
	db := setupDashboardDB(t)
	student := models.User{ID: 630, Name: "Dan", Email: "dan-dash@example.com", Role: "student", InstitutionID: 10}
	require.NoError(t, db.Create(&student).Error)

	schedule := &stubSchedule{err: errors.New("schedule offline")}
	svc := NewDashboardService(repository.NewUserRepository(db), repository.NewMembershipRepository(db), schedule, nil, &memoryAuditLog{}, nil, time.Minute, time.Second, testLogger())

	response, err := svc.GetDashboard(context.Background(), studentCaller(630), 630)
	require.NoError(t, err)
	require.True(t, response.Degraded)
	require.Empty(t, response.Upcoming)
}

// flakyMembershipRepo fails a fixed number of reads before succeeding.
type flakyMembershipRepo struct {
	*fakeMembershipRepo
	failures int
}

func (r *flakyMembershipRepo) ListByStudent(ctx context.Context, studentID uint) ([]models.Membership, error) {
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("transient read failure")
	}
	return r.fakeMembershipRepo.ListByStudent(ctx, studentID)
}

func TestDashboardRetriesReadOnce(t *testing.T) {
	users := &fakeUserRepo{users: map[uint]models.User{
		640: {ID: 640, Role: "student", InstitutionID: 10},
	}}
	memberships := &flakyMembershipRepo{fakeMembershipRepo: newFakeMembershipRepo(), failures: 1}
	_, err := memberships.Add(context.Background(), 641, 640, nil)
	require.NoError(t, err)

	svc := NewDashboardService(users, memberships, nil, nil, &memoryAuditLog{}, nil, time.Minute, time.Second, testLogger())

	response, err := svc.GetDashboard(context.Background(), studentCaller(640), 640)
	require.NoError(t, err)
	require.Equal(t, 1, response.Summary.TotalEnrollments)
}

func TestDashboardReadFailsAfterSecondAttempt(t *testing.T) {
	users := &fakeUserRepo{users: map[uint]models.User{
		650: {ID: 650, Role: "student", InstitutionID: 10},
	}}
	memberships := &flakyMembershipRepo{fakeMembershipRepo: newFakeMembershipRepo(), failures: 2}

	svc := NewDashboardService(users, memberships, nil, nil, &memoryAuditLog{}, nil, time.Minute, time.Second, testLogger())

	_, err := svc.GetDashboard(context.Background(), studentCaller(650), 650)
	require.Error(t, err)
}
