package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

// AssignmentRepository persists department assignment and role mutations.
// Every institution-scoped write carries the actor's institution id as a
// first-class filter term: even if the authorization gate were bypassed, the
// predicate itself re-asserts tenant isolation. The audit row is written in
// the same transaction as the mutation.
type AssignmentRepository interface {
	Unassign(ctx context.Context, departmentID, teacherID, actorInstitutionID, actorID uint, audit *models.AuditEntry) error
	UpdateUserRole(ctx context.Context, userID uint, role string, departmentID *uint, actorInstitutionID *uint, audit *models.AuditEntry) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository constructs the assignment repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Unassign(ctx context.Context, departmentID, teacherID, actorInstitutionID, actorID uint, audit *models.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		update := tx.Model(&models.DepartmentAssignment{}).
			Where("teacher_id = ? AND department_id = ? AND institution_id = ? AND active = ?", teacherID, departmentID, actorInstitutionID, true).
			Updates(map[string]interface{}{
				"active":        false,
				"unassigned_at": now,
				"unassigned_by": actorID,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// UpdateUserRole applies a single role change. A nil actorInstitutionID means
// the actor holds global scope; any narrower actor filters the write by their
// own institution.
func (r *assignmentRepository) UpdateUserRole(ctx context.Context, userID uint, role string, departmentID *uint, actorInstitutionID *uint, audit *models.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.User{}).Where("id = ?", userID)
		if actorInstitutionID != nil {
			query = query.Where("institution_id = ?", *actorInstitutionID)
		}

		updates := map[string]interface{}{"role": role}
		if departmentID != nil {
			updates["department_id"] = *departmentID
		}

		update := query.Updates(updates)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
