package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

// ErrActiveMembership indicates an active membership already exists for the
// (class, student) pair.
var ErrActiveMembership = errors.New("active membership exists")

// MembershipRepository persists roster membership transitions. Mutations are
// conditional single-row writes keyed on the (class, student) uniqueness
// invariant: two concurrent removals of the same membership cannot both
// succeed, exactly one observes zero affected rows. The audit row is written
// inside the same transaction as the transition.
type MembershipRepository interface {
	FindActive(ctx context.Context, classID, studentID uint) (models.Membership, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.Membership, error)
	Remove(ctx context.Context, classID, studentID, removedBy uint, reason string, audit *models.AuditEntry) (models.Membership, error)
	Add(ctx context.Context, classID, studentID uint, audit *models.AuditEntry) (models.Membership, error)
}

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository constructs the membership repository.
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) FindActive(ctx context.Context, classID, studentID uint) (models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND student_id = ? AND status = ?", classID, studentID, models.MembershipStatusActive).
		First(&membership).Error
	if err != nil {
		return models.Membership{}, err
	}
	return membership, nil
}

func (r *membershipRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.Membership, error) {
	var memberships []models.Membership
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("student_id = ?", studentID).
		Order("joined_at DESC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *membershipRepository) Remove(ctx context.Context, classID, studentID, removedBy uint, reason string, audit *models.AuditEntry) (models.Membership, error) {
	var membership models.Membership

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		update := tx.Model(&models.Membership{}).
			Where("class_id = ? AND student_id = ? AND status = ?", classID, studentID, models.MembershipStatusActive).
			Updates(map[string]interface{}{
				"status":     models.MembershipStatusRemoved,
				"removed_at": now,
				"removed_by": removedBy,
				"reason":     reason,
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

		return tx.Where("class_id = ? AND student_id = ?", classID, studentID).First(&membership).Error
	})
	if err != nil {
		return models.Membership{}, err
	}

	return membership, nil
}

func (r *membershipRepository) Add(ctx context.Context, classID, studentID uint, audit *models.AuditEntry) (models.Membership, error) {
	var membership models.Membership

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// Re-enrollment revives the retained row; the removal history
		// itself lives in the audit stream.
		revive := tx.Model(&models.Membership{}).
			Where("class_id = ? AND student_id = ? AND status <> ?", classID, studentID, models.MembershipStatusActive).
			Updates(map[string]interface{}{
				"status":     models.MembershipStatusActive,
				"joined_at":  now,
				"removed_at": nil,
				"removed_by": nil,
				"reason":     "",
			})
		if revive.Error != nil {
			return revive.Error
		}

		if revive.RowsAffected == 0 {
			fresh := models.Membership{
				ClassID:   classID,
				StudentID: studentID,
				Status:    models.MembershipStatusActive,
				JoinedAt:  now,
			}
			insert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "class_id"}, {Name: "student_id"}},
				DoNothing: true,
			}).Create(&fresh)
			if insert.Error != nil {
				return insert.Error
			}
			if insert.RowsAffected == 0 {
				return ErrActiveMembership
			}
		}

		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
		}

		return tx.Where("class_id = ? AND student_id = ?", classID, studentID).First(&membership).Error
	})
	if err != nil {
		return models.Membership{}, err
	}

	return membership, nil
}
