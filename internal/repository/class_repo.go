package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

// ClassRepository exposes read access to class rosters.
type ClassRepository interface {
	GetByID(ctx context.Context, id uint) (models.Class, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository constructs the class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).First(&class, id).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}
