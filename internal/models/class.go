package models

import "time"

// Class is a roster container owned by a single teacher within an institution.
type Class struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	TeacherID     uint      `gorm:"not null;index" json:"teacher_id"`
	InstitutionID uint      `gorm:"not null;index" json:"institution_id"`
	DepartmentID  *uint     `gorm:"index" json:"department_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
