package models

import "time"

// DepartmentAssignment records a teacher's current department attachment.
// A teacher has at most one active assignment per institution.
type DepartmentAssignment struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	TeacherID     uint       `gorm:"not null;index" json:"teacher_id"`
	InstitutionID uint       `gorm:"not null;index" json:"institution_id"`
	DepartmentID  uint       `gorm:"not null;index" json:"department_id"`
	Active        bool       `gorm:"not null;default:true" json:"active"`
	UnassignedAt  *time.Time `json:"unassigned_at"`
	UnassignedBy  *uint      `json:"unassigned_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
