package models

import "time"

// User represents any principal known to the platform: students, teachers and
// the admin tiers. The role string is validated against the closed role set in
// the authz package before it is ever trusted.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Email         string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role          string    `gorm:"size:32;not null" json:"role"`
	InstitutionID uint      `gorm:"not null;index" json:"institution_id"`
	DepartmentID  *uint     `gorm:"index" json:"department_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
