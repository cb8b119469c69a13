package models

import "time"

// Membership status values. A removed membership row is retained, never
// deleted; removal is a status transition so the roster history stays
// reconstructable together with the audit stream.
const (
	MembershipStatusActive    = "active"
	MembershipStatusRemoved   = "removed"
	MembershipStatusCompleted = "completed"
)

// Membership links a student to a class roster. At most one row exists per
// (class, student) pair and at most one of those may be active at any instant;
// the uniqueness index is what conditional roster writes key on.
type Membership struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ClassID   uint       `gorm:"not null;uniqueIndex:idx_membership_class_student" json:"class_id"`
	StudentID uint       `gorm:"not null;uniqueIndex:idx_membership_class_student" json:"student_id"`
	Status    string     `gorm:"size:32;not null;default:active" json:"status"`
	JoinedAt  time.Time  `json:"joined_at"`
	RemovedAt *time.Time `json:"removed_at"`
	RemovedBy *uint      `json:"removed_by"`
	Reason    string     `gorm:"size:512" json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Class Class `gorm:"foreignKey:ClassID" json:"class,omitempty"`
}
