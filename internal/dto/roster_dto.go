package dto

import (
	"time"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

// RosterRemoveRequest carries the payload for removing a student from a class.
type RosterRemoveRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RosterAddRequest carries the payload for enrolling a student into a class.
type RosterAddRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
}

// MembershipResponse is the API projection of a roster membership record.
type MembershipResponse struct {
	ID        uint       `json:"id"`
	ClassID   uint       `json:"class_id"`
	StudentID uint       `json:"student_id"`
	Status    string     `json:"status"`
	JoinedAt  time.Time  `json:"joined_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
	RemovedBy *uint      `json:"removed_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// NewMembershipResponse maps a membership model to its API projection.
func NewMembershipResponse(m models.Membership) MembershipResponse {
	return MembershipResponse{
		ID:        m.ID,
		ClassID:   m.ClassID,
		StudentID: m.StudentID,
		Status:    m.Status,
		JoinedAt:  m.JoinedAt,
		RemovedAt: m.RemovedAt,
		RemovedBy: m.RemovedBy,
		Reason:    m.Reason,
	}
}
