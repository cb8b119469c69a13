package dto

import (
	"time"

	"github.com/ScepterCode/project-nest-api/internal/models"
)

// AuditListRequest narrows audit history queries.
type AuditListRequest struct {
	Page       int
	PageSize   int
	ActorID    uint
	TargetType string
	TargetID   uint
	Action     string
	Outcome    string
}

// AuditResponse is the API projection of an audit entry.
type AuditResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	TargetType string                 `json:"target_type"`
	TargetID   *uint                  `json:"target_id,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Outcome    string                 `json:"outcome"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AuditListResponse wraps a page of audit history.
type AuditListResponse struct {
	Items      []AuditResponse `json:"items"`
	Pagination PaginationMeta  `json:"pagination"`
}

// NewAuditResponse maps an audit model to its API projection.
func NewAuditResponse(entry models.AuditEntry) AuditResponse {
	return AuditResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Reason:     entry.Reason,
		Outcome:    entry.Outcome,
		Metadata:   entry.Metadata,
		CreatedAt:  entry.CreatedAt,
	}
}
