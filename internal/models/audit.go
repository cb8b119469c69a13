package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit outcome values. Every gated mutation attempt produces exactly one
// entry, including denials.
const (
	AuditOutcomeApplied = "applied"
	AuditOutcomeDenied  = "denied"
	AuditOutcomeFailed  = "failed"
)

// AuditEntry is an append-only record of a gated mutation attempt. Rows are
// never updated or deleted.
type AuditEntry struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	TargetType string            `gorm:"size:64;not null;index:idx_audit_target" json:"target_type"`
	TargetID   *uint             `gorm:"index:idx_audit_target" json:"target_id"`
	Reason     string            `gorm:"size:512" json:"reason"`
	Outcome    string            `gorm:"size:16;not null;index" json:"outcome"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
