package dto

// Batch entry outcome values.
const (
	BatchOutcomeApplied  = "applied"
	BatchOutcomeDenied   = "denied"
	BatchOutcomeConflict = "conflict"
	BatchOutcomeFailed   = "failed"
	BatchOutcomeSkipped  = "skipped"
)

// Batch conflict reasons.
const (
	ConflictMissingDepartment   = "missing_department"
	ConflictDuplicateTarget     = "duplicate_target"
	ConflictPrivilegeEscalation = "privilege_escalation"
)

// RoleChangeEntry is one requested role change inside a bulk batch.
type RoleChangeEntry struct {
	TargetUserID uint   `json:"target_user_id" validate:"required"`
	Role         string `json:"role" validate:"required"`
	DepartmentID *uint  `json:"department_id"`
}

// RoleChangeBatchRequest is an ordered sequence of independent role changes.
type RoleChangeBatchRequest struct {
	Entries []RoleChangeEntry `json:"entries" validate:"required,min=1,dive"`
}

// BatchEntryResult reports the outcome of a single batch entry.
type BatchEntryResult struct {
	Entry   RoleChangeEntry `json:"entry"`
	Outcome string          `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
}

// BatchResponse reports per-entry outcomes for a bulk role assignment.
// Incomplete marks a batch cut short by request cancellation: entries already
// committed stay committed, the remainder is reported as skipped.
type BatchResponse struct {
	BatchID    string             `json:"batch_id"`
	Incomplete bool               `json:"incomplete"`
	Results    []BatchEntryResult `json:"results"`
}
