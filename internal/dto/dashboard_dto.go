package dto

import "time"

// EnrollmentItem is one class enrollment in a student dashboard.
type EnrollmentItem struct {
	ClassID   uint       `json:"class_id"`
	ClassName string     `json:"class_name"`
	Status    string     `json:"status"`
	JoinedAt  time.Time  `json:"joined_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// EnrollmentSummary aggregates a student's enrollment state.
type EnrollmentSummary struct {
	TotalEnrollments int     `json:"total_enrollments"`
	Active           int     `json:"active"`
	Completed        int     `json:"completed"`
	Removed          int     `json:"removed"`
	CompletionRate   float64 `json:"completion_rate"`
}

// ScheduleItem is an upcoming class session sourced from the scheduling
// collaborator.
type ScheduleItem struct {
	ClassID  uint      `json:"class_id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
}

// ActivityMetrics carries derived progress data from the activity
// collaborator.
type ActivityMetrics struct {
	ProgressPercent float64    `json:"progress_percent"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
}

// DashboardResponse is the read-side composition of a student's enrollments.
// Degraded is set when an optional metric source was unavailable and the view
// was populated without it.
type DashboardResponse struct {
	StudentID   uint             `json:"student_id"`
	Summary     EnrollmentSummary `json:"summary"`
	Active      []EnrollmentItem `json:"active"`
	Past        []EnrollmentItem `json:"past"`
	Upcoming    []ScheduleItem   `json:"upcoming"`
	Metrics     *ActivityMetrics `json:"metrics,omitempty"`
	Degraded    bool             `json:"degraded"`
	GeneratedAt time.Time        `json:"generated_at"`
}
