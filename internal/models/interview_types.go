package models

import "time"

const (
	InterviewPending   = "PENDING"
	InterviewScheduled = "SCHEDULED"
	InterviewCompleted = "COMPLETED"
	InterviewCancelled = "CANCELLED"
)

// InterviewRequest is a request for a mock residency interview session.
type InterviewRequest struct {
	ID             int64      `json:"id" db:"id"`
	UserID         *int64     `json:"userId,omitempty" db:"user_id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	Specialty      string     `json:"specialty" db:"specialty"`
	PreferredDates string     `json:"preferredDates" db:"preferred_dates"`
	Notes          *string    `json:"notes,omitempty" db:"notes"`
	Status         string     `json:"status" db:"status"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty" db:"scheduled_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}
