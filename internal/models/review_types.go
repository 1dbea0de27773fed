package models

import "time"

const (
	ReviewStatusDraft     = "DRAFT"
	ReviewStatusPublished = "PUBLISHED"
)

// Review is an admin's written feedback on an application or one of its documents.
type Review struct {
	ID            int64     `json:"id" db:"id"`
	ApplicationID int64     `json:"applicationId" db:"application_id"`
	ReviewerID    int64     `json:"reviewerId" db:"reviewer_id"`
	DocumentID    *int64    `json:"documentId,omitempty" db:"document_id"`
	Summary       string    `json:"summary" db:"summary"`
	Feedback      string    `json:"feedback" db:"feedback"`
	Score         *int      `json:"score,omitempty" db:"score"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
