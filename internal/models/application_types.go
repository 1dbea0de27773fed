package models

import (
	"errors"
	"time"
)

// ApplicationStatus is the lifecycle state of an ERAS application under review.
type ApplicationStatus string

const (
	StatusDraft     ApplicationStatus = "DRAFT"
	StatusInReview  ApplicationStatus = "IN_REVIEW"
	StatusSubmitted ApplicationStatus = "SUBMITTED"
	StatusReviewed  ApplicationStatus = "REVIEWED"
	StatusCompleted ApplicationStatus = "COMPLETED"
)

// AllApplicationStatuses lists statuses in lifecycle order.
var AllApplicationStatuses = []ApplicationStatus{
	StatusDraft, StatusInReview, StatusSubmitted, StatusReviewed, StatusCompleted,
}

var ErrInvalidTransition = errors.New("invalid application status transition")

// Credit sources record what paid for an application's first submit.
const (
	CreditSourceSubscription = "SUBSCRIPTION"
	CreditSourcePurchase     = "PURCHASE"
)

// applicantTransitions and adminTransitions are the only moves each actor may make.
var applicantTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusDraft:    {StatusInReview},
	StatusInReview: {StatusDraft, StatusSubmitted},
}

var adminTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusSubmitted: {StatusReviewed, StatusInReview},
	StatusReviewed:  {StatusCompleted},
}

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	for _, known := range AllApplicationStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Editable reports whether the applicant may still change content.
func (s ApplicationStatus) Editable() bool {
	return s == StatusDraft || s == StatusInReview
}

// CheckTransition returns ErrInvalidTransition unless the actor role may move
// an application from one status to the other.
func CheckTransition(role string, from, to ApplicationStatus) error {
	table := applicantTransitions
	if role == RoleAdmin {
		table = adminTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// Application is one applicant's residency application package.
type Application struct {
	ID          int64             `json:"id" db:"id"`
	UserID      int64             `json:"userId" db:"user_id"`
	Title       string            `json:"title" db:"title"`
	Specialty   string            `json:"specialty" db:"specialty"`
	CycleYear   int               `json:"cycleYear" db:"cycle_year"`
	Status      ApplicationStatus `json:"status" db:"status"`
	ServiceTier *string           `json:"serviceTier,omitempty" db:"service_tier"`
	Notes       *string           `json:"notes,omitempty" db:"notes"`

	SubmittedAt  *time.Time `json:"submittedAt,omitempty" db:"submitted_at"`
	CreditSource *string    `json:"creditSource,omitempty" db:"credit_source"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty" db:"reviewed_at"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`

	// Populated for the admin views only.
	ApplicantName  string `json:"applicantName,omitempty" db:"-"`
	ApplicantEmail string `json:"applicantEmail,omitempty" db:"-"`
}
