package models

import "time"

// MaxMostMeaningful is the ERAS cap on experiences flagged "most meaningful".
const MaxMostMeaningful = 3

// Experience is one ERAS experience entry.
type Experience struct {
	ID               int64      `json:"id" db:"id"`
	ApplicationID    int64      `json:"applicationId" db:"application_id"`
	Kind             string     `json:"kind" db:"kind"`
	Organization     string     `json:"organization" db:"organization"`
	Position         string     `json:"position" db:"position"`
	City             *string    `json:"city,omitempty" db:"city"`
	Country          *string    `json:"country,omitempty" db:"country"`
	StartDate        time.Time  `json:"startDate" db:"start_date"`
	EndDate          *time.Time `json:"endDate,omitempty" db:"end_date"`
	HoursPerWeek     *int       `json:"hoursPerWeek,omitempty" db:"hours_per_week"`
	Description      string     `json:"description" db:"description"`
	IsMostMeaningful bool       `json:"isMostMeaningful" db:"is_most_meaningful"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
}
