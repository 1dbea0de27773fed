package models

import "time"

const (
	IntervalOneTime = "one_time"
	IntervalMonth   = "month"
)

// Plan defines the model for the 'plans' table
type Plan struct {
	ID            int64     `json:"id" db:"id"`
	Code          string    `json:"code" db:"code"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	PriceCents    int64     `json:"priceCents" db:"price_cents"`
	Currency      string    `json:"currency" db:"currency"`
	Interval      string    `json:"interval" db:"billing_interval"`
	StripePriceID string    `json:"-" db:"stripe_price_id"`
	Features      string    `json:"features" db:"features"`
	ReviewCredits int       `json:"reviewCredits" db:"review_credits"`
	IsPublic      bool      `json:"isPublic" db:"is_public"`
	SortOrder     int       `json:"sortOrder" db:"sort_order"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// Recurring reports whether checkout should open a subscription.
func (p *Plan) Recurring() bool {
	return p.Interval == IntervalMonth
}
