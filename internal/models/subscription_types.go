package models

import "time"

const (
	SubscriptionActive     = "ACTIVE"
	SubscriptionTrialing   = "TRIALING"
	SubscriptionPastDue    = "PAST_DUE"
	SubscriptionCanceled   = "CANCELED"
	SubscriptionIncomplete = "INCOMPLETE"
	SubscriptionUnpaid     = "UNPAID"
)

// Subscription defines the model for the 'subscriptions' table
type Subscription struct {
	ID                   int64      `json:"id" db:"id"`
	UserID               int64      `json:"userId" db:"user_id"`
	PlanID               *int64     `json:"planId,omitempty" db:"plan_id"`
	StripeSubscriptionID string     `json:"-" db:"stripe_subscription_id"`
	StripeCustomerID     string     `json:"-" db:"stripe_customer_id"`
	Status               string     `json:"status" db:"status"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty" db:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd" db:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt" db:"updated_at"`

	// Not in the table, populated by joins.
	PlanName string `json:"planName,omitempty" db:"-"`
}

// Grants reports whether the subscription currently entitles the user to reviews.
func (s *Subscription) Grants(now time.Time) bool {
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}
