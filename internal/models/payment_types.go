package models

import "time"

const (
	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
	PaymentExpired   = "EXPIRED"
	PaymentRefunded  = "REFUNDED"
)

// Payment mirrors one checkout session or subscription invoice at the payment provider.
type Payment struct {
	ID                int64     `json:"id" db:"id"`
	UserID            int64     `json:"userId" db:"user_id"`
	PlanID            *int64    `json:"planId,omitempty" db:"plan_id"`
	CheckoutSessionID *string   `json:"-" db:"stripe_checkout_session_id"`
	PaymentIntentID   *string   `json:"-" db:"stripe_payment_intent_id"`
	InvoiceID         *string   `json:"-" db:"stripe_invoice_id"`
	AmountCents       int64     `json:"amountCents" db:"amount_cents"`
	Currency          string    `json:"currency" db:"currency"`
	Status            string    `json:"status" db:"status"`
	Description       string    `json:"description" db:"description"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}
