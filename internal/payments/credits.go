package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/models"
)

// Credits is what a user may still submit for review.
type Credits struct {
	Unlimited bool `json:"unlimited"`
	Purchased int  `json:"purchased"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
}

// CanSubmit reports whether one more application may be submitted.
func (c Credits) CanSubmit() bool {
	return c.Unlimited || c.Remaining > 0
}

// Source is the credit source a submit made now would be charged to.
func (c Credits) Source() string {
	if c.Unlimited {
		return models.CreditSourceSubscription
	}
	return models.CreditSourcePurchase
}

// ReviewCredits adds up one-time purchases and subtracts the submissions that
// were paid from them. An active subscription makes submissions unlimited.
//
// Callers that spend a credit must hold LockUser in the same transaction.
func ReviewCredits(ctx context.Context, q sqlx.QueryerContext, userID int64, now time.Time) (Credits, error) {
	var c Credits

	var active int
	err := sqlx.GetContext(ctx, q, &active, `
		SELECT COUNT(*)
		FROM subscriptions
		WHERE user_id = ? AND status IN (?, ?) AND (current_period_end IS NULL OR current_period_end > ?)`,
		userID, models.SubscriptionActive, models.SubscriptionTrialing, now)
	if err != nil {
		return c, fmt.Errorf("count active subscriptions: %w", err)
	}
	c.Unlimited = active > 0

	err = sqlx.GetContext(ctx, q, &c.Purchased, `
		SELECT COALESCE(SUM(pl.review_credits), 0)
		FROM payments p
		JOIN plans pl ON pl.id = p.plan_id
		WHERE p.user_id = ? AND p.status = ? AND pl.billing_interval = ?`,
		userID, models.PaymentSucceeded, models.IntervalOneTime)
	if err != nil {
		return c, fmt.Errorf("sum purchased credits: %w", err)
	}

	err = sqlx.GetContext(ctx, q, &c.Used,
		"SELECT COUNT(*) FROM applications WHERE user_id = ? AND credit_source = ?", userID, models.CreditSourcePurchase)
	if err != nil {
		return c, fmt.Errorf("count purchased submissions: %w", err)
	}

	if c.Purchased > c.Used {
		c.Remaining = c.Purchased - c.Used
	}
	return c, nil
}

// LockUser takes the row lock on the user so concurrent submits by the same
// user are serialized inside their transactions.
func LockUser(ctx context.Context, tx sqlx.QueryerContext, userID int64) error {
	var id int64
	if err := sqlx.GetContext(ctx, tx, &id, "SELECT id FROM users WHERE id = ? FOR UPDATE", userID); err != nil {
		return fmt.Errorf("lock user %d: %w", userID, err)
	}
	return nil
}

// ExpireStale marks checkout payments still pending after maxAge as expired.
func ExpireStale(ctx context.Context, db sqlx.ExecerContext, maxAge time.Duration, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE payments SET status = ?, updated_at = ?
		WHERE status = ? AND created_at < ?`,
		models.PaymentExpired, now, models.PaymentPending, now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("expire stale payments: %w", err)
	}
	return res.RowsAffected()
}
