package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/residencyreview/eras-review-api/internal/database"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
)

// Outbound is an email to send once the reconciliation has committed.
type Outbound struct {
	Template string
	To       string // empty means the admin inbox
	Data     map[string]any
}

// Result summarises one processed event.
type Result struct {
	Duplicate bool
	Ignored   bool
	Emails    []Outbound
}

// Reconciler maps provider events onto payments and subscriptions.
type Reconciler struct {
	DB  *sqlx.DB
	Log logrus.FieldLogger
	Now func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// eventTx carries the transaction and the emails queued while handling one event.
type eventTx struct {
	*sqlx.Tx
	ctx    context.Context
	now    time.Time
	log    logrus.FieldLogger
	emails []Outbound
	ignore bool
}

// Reconcile records the event id and applies it in one transaction. A
// duplicate event id is acknowledged without touching anything else. Any
// error rolls the whole event back, dedup row included, so the provider retry
// can succeed later.
func (r *Reconciler) Reconcile(ctx context.Context, event stripe.Event) (Result, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin webhook tx: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	res, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO webhook_events (event_id, event_type, processed_at) VALUES (?, ?, ?)",
		event.ID, string(event.Type), now)
	if err != nil {
		return Result{}, fmt.Errorf("record webhook event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Result{Duplicate: true}, nil
	}

	etx := &eventTx{
		Tx:  tx,
		ctx: ctx,
		now: now,
		log: r.Log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type}),
	}
	if err := etx.apply(event); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit webhook tx: %w", err)
	}
	return Result{Ignored: etx.ignore, Emails: etx.emails}, nil
}

func (t *eventTx) apply(event stripe.Event) error {
	if event.Data == nil {
		return errors.New("event has no data")
	}
	raw := event.Data.Raw

	switch event.Type {
	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return t.checkoutCompleted(&s)

	case "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return t.checkoutExpired(&s)

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		return t.paymentFailed(&pi)

	case "invoice.paid", "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return t.invoicePaid(&inv)

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return t.invoiceFailed(&inv)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return t.subscriptionChanged(&sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return t.subscriptionDeleted(&sub)

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return fmt.Errorf("decode charge: %w", err)
		}
		return t.chargeRefunded(&ch)
	}

	t.ignore = true
	return nil
}

// --- checkout.session.completed ---

func (t *eventTx) checkoutCompleted(s *stripe.CheckoutSession) error {
	var p models.Payment
	err := t.GetContext(t.ctx, &p, `
		SELECT id, user_id, plan_id, stripe_checkout_session_id, stripe_payment_intent_id, stripe_invoice_id,
		       amount_cents, currency, status, description, created_at, updated_at
		FROM payments
		WHERE stripe_checkout_session_id = ?
		FOR UPDATE`, s.ID)
	if errors.Is(err, sql.ErrNoRows) {
		t.log.WithField("session_id", s.ID).Warn("checkout completed for an unknown session")
		t.ignore = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if p.Status == models.PaymentSucceeded {
		return nil
	}

	amount := p.AmountCents
	if s.AmountTotal > 0 {
		amount = s.AmountTotal
	}
	var intentID *string
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		intentID = &s.PaymentIntent.ID
	}
	if _, err := t.ExecContext(t.ctx, `
		UPDATE payments
		SET status = ?, stripe_payment_intent_id = COALESCE(?, stripe_payment_intent_id), amount_cents = ?, updated_at = ?
		WHERE id = ?`,
		models.PaymentSucceeded, intentID, amount, t.now, p.ID); err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}

	customerID := ""
	if s.Customer != nil {
		customerID = s.Customer.ID
	}
	if customerID != "" {
		if _, err := t.ExecContext(t.ctx,
			"UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?",
			customerID, t.now, p.UserID); err != nil {
			return fmt.Errorf("store customer id: %w", err)
		}
	}

	if s.Mode == stripe.CheckoutSessionModeSubscription && s.Subscription != nil && s.Subscription.ID != "" {
		if err := t.upsertSubscription(p.UserID, p.PlanID, s.Subscription.ID, customerID,
			models.SubscriptionActive, nil, false); err != nil {
			return err
		}
	}

	if err := database.AddNotification(t.ctx, t, p.UserID,
		"Payment received: "+p.Description, "/dashboard/payments"); err != nil {
		return err
	}

	u, err := t.user(p.UserID)
	if err != nil {
		return err
	}
	data := map[string]any{
		"Name":        u.FullName,
		"Email":       u.Email,
		"AmountCents": amount,
		"Currency":    p.Currency,
		"Description": p.Description,
	}
	t.emails = append(t.emails,
		Outbound{Template: email.TemplatePaymentReceipt, To: u.Email, Data: data},
		Outbound{Template: email.TemplatePaymentAdmin, Data: data},
	)
	return nil
}

// --- checkout.session.expired ---

func (t *eventTx) checkoutExpired(s *stripe.CheckoutSession) error {
	_, err := t.ExecContext(t.ctx, `
		UPDATE payments SET status = ?, updated_at = ?
		WHERE stripe_checkout_session_id = ? AND status = ?`,
		models.PaymentExpired, t.now, s.ID, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("expire payment: %w", err)
	}
	return nil
}

// --- payment_intent.payment_failed ---

func (t *eventTx) paymentFailed(pi *stripe.PaymentIntent) error {
	userID := metaInt(pi.Metadata, MetaUserID)
	planID := metaInt(pi.Metadata, MetaPlanID)

	// The session row does not know its intent yet, so fall back to the
	// user's newest pending payment for the same plan. Without both ids
	// only an exact intent match is updated.
	res, err := t.ExecContext(t.ctx, `
		UPDATE payments
		SET status = ?, stripe_payment_intent_id = ?, updated_at = ?
		WHERE status = ? AND (stripe_payment_intent_id = ?
			OR (stripe_payment_intent_id IS NULL AND user_id = ? AND plan_id = ?))
		ORDER BY created_at DESC
		LIMIT 1`,
		models.PaymentFailed, pi.ID, t.now, models.PaymentPending, pi.ID, userID, planID)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 || userID == 0 {
		return nil
	}

	reason := ""
	if pi.LastPaymentError != nil {
		reason = pi.LastPaymentError.Msg
	}
	return t.queueFailure(userID, "Your payment", reason)
}

// --- invoice.paid / invoice.payment_succeeded ---

func (t *eventTx) invoicePaid(inv *stripe.Invoice) error {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		t.ignore = true
		return nil
	}
	sub, err := t.subscription(inv.Subscription.ID)
	if errors.Is(err, sql.ErrNoRows) {
		t.log.WithField("subscription_id", inv.Subscription.ID).Warn("invoice for an unknown subscription")
		t.ignore = true
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := t.ExecContext(t.ctx,
		"UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?",
		models.SubscriptionActive, t.now, sub.ID); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	// The checkout session already produced the payment row for the first invoice.
	if inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		return nil
	}

	var intentID *string
	if inv.PaymentIntent != nil && inv.PaymentIntent.ID != "" {
		intentID = &inv.PaymentIntent.ID
	}
	desc := "Subscription renewal"
	if sub.PlanName != "" {
		desc = sub.PlanName + " renewal"
	}
	res, err := t.ExecContext(t.ctx, `
		INSERT INTO payments
		(user_id, plan_id, stripe_invoice_id, stripe_payment_intent_id, amount_cents, currency, status, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = VALUES(updated_at)`,
		sub.UserID, sub.PlanID, inv.ID, intentID, inv.AmountPaid, string(inv.Currency),
		models.PaymentSucceeded, desc, t.now, t.now)
	if err != nil {
		return fmt.Errorf("record renewal payment: %w", err)
	}
	// 1 = inserted; 2 = updated an existing row; 0 = already recorded.
	if n, _ := res.RowsAffected(); n != 1 {
		return nil
	}

	u, err := t.user(sub.UserID)
	if err != nil {
		return err
	}
	t.emails = append(t.emails, Outbound{
		Template: email.TemplatePaymentReceipt,
		To:       u.Email,
		Data: map[string]any{
			"Name":        u.FullName,
			"AmountCents": inv.AmountPaid,
			"Currency":    string(inv.Currency),
			"Description": desc,
		},
	})
	return nil
}

// --- invoice.payment_failed ---

func (t *eventTx) invoiceFailed(inv *stripe.Invoice) error {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		t.ignore = true
		return nil
	}
	sub, err := t.subscription(inv.Subscription.ID)
	if errors.Is(err, sql.ErrNoRows) {
		t.ignore = true
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := t.ExecContext(t.ctx,
		"UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?",
		models.SubscriptionPastDue, t.now, sub.ID); err != nil {
		return fmt.Errorf("mark subscription past due: %w", err)
	}
	desc := "your subscription"
	if sub.PlanName != "" {
		desc = sub.PlanName
	}
	return t.queueFailure(sub.UserID, desc, "")
}

// --- customer.subscription.* ---

func (t *eventTx) subscriptionChanged(s *stripe.Subscription) error {
	var periodEnd *time.Time
	if s.CurrentPeriodEnd > 0 {
		end := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		periodEnd = &end
	}
	customerID := ""
	if s.Customer != nil {
		customerID = s.Customer.ID
	}

	existing, err := t.subscription(s.ID)
	switch {
	case err == nil:
		return t.upsertSubscription(existing.UserID, existing.PlanID, s.ID, customerID,
			SubscriptionStatus(s.Status), periodEnd, s.CancelAtPeriodEnd)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	userID := metaInt(s.Metadata, MetaUserID)
	if userID == 0 && customerID != "" {
		err := t.GetContext(t.ctx, &userID, "SELECT id FROM users WHERE stripe_customer_id = ?", customerID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find subscription owner: %w", err)
		}
	}
	if userID == 0 {
		t.log.WithField("subscription_id", s.ID).Warn("subscription for an unknown customer")
		t.ignore = true
		return nil
	}
	var planID *int64
	if id := metaInt(s.Metadata, MetaPlanID); id > 0 {
		planID = &id
	}
	return t.upsertSubscription(userID, planID, s.ID, customerID,
		SubscriptionStatus(s.Status), periodEnd, s.CancelAtPeriodEnd)
}

func (t *eventTx) subscriptionDeleted(s *stripe.Subscription) error {
	_, err := t.ExecContext(t.ctx, `
		UPDATE subscriptions SET status = ?, cancel_at_period_end = 0, updated_at = ?
		WHERE stripe_subscription_id = ?`,
		models.SubscriptionCanceled, t.now, s.ID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// --- charge.refunded ---

func (t *eventTx) chargeRefunded(ch *stripe.Charge) error {
	// Partial refunds leave the purchase in place.
	if !ch.Refunded || ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		t.ignore = true
		return nil
	}
	_, err := t.ExecContext(t.ctx, `
		UPDATE payments SET status = ?, updated_at = ?
		WHERE stripe_payment_intent_id = ? AND status = ?`,
		models.PaymentRefunded, t.now, ch.PaymentIntent.ID, models.PaymentSucceeded)
	if err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	return nil
}

// --- helpers ---

func (t *eventTx) upsertSubscription(userID int64, planID *int64, subID, customerID, status string, periodEnd *time.Time, cancelAtEnd bool) error {
	_, err := t.ExecContext(t.ctx, `
		INSERT INTO subscriptions
		(user_id, plan_id, stripe_subscription_id, stripe_customer_id, status, current_period_end, cancel_at_period_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			plan_id = COALESCE(VALUES(plan_id), plan_id),
			stripe_customer_id = IF(VALUES(stripe_customer_id) = '', stripe_customer_id, VALUES(stripe_customer_id)),
			current_period_end = COALESCE(VALUES(current_period_end), current_period_end),
			cancel_at_period_end = VALUES(cancel_at_period_end),
			updated_at = VALUES(updated_at)`,
		userID, planID, subID, customerID, status, periodEnd, cancelAtEnd, t.now, t.now)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (t *eventTx) subscription(stripeID string) (*models.Subscription, error) {
	row := t.QueryRowxContext(t.ctx, `
		SELECT s.id, s.user_id, s.plan_id, COALESCE(p.name, '')
		FROM subscriptions s
		LEFT JOIN plans p ON p.id = s.plan_id
		WHERE s.stripe_subscription_id = ?
		FOR UPDATE`, stripeID)
	var sub models.Subscription
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.PlanName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &sub, nil
}

type recipient struct {
	Email    string `db:"email"`
	FullName string `db:"full_name"`
}

func (t *eventTx) user(id int64) (*recipient, error) {
	var u recipient
	if err := t.GetContext(t.ctx, &u, "SELECT email, full_name FROM users WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &u, nil
}

func (t *eventTx) queueFailure(userID int64, description, reason string) error {
	if err := database.AddNotification(t.ctx, t, userID,
		"A payment failed. Please update your payment method.", "/dashboard/payments"); err != nil {
		return err
	}
	u, err := t.user(userID)
	if err != nil {
		return err
	}
	t.emails = append(t.emails, Outbound{
		Template: email.TemplatePaymentFailed,
		To:       u.Email,
		Data: map[string]any{
			"Name":        u.FullName,
			"Description": description,
			"Reason":      reason,
		},
	})
	return nil
}

// SubscriptionStatus maps a provider status onto ours.
func SubscriptionStatus(s stripe.SubscriptionStatus) string {
	switch s {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue:
		return models.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionCanceled
	case stripe.SubscriptionStatusUnpaid:
		return models.SubscriptionUnpaid
	default:
		return models.SubscriptionIncomplete
	}
}

func metaInt(meta map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(meta[key], 10, 64)
	return n
}
