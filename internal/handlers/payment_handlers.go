package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/residencyreview/eras-review-api/internal/metrics"
	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/residencyreview/eras-review-api/internal/payments"
)

const planColumns = `id, code, name, description, price_cents, currency, billing_interval, stripe_price_id,
	features, review_credits, is_public, sort_order, created_at, updated_at`

const paymentColumns = `id, user_id, plan_id, stripe_checkout_session_id, stripe_payment_intent_id, stripe_invoice_id,
	amount_cents, currency, status, description, created_at, updated_at`

const subscriptionColumns = `id, user_id, plan_id, stripe_subscription_id, stripe_customer_id, status,
	current_period_end, cancel_at_period_end, created_at, updated_at`

const maxWebhookBytes = 1 << 16

// publicPlans is shared by the pricing endpoint and the pricing JSON-LD.
func (h *Handlers) publicPlans(ctx context.Context) ([]models.Plan, error) {
	plans := []models.Plan{}
	err := h.DB.SelectContext(ctx, &plans,
		"SELECT "+planColumns+" FROM plans WHERE is_public = 1 ORDER BY sort_order, id")
	return plans, err
}

// GetPlans is the handler for GET /v1/plans.
func (h *Handlers) GetPlans(c *gin.Context) {
	plans, err := h.publicPlans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve plans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

type CheckoutInput struct {
	PlanID int64 `json:"planId" binding:"required,min=1"`
}

// CreateCheckout is the handler for POST /v1/checkout.
// It opens a hosted checkout and records a PENDING payment for the session.
func (h *Handlers) CreateCheckout(c *gin.Context) {
	// 1. --- Check Payments Are Configured ---
	if h.Payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payments are not configured"})
		return
	}

	// 2. --- Bind & Validate JSON ---
	var input CheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	userID := currentUserID(c)

	// 3. --- Load Plan & User ---
	var plan models.Plan
	err := h.DB.GetContext(ctx, &plan,
		"SELECT "+planColumns+" FROM plans WHERE id = ? AND is_public = 1", input.PlanID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	var user struct {
		Email      string  `db:"email"`
		CustomerID *string `db:"stripe_customer_id"`
	}
	if err := h.DB.GetContext(ctx, &user,
		"SELECT email, stripe_customer_id FROM users WHERE id = ?", userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 4. --- Block a Second Subscription ---
	if plan.Recurring() {
		sub, err := h.currentSubscription(c, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if sub != nil && sub.Grants(h.now()) {
			c.JSON(http.StatusConflict, gin.H{"error": "You already have an active subscription"})
			return
		}
	}

	// 5. --- Create Provider Session ---
	params := payments.CheckoutParams{
		Plan:           plan,
		UserID:         userID,
		Email:          user.Email,
		SuccessURL:     h.FrontendURL + "/dashboard/billing?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      h.FrontendURL + "/pricing?checkout=cancelled",
		IdempotencyKey: uuid.NewString(),
	}
	if user.CustomerID != nil {
		params.CustomerID = *user.CustomerID
	}
	session, err := h.Payments.CreateCheckoutSession(ctx, params)
	if err != nil {
		h.Log.WithError(err).WithField("plan_id", plan.ID).Error("failed to create checkout session")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to start checkout"})
		return
	}

	// 6. --- Record Pending Payment ---
	now := h.now()
	payment := models.Payment{
		UserID:            userID,
		PlanID:            &plan.ID,
		CheckoutSessionID: &session.ID,
		AmountCents:       plan.PriceCents,
		Currency:          plan.Currency,
		Status:            models.PaymentPending,
		Description:       plan.Name,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err = h.DB.NamedExecContext(ctx, `
		INSERT INTO payments
		(user_id, plan_id, stripe_checkout_session_id, amount_cents, currency, status, description, created_at, updated_at)
		VALUES
		(:user_id, :plan_id, :stripe_checkout_session_id, :amount_cents, :currency, :status, :description, :created_at, :updated_at)`,
		payment)
	if err != nil {
		h.Log.WithError(err).WithField("session_id", session.ID).Error("failed to record pending payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": session.ID,
		"url":       session.URL,
	})
}

// StripeWebhook is the handler for POST /v1/webhooks/stripe.
// A 500 makes the provider retry; the dedup row is rolled back with the failed event.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	// 1. --- Read Raw Body ---
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	// 2. --- Verify Signature ---
	event, err := payments.VerifyEvent(payload, c.GetHeader("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		h.Log.WithError(err).Warn("rejected webhook")
		metrics.RecordWebhookEvent("unknown", "invalid_signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}
	eventType := string(event.Type)
	log := h.Log.WithField("event_id", event.ID).WithField("event_type", eventType)

	// 3. --- Reconcile ---
	result, err := h.Reconciler.Reconcile(c.Request.Context(), event)
	if err != nil {
		log.WithError(err).Error("webhook reconciliation failed")
		metrics.RecordWebhookEvent(eventType, "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	// 4. --- Send Queued Emails ---
	for _, out := range result.Emails {
		h.sendEmail(c.Request.Context(), out.Template, out.Data, out.To)
	}

	switch {
	case result.Duplicate:
		metrics.RecordWebhookEvent(eventType, "duplicate")
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	case result.Ignored:
		metrics.RecordWebhookEvent(eventType, "ignored")
	default:
		metrics.RecordWebhookEvent(eventType, "processed")
	}
	log.WithField("ignored", result.Ignored).Info("webhook processed")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// GetMyPayments is the handler for GET /v1/payments.
func (h *Handlers) GetMyPayments(c *gin.Context) {
	list := []models.Payment{}
	err := h.DB.SelectContext(c.Request.Context(), &list,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id = ? ORDER BY created_at DESC", currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

// currentSubscription returns the user's newest subscription, or nil.
func (h *Handlers) currentSubscription(c *gin.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := h.DB.GetContext(c.Request.Context(), &sub,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC LIMIT 1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetMySubscription is the handler for GET /v1/subscription.
func (h *Handlers) GetMySubscription(c *gin.Context) {
	userID := currentUserID(c)
	sub, err := h.currentSubscription(c, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	credits, err := payments.ReviewCredits(c.Request.Context(), h.DB, userID, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute review credits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"credits":      credits,
	})
}

// CancelMySubscription is the handler for POST /v1/subscription/cancel.
// Access continues until the current period ends.
func (h *Handlers) CancelMySubscription(c *gin.Context) {
	if h.Payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payments are not configured"})
		return
	}

	// 1. --- Find Subscription ---
	sub, err := h.currentSubscription(c, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	if sub == nil || sub.Status == models.SubscriptionCanceled {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active subscription"})
		return
	}
	if sub.CancelAtPeriodEnd {
		c.JSON(http.StatusOK, gin.H{"subscription": sub})
		return
	}

	// 2. --- Cancel at Provider ---
	if err := h.Payments.CancelAtPeriodEnd(c.Request.Context(), sub.StripeSubscriptionID); err != nil {
		h.Log.WithError(err).WithField("subscription_id", sub.ID).Error("failed to cancel subscription")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to cancel subscription"})
		return
	}

	// 3. --- Mirror Locally ---
	// The customer.subscription.updated webhook will confirm this.
	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = h.now()
	if _, err := h.DB.ExecContext(c.Request.Context(),
		"UPDATE subscriptions SET cancel_at_period_end = 1, updated_at = ? WHERE id = ?", sub.UpdatedAt, sub.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
