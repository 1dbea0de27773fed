package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/residencyreview/eras-review-api/internal/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Metadata keys attached to checkout sessions, intents and subscriptions so
// webhook events can be traced back to our rows.
const (
	MetaUserID = "user_id"
	MetaPlanID = "plan_id"
)

// CheckoutParams describes one hosted checkout for a plan.
type CheckoutParams struct {
	Plan           models.Plan
	UserID         int64
	Email          string
	CustomerID     string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the provider-side session the browser is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// Client is the subset of the payment provider the API drives directly.
type Client interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

// StripeClient talks to Stripe with a per-instance API key.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{api: client.New(secretKey, nil)}
}

// CreateCheckoutSession opens a payment-mode session for one-time plans and a
// subscription-mode session for recurring ones.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	meta := map[string]string{
		MetaUserID: strconv.FormatInt(p.UserID, 10),
		MetaPlanID: strconv.FormatInt(p.Plan.ID, 10),
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(p.UserID, 10)),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem(p.Plan)},
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}

	if p.Plan.Recurring() {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta}
	}

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// lineItem uses the configured Stripe price when there is one and inline
// price data otherwise.
func lineItem(plan models.Plan) *stripe.CheckoutSessionLineItemParams {
	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if plan.StripePriceID != "" {
		item.Price = stripe.String(plan.StripePriceID)
		return item
	}
	item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(plan.Currency),
		UnitAmount: stripe.Int64(plan.PriceCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(plan.Name),
		},
	}
	if plan.Recurring() {
		item.PriceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
	}
	return item
}

// CancelAtPeriodEnd stops renewal but keeps access until the period ends.
func (c *StripeClient) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}
