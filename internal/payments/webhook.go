package payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature means the payload was not signed with our webhook secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifyEvent checks the Stripe-Signature header and decodes the event.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}
