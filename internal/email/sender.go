package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

// Message is one outbound transactional email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers through the Resend email API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// LogSender is the placeholder used when no email API key is configured.
// Instead of sending a real email, we log it so flows can be followed locally.
type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email placeholder: not sent")
	s.Log.Debug(msg.HTML)
	return nil
}
