package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/residencyreview/eras-review-api/internal/metrics"
)

//go:embed templates/*.html
var templateFiles embed.FS

const (
	TemplateVerification       = "verification"
	TemplateWelcome            = "welcome"
	TemplatePaymentReceipt     = "payment_receipt"
	TemplatePaymentFailed      = "payment_failed"
	TemplatePaymentAdmin       = "payment_admin"
	TemplateApplicationAdmin   = "application_submitted"
	TemplateReviewReady        = "review_ready"
	TemplateInterviewAdmin     = "interview_request"
	TemplateInterviewConfirmed = "interview_confirmation"
	TemplateContact            = "contact_message"
)

var subjects = map[string]string{
	TemplateVerification:       "Verify your %s account",
	TemplateWelcome:            "Welcome to %s",
	TemplatePaymentReceipt:     "Your %s receipt",
	TemplatePaymentFailed:      "Action needed: your %s payment failed",
	TemplatePaymentAdmin:       "[%s] New payment received",
	TemplateApplicationAdmin:   "[%s] New application submitted for review",
	TemplateReviewReady:        "Your %s feedback is ready",
	TemplateInterviewAdmin:     "[%s] New mock interview request",
	TemplateInterviewConfirmed: "We received your %s interview request",
	TemplateContact:            "[%s] Contact form message",
}

// Mailer renders the named templates and hands them to a Sender.
type Mailer struct {
	sender     Sender
	templates  *template.Template
	siteName   string
	siteURL    string
	adminEmail string
}

func NewMailer(sender Sender, siteName, siteURL, adminEmail string) (*Mailer, error) {
	tmpl, err := template.New("email").Funcs(template.FuncMap{
		"money": FormatMoney,
		"year":  func() int { return time.Now().Year() },
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Mailer{
		sender:     sender,
		templates:  tmpl,
		siteName:   siteName,
		siteURL:    siteURL,
		adminEmail: adminEmail,
	}, nil
}

// AdminEmail is the inbox that receives back-office notices.
func (m *Mailer) AdminEmail() string {
	return m.adminEmail
}

// Send renders template name with data and delivers it to the recipients.
func (m *Mailer) Send(ctx context.Context, name string, data map[string]any, to ...string) error {
	subjectFmt, ok := subjects[name]
	if !ok {
		return fmt.Errorf("unknown email template %q", name)
	}
	if data == nil {
		data = map[string]any{}
	}
	data["SiteName"] = m.siteName
	data["SiteURL"] = m.siteURL

	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		metrics.RecordEmail(name, "render_error")
		return fmt.Errorf("render %s: %w", name, err)
	}

	err := m.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf(subjectFmt, m.siteName),
		HTML:    body.String(),
	})
	if err != nil {
		metrics.RecordEmail(name, "error")
		return err
	}
	metrics.RecordEmail(name, "sent")
	return nil
}

// SendToAdmin delivers a template to the back-office inbox.
func (m *Mailer) SendToAdmin(ctx context.Context, name string, data map[string]any) error {
	return m.Send(ctx, name, data, m.adminEmail)
}

// FormatMoney renders integer minor units as a display amount, e.g. 14900 usd -> "$149.00".
func FormatMoney(cents int64, currency string) string {
	symbol := ""
	switch currency {
	case "usd", "USD":
		symbol = "$"
	case "eur", "EUR":
		symbol = "€"
	case "gbp", "GBP":
		symbol = "£"
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := fmt.Sprintf("%s%s%d.%02d", sign, symbol, cents/100, cents%100)
	if symbol == "" && currency != "" {
		amount += " " + currency
	}
	return amount
}
