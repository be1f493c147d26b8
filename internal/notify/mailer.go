// Package notify sends email and WhatsApp notices. Delivery failures are returned to the
// caller, which logs them; no primary operation fails because a notice could not be sent.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/rs/zerolog/log"
)

// Email is a single transactional message.
type Email struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// MailerSendMailer sends through the MailerSend API.
type MailerSendMailer struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

// NewMailerSendMailer creates a MailerSend backed mailer.
func NewMailerSendMailer(apiKey, fromName, fromEmail string) *MailerSendMailer {
	return &MailerSendMailer{
		client: mailersend.NewMailersend(apiKey),
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
}

func (m *MailerSendMailer) Send(ctx context.Context, email Email) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: email.ToName, Email: email.ToEmail}})
	msg.SetSubject(email.Subject)

	if strings.TrimSpace(email.Text) != "" {
		msg.SetText(email.Text)
	}
	if strings.TrimSpace(email.HTML) != "" {
		msg.SetHTML(email.HTML)
	}

	if _, err := m.client.Email.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailersend: %w", err)
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them. Used when no API key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, email Email) error {
	log.Info().
		Str("to", email.ToEmail).
		Str("subject", email.Subject).
		Str("body", email.Text).
		Msg("[DEV MAIL] email not sent, mailer not configured")
	return nil
}
