package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"swasthyaconnect-server/internal/config"
	"swasthyaconnect-server/internal/models"
)

// Notifier composes the notices the application sends.
type Notifier struct {
	mailer   Mailer
	whatsApp WhatsAppSender
	appURL   string
}

// NewNotifier creates a notifier from explicit senders.
func NewNotifier(mailer Mailer, whatsApp WhatsAppSender, appURL string) *Notifier {
	return &Notifier{mailer: mailer, whatsApp: whatsApp, appURL: strings.TrimRight(appURL, "/")}
}

// FromConfig picks real providers when credentials are configured and log-only ones otherwise.
func FromConfig(cfg *config.Config) *Notifier {
	var mailer Mailer = LogMailer{}
	if cfg.Mailer.MailerSendAPIKey != "" && cfg.Mailer.FromEmail != "" {
		mailer = NewMailerSendMailer(cfg.Mailer.MailerSendAPIKey, cfg.Mailer.FromName, cfg.Mailer.FromEmail)
	}

	var whatsApp WhatsAppSender = LogWhatsApp{}
	if cfg.WhatsApp.AccountSID != "" && cfg.WhatsApp.AuthToken != "" && cfg.WhatsApp.FromNumber != "" {
		whatsApp = NewTwilioWhatsApp(cfg.WhatsApp.AccountSID, cfg.WhatsApp.AuthToken, cfg.WhatsApp.FromNumber)
	}

	return NewNotifier(mailer, whatsApp, cfg.AppURL)
}

// VerificationURL is the link a new user follows to verify their email.
func (n *Notifier) VerificationURL(token string) string {
	return n.appURL + "/api/auth/verify-email?token=" + url.QueryEscape(token)
}

// VerificationEmail sends the email verification link.
func (n *Notifier) VerificationEmail(ctx context.Context, user *models.User, token string) error {
	link := n.VerificationURL(token)
	name := user.FullName()

	return n.mailer.Send(ctx, Email{
		ToEmail: user.Email,
		ToName:  name,
		Subject: "Verify your SwasthyaConnect account",
		Text:    fmt.Sprintf("Hi %s,\n\nPlease verify your email address by opening this link:\n%s\n", name, link),
		HTML: fmt.Sprintf(`<h2>Welcome to SwasthyaConnect</h2>
<p>Hi %s,</p>
<p>Please verify your email address by clicking the link below:</p>
<p><a href="%s">Verify Email</a></p>
<p>If you didn't create an account with us, please ignore this email.</p>`, html.EscapeString(name), html.EscapeString(link)),
	})
}

// AppointmentStatusChanged tells the patient about a new appointment status by email and
// WhatsApp. Both channels are attempted; their errors are joined.
func (n *Notifier) AppointmentStatusChanged(ctx context.Context, patient, doctor *models.User, appt *models.Appointment) error {
	text := AppointmentStatusText(doctor, appt)

	var errs []error
	if err := n.mailer.Send(ctx, Email{
		ToEmail: patient.Email,
		ToName:  patient.FullName(),
		Subject: "Your appointment is " + string(appt.Status),
		Text:    text,
		HTML:    "<p>" + html.EscapeString(text) + "</p>",
	}); err != nil {
		errs = append(errs, fmt.Errorf("email: %w", err))
	}

	if patient.PhoneNumber != "" {
		if err := n.whatsApp.SendWhatsApp(ctx, patient.PhoneNumber, text); err != nil {
			errs = append(errs, fmt.Errorf("whatsapp: %w", err))
		}
	}
	return errors.Join(errs...)
}

// AppointmentStatusText is the one-line description of an appointment update.
func AppointmentStatusText(doctor *models.User, appt *models.Appointment) string {
	return fmt.Sprintf("Your appointment with Dr. %s on %s at %s is now %s.",
		doctor.FullName(), appt.Date.Format("2006-01-02"), appt.TimeSlot, appt.Status)
}

// ReportUploaded tells the patient that a report was added to their record.
func (n *Notifier) ReportUploaded(ctx context.Context, patient *models.User, report *models.MedicalReport) error {
	text := fmt.Sprintf("Hi %s,\n\nA new %s report \"%s\" was added to your SwasthyaConnect record.\n",
		patient.FullName(), report.ReportType, report.Title)

	return n.mailer.Send(ctx, Email{
		ToEmail: patient.Email,
		ToName:  patient.FullName(),
		Subject: "New medical report: " + report.Title,
		Text:    text,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>",
	})
}
