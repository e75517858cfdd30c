package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
)

const mailTimeout = 10 * time.Second

// Creator is the create-booking collaborator.
type Creator interface {
	Create(ctx context.Context, b domain.Booking) error
}

// mailSender is the part of *sendgrid.Client used here.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// MailConfig is the sender identity for confirmation e-mails.
type MailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Sandbox   bool
}

// ConfirmationMailer wraps a Creator and e-mails the patient after a successful hand-off.
// Mail failures are logged and never fail the booking.
type ConfirmationMailer struct {
	next   Creator
	sender mailSender
	cfg    MailConfig
	logger *zap.Logger
}

// NewConfirmationMailer returns next unchanged when cfg has no API key or sender address.
func NewConfirmationMailer(next Creator, cfg MailConfig, logger *zap.Logger) Creator {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		return next
	}
	return newConfirmationMailer(next, sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newConfirmationMailer(next Creator, sender mailSender, cfg MailConfig, logger *zap.Logger) *ConfirmationMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationMailer{next: next, sender: sender, cfg: cfg, logger: logger}
}

func (m *ConfirmationMailer) Create(ctx context.Context, b domain.Booking) error {
	if err := m.next.Create(ctx, b); err != nil {
		return err
	}
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	defer cancel()
	resp, err := m.sender.SendWithContext(mailCtx, m.message(b))
	switch {
	case err != nil:
		m.logger.Warn("publisher: confirmation mail failed", zap.String("reference", b.Reference), zap.Error(err))
	case resp.StatusCode >= 300:
		m.logger.Warn("publisher: confirmation mail rejected", zap.String("reference", b.Reference), zap.Int("status", resp.StatusCode))
	}
	return nil
}

func (m *ConfirmationMailer) message(b domain.Booking) *mail.SGMailV3 {
	from := mail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	to := mail.NewEmail(b.Fields.Name, b.Fields.Email)
	subject := fmt.Sprintf("Booking request %s received", b.Reference)
	plain := fmt.Sprintf(
		"Hello %s,\n\nWe received your %s request with %s on %s at %s.\nReference: %s\n",
		b.Fields.Name, b.Fields.Service, b.Fields.Doctor, b.Fields.Date, b.Fields.Time, b.Reference)
	html := fmt.Sprintf(
		"<p>Hello %s,</p><p>We received your <b>%s</b> request with %s on %s at %s.</p><p>Reference: <code>%s</code></p>",
		b.Fields.Name, b.Fields.Service, b.Fields.Doctor, b.Fields.Date, b.Fields.Time, b.Reference)
	msg := mail.NewSingleEmail(from, subject, to, plain, html)
	if m.cfg.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}
	return msg
}
