package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"subscription_live/internal/config"
)

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Name string
	Data []byte
}

// Mailer sends HTML email over SMTP. With no host configured it only logs.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	if cfg.Host == "" {
		log.Println("⚠️ SMTP_HOST not set, emails will be logged instead of sent")
	}
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Enabled() bool { return m.cfg.Host != "" }

func (m *Mailer) Send(ctx context.Context, to, subject, html string, attachments ...Attachment) error {
	if !m.Enabled() {
		log.Printf("📧 (mail disabled) %s → %s", subject, to)
		return nil
	}

	msg, err := m.message(to, subject, html, attachments)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	log.Println("📤 Sending email to", to)
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (m *Mailer) message(to, subject, html string, attachments []Attachment) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	for _, a := range attachments {
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return msg, nil
}
