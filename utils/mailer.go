package utils

import (
	"fmt"

	"wacast/config"

	"gopkg.in/gomail.v2"
)

// Mailer sends one-shot bulk email through the configured SMTP account.
// Email blasts are fire-and-forget; there is no retry state machine behind
// them, unlike WhatsApp campaigns.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) IsConfigured() bool {
	return m.cfg.Host != "" && m.cfg.FromEmail != ""
}

// Send delivers a single HTML email
func (m *Mailer) Send(to, subject, htmlBody string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp is not configured")
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromEmail, m.cfg.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return dialer.DialAndSend(msg)
}
