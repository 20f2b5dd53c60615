package rules

import (
	"errors"
	"log/slog"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
	"gopkg.in/gomail.v2"
)

// Mailer is the email delivery channel.
type Mailer interface {
	Send(subject, body string) error
}

// SMTPMailer sends rule notifications to the configured operator address.
// When no SMTP host is configured the mailer is disabled and Send only logs.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	to     string
	logger *slog.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *slog.Logger) *SMTPMailer {
	m := &SMTPMailer{
		from:   cfg.From,
		to:     cfg.AdminEmail,
		logger: logger.With(slog.String("component", "mailer")),
	}
	if cfg.Host == "" {
		m.logger.Warn("SMTP not configured, email channel disabled")
		return m
	}
	m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if m.from == "" {
		m.from = cfg.Username
	}
	return m
}

func (m *SMTPMailer) Send(subject, body string) error {
	if m.dialer == nil {
		m.logger.Warn("Email channel disabled, dropping message", slog.String("subject", subject))
		return nil
	}
	if m.to == "" {
		return errors.New("no admin email configured")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}
