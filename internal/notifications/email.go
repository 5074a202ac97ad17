// internal/notifications/email.go - SMTP sink
package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
)

// EmailSink sends messages over SMTP. The recipient is an email address.
type EmailSink struct {
	config config.EmailConfig
	dial   func() (gomail.SendCloser, error)
}

func NewEmailSink(cfg config.EmailConfig) (*EmailSink, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from address is required")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailSink{config: cfg, dial: d.Dial}, nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) buildMessage(recipient string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", s.config.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", htmlBody(msg.Text))
	return m
}

// Send dials the SMTP server per message; ctx only gates the attempt.
func (s *EmailSink) Send(ctx context.Context, recipient string, msg Message) error {
	if !strings.Contains(recipient, "@") {
		return fmt.Errorf("invalid email recipient %q", recipient)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sc, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer sc.Close()

	if err := gomail.Send(sc, s.buildMessage(recipient, msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logrus.WithField("recipient", recipient).Info("Email notification sent")
	return nil
}

func (s *EmailSink) Close() error { return nil }

func htmlBody(text string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
}
