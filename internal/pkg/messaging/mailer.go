package messaging

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"github.com/dojopulse/dojopulse/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP using env-based configuration.
type SMTPMailer struct{}

// NewSMTPMailer creates the default mailer.
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (m *SMTPMailer) SendEmail(ctx context.Context, to string, subject string, body string) error {
	_ = ctx
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	if to == "" {
		return &SendError{Provider: "smtp", Retryable: false, Err: fmt.Errorf("recipient address is empty")}
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := buildMessage(sender, to, subject, body)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
		// SMTP delivery failures are transient from our side; the mail
		// server being unreachable should not kill an enrollment.
		return &SendError{Provider: "smtp", Retryable: true, Err: err}
	}
	log.Printf("Email sent to %s via %s", to, addr)
	return nil
}

// buildMessage assembles the raw RFC 5322 message with HTML content headers.
func buildMessage(sender, to, subject, body string) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)
}
