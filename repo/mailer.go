package repo

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPMailer sends onboarding verification codes over SMTP.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPMailer creates a mailer for the given SMTP submission endpoint.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

// SendVerificationCode mails a 6-digit verification code to the address the
// participant submitted.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	subject := "Email Verification"
	body := fmt.Sprintf("Your email verification code is: %s", code)

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", m.From),
		fmt.Sprintf("Reply-To: %s", m.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)
	if err := smtp.SendMail(addr, auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("error sending verification mail: %w", err)
	}
	return nil
}
