// Package mailer delivers account e-mails.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stoqplus/backend/internal/logger"
)

type Mailer interface {
	SendVerification(ctx context.Context, to string, name string, token string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// BackendURL is the public base of the API; verification links point at it.
	BackendURL string
}

type SMTP struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	m := &SMTP{cfg: cfg}
	m.send = m.deliver
	return m
}

func (m *SMTP) SendVerification(ctx context.Context, to string, name string, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link := VerificationLink(m.cfg.BackendURL, token)
	body := fmt.Sprintf("Olá %s,\r\n\r\nConfirme seu e-mail para ativar sua conta Stoq+:\r\n%s\r\n", name, link)
	msg := buildMessage(m.cfg.From, to, "Confirme seu e-mail - Stoq+", body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, envelopeAddress(m.cfg.From), []string{to}, msg); err != nil {
		return fmt.Errorf("sending verification mail to %s: %w", to, err)
	}
	return nil
}

// deliver speaks implicit TLS on 465 and STARTTLS (via smtp.SendMail) elsewhere.
func (m *SMTP) deliver(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if m.cfg.Port != 465 {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func VerificationLink(baseURL string, token string) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1/auth/verify?token=" + url.QueryEscape(token)
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// envelopeAddress extracts the bare address from "Name <addr>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

// LogMailer writes verification links to the log instead of sending them.
type LogMailer struct {
	log        *logger.Logger
	backendURL string
}

func NewLogMailer(log *logger.Logger, backendURL string) *LogMailer {
	return &LogMailer{log: log, backendURL: backendURL}
}

func (m *LogMailer) SendVerification(ctx context.Context, to string, _ string, token string) error {
	ctx = m.log.WithFields(ctx, map[string]any{
		"to":   to,
		"link": VerificationLink(m.backendURL, token),
	})
	m.log.Info(ctx, "mail.verification.logged")
	return nil
}
