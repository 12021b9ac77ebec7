package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/goliatone/go-magiclink/pkg/types"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig wires an SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SendMail defaults to smtp.SendMail.
	SendMail SendMailFunc
}

// SMTPTransport delivers mail channel messages over SMTP.
type SMTPTransport struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail SendMailFunc
}

// NewSMTPTransport constructs the SMTP transport.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("notify: smtp host required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("notify: smtp from address required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	send := cfg.SendMail
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPTransport{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, port),
		auth:     auth,
		from:     cfg.From,
		sendMail: send,
	}, nil
}

// Send implements Transport.
func (t *SMTPTransport) Send(_ context.Context, msg Message) error {
	if msg.Channel != types.ChannelMail {
		return fmt.Errorf("notify: smtp cannot deliver channel %q", msg.Channel)
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notify: smtp recipient required")
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s\r\n",
		t.from, msg.To, msg.Subject, msg.Body)
	if err := t.sendMail(t.addr, t.auth, t.from, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}
