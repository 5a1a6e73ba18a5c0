package alerting

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EmailConfig configures the SMTP sink. An empty Host logs the message instead of sending.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailSink sends alerts over SMTP
type EmailSink struct {
	config EmailConfig
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSink creates an email sink
func NewEmailSink(config EmailConfig, logger *zap.Logger) *EmailSink {
	if config.Port == 0 {
		config.Port = 587
	}
	return &EmailSink{config: config, logger: logger, send: smtp.SendMail}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.config.To) == 0 {
		return errors.New("no email recipients configured")
	}

	if s.config.Host == "" {
		s.logger.Warn("SMTP not configured, alert email logged only",
			zap.Strings("to", s.config.To),
			zap.String("subject", alert.Subject()),
			zap.String("body", alert.Body()))
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.config.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", alert.Subject())
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(alert.Body(), "\n", "\r\n"))

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	if err := s.send(addr, auth, s.config.From, s.config.To, []byte(msg.String())); err != nil {
		return errors.Wrap(err, "failed to send alert email")
	}
	return nil
}
